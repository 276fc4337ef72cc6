package service

import "github.com/AfshinJalili/sentinel/services/platform/internal/storage"

// statusGate is the single check every path that resolves a tenant from
// stored state must pass before the tenant is returned.
func statusGate(t *storage.Tenant) bool {
	return t != nil && t.DeletedAt == nil && t.Status == storage.StatusActive
}
