package handlers

import (
	"net/http"

	"github.com/AfshinJalili/sentinel/libs/auth"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type verifyKeyResponse struct {
	TenantID    uuid.UUID            `json:"tenant_id"`
	TenantName  string               `json:"tenant_name"`
	TenantEmail string               `json:"tenant_email"`
	Status      storage.TenantStatus `json:"status"`
	Plan        string               `json:"plan"`
	KeyID       uuid.UUID            `json:"key_id"`
}

// VerifyKey serves machine-to-machine callers presenting X-API-Key.
func (h *Handler) VerifyKey(c *gin.Context) {
	verified, ok := auth.Subject[service.VerifiedKey](c)
	if !ok {
		h.authError(c, auth.ErrMissingCredential)
		return
	}
	t := verified.Tenant
	c.JSON(http.StatusOK, verifyKeyResponse{
		TenantID:    t.ID,
		TenantName:  t.Name,
		TenantEmail: t.Email,
		Status:      t.Status,
		Plan:        t.Plan,
		KeyID:       verified.KeyID,
	})
}

func keyTenant(c *gin.Context) (uuid.UUID, bool) {
	verified, ok := auth.Subject[service.VerifiedKey](c)
	return verified.Tenant.ID, ok
}
