package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTenantCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Inspect and change tenant accounts",
		Long:  "Status changes apply to the tenant's next request, including sessions already issued.",
	}

	cmd.AddCommand(newTenantShowCmd(a))
	cmd.AddCommand(newTenantStatusCmd(a, "suspend", "Suspend a tenant", storage.StatusSuspended))
	cmd.AddCommand(newTenantStatusCmd(a, "activate", "Reactivate a tenant", storage.StatusActive))
	cmd.AddCommand(newTenantSetStatusCmd(a))
	cmd.AddCommand(newTenantDeleteCmd(a))

	return cmd
}

func newTenantShowCmd(a *app) *cobra.Command {
	var (
		email string
		id    string
	)

	cmd := &cobra.Command{
		Use:     "show",
		Short:   "Print a tenant profile as JSON",
		Example: "  platformctl tenant show --email ops@acme.io",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (email == "") == (id == "") {
				return errors.New("exactly one of --email or --id is required")
			}
			return a.withStore(cmd.Context(), func(store storage.Backend) error {
				var (
					tenant storage.Tenant
					err    error
				)
				if email != "" {
					tenant, err = store.GetTenantByEmail(cmd.Context(), email)
				} else {
					tenantID, perr := uuid.Parse(id)
					if perr != nil {
						return fmt.Errorf("invalid tenant id: %w", perr)
					}
					tenant, err = store.GetTenantByID(cmd.Context(), tenantID)
				}
				if err != nil {
					return lookupError(err)
				}

				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(service.ProfileOf(tenant))
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "tenant email")
	cmd.Flags().StringVar(&id, "id", "", "tenant id")
	return cmd
}

func newTenantStatusCmd(a *app, use, short string, status storage.TenantStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <tenant-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.setStatus(cmd, args[0], status)
		},
	}
}

func newTenantSetStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "status <tenant-id> <ACTIVE|SUSPENDED|CLOSED>",
		Short:   "Set a tenant's status",
		Example: "  platformctl tenant status 9b2c... CLOSED",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := storage.TenantStatus(strings.ToUpper(args[1]))
			if !status.Valid() {
				return fmt.Errorf("unknown status %q", args[1])
			}
			return a.setStatus(cmd, args[0], status)
		},
	}
}

func (a *app) setStatus(cmd *cobra.Command, rawID string, status storage.TenantStatus) error {
	tenantID, err := uuid.Parse(rawID)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	return a.withStore(cmd.Context(), func(store storage.Backend) error {
		if err := store.SetTenantStatus(cmd.Context(), tenantID, status, time.Now().UTC()); err != nil {
			return lookupError(err)
		}
		a.logger.Info("tenant status changed", "tenant_id", tenantID.String(), "status", string(status))
		fmt.Fprintf(cmd.OutOrStdout(), "tenant %s is now %s\n", tenantID, status)
		return nil
	})
}

func newTenantDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <tenant-id>",
		Short: "Soft-delete a tenant",
		Long:  "The tenant stops resolving immediately. Its email stays reserved.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid tenant id: %w", err)
			}
			return a.withStore(cmd.Context(), func(store storage.Backend) error {
				if err := store.SoftDeleteTenant(cmd.Context(), tenantID, time.Now().UTC()); err != nil {
					return lookupError(err)
				}
				a.logger.Info("tenant deleted", "tenant_id", tenantID.String())
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s deleted\n", tenantID)
				return nil
			})
		},
	}
}

func lookupError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errors.New("tenant not found")
	}
	return err
}
