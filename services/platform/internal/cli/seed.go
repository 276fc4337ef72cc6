package cli

import (
	"errors"
	"fmt"

	"github.com/AfshinJalili/sentinel/services/platform/internal/security"
	"github.com/AfshinJalili/sentinel/services/platform/internal/service"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/spf13/cobra"
)

func newSeedCmd(a *app) *cobra.Command {
	var (
		name     string
		email    string
		password string
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo tenant (dev and test environments only)",
		Long:  "Registers a demo tenant and prints its default API key. The key is shown once and cannot be retrieved again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.cfg.App.IsDev() {
				return fmt.Errorf("seed is disabled in env %q", a.cfg.App.Env)
			}
			hasher, err := security.NewHasher(a.cfg.Argon2)
			if err != nil {
				return err
			}

			return a.withStore(cmd.Context(), func(store storage.Backend) error {
				if a.cfg.StoreDriver == storage.DriverSQLite {
					if err := store.Migrate(cmd.Context()); err != nil {
						return err
					}
				}

				svc := service.New(store, hasher, nil, service.Options{
					KeyTag:        a.cfg.Keys.Tag,
					MaxActiveKeys: a.cfg.Keys.MaxActiveKeys,
				}, a.logger, nil)
				res, err := svc.Register(cmd.Context(), service.RegisterInput{Name: name, Email: email, Password: password})
				if errors.Is(err, service.ErrEmailTaken) {
					fmt.Fprintf(cmd.OutOrStdout(), "tenant %s already exists\n", email)
					return nil
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "Demo tenant created:")
				fmt.Fprintln(out)
				fmt.Fprintf(out, "  Tenant:  %s\n", res.TenantID)
				fmt.Fprintf(out, "  Email:   %s\n", email)
				fmt.Fprintf(out, "  API key: %s\n", res.APIKey)
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "Demo Tenant", "tenant name")
	cmd.Flags().StringVar(&email, "email", "demo@example.com", "tenant email")
	cmd.Flags().StringVar(&password, "password", "demo-password", "tenant password")
	return cmd
}
