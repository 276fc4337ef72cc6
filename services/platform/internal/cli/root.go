package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/AfshinJalili/sentinel/libs/logging"
	"github.com/AfshinJalili/sentinel/services/platform/internal/config"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
	"github.com/spf13/cobra"
)

type app struct {
	out    io.Writer
	cfg    *config.Config
	logger *slog.Logger
	open   func(ctx context.Context) (storage.Backend, error)

	driver     string
	sqlitePath string
}

// Execute runs platformctl with the process arguments.
func Execute() error {
	return newRootCmd(&app{out: os.Stdout}).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "platformctl",
		Short: "Administer the platform credential service",
		Long: `platformctl runs schema migrations and administrative tenant actions
against the credential store used by the platform service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	cmd.SetOut(a.out)

	cmd.PersistentFlags().StringVar(&a.driver, "driver", "", "store driver override (postgres|sqlite)")
	cmd.PersistentFlags().StringVar(&a.sqlitePath, "sqlite-path", "", "SQLite database file override")

	cmd.AddCommand(newMigrateCmd(a))
	cmd.AddCommand(newTenantCmd(a))
	cmd.AddCommand(newSeedCmd(a))

	return cmd
}

func (a *app) init() error {
	if a.cfg == nil {
		cfg, err := config.LoadAdmin()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
	}
	if a.driver != "" {
		a.cfg.StoreDriver = a.driver
	}
	if a.sqlitePath != "" {
		a.cfg.SQLitePath = a.sqlitePath
	}
	if a.logger == nil {
		a.logger = logging.NewLoggerTo(os.Stderr, a.cfg.App.LogLevel, "platformctl", a.cfg.App.Env)
	}
	if a.open == nil {
		a.open = func(ctx context.Context) (storage.Backend, error) {
			return storage.Open(ctx, a.cfg.Store(), a.logger)
		}
	}
	return nil
}

func (a *app) withStore(ctx context.Context, fn func(storage.Backend) error) error {
	store, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store storage.Backend) error {
				if err := store.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}
}
