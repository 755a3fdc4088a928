package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/businessly/businessly/internal/config"
	"github.com/businessly/businessly/internal/infrastructure"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			switch cfg.Database.Driver {
			case config.DriverPostgres:
				if cfg.Database.URL == "" {
					return errors.New("DATABASE_URL must be set")
				}
				return infrastructure.MigratePostgres(cfg.Database.URL, log)
			case config.DriverSQLite:
				// OpenSQLite applies the schema on open.
				db, err := infrastructure.OpenSQLite(cmd.Context(), cfg.Database.SQLitePath)
				if err != nil {
					return err
				}
				log.Info("database migrated", slog.String("path", cfg.Database.SQLitePath))
				return db.Close()
			}
			return fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
		},
	}
}
