package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"acadium-backend/internal/config"
	"acadium-backend/internal/database"
)

func newMigrateCommand() *cobra.Command {
	var (
		driver      string
		databaseURL string
		sqlitePath  string
	)
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the user_learning_progress schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			switch driver {
			case config.StorageDriverSQLite:
				db, err := database.OpenSQLite(ctx, sqlitePath)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := database.InitSQLiteSchema(ctx, db); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sqlite schema ready at %s\n", sqlitePath)
				return nil

			case config.StorageDriverPostgres:
				if databaseURL == "" {
					return fmt.Errorf("--database-url or DATABASE_URL is required")
				}
				pool, err := database.NewPostgresPool(ctx, databaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				applied, err := database.RunMigrations(ctx, pool, log)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil

			default:
				return fmt.Errorf("unknown driver %q", driver)
			}
		},
	}
	flags := command.Flags()
	flags.StringVar(&driver, "driver", envOrDefault("STORAGE_DRIVER", config.StorageDriverPostgres), "postgres or sqlite")
	flags.StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres connection URL")
	flags.StringVar(&sqlitePath, "sqlite-path", envOrDefault("SQLITE_PATH", "./acadium.db"), "sqlite database file")
	return command
}
