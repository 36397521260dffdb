package daemon

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/userhub/userhub/internal/database"
	"github.com/userhub/userhub/migrations"
)

func installMigrateCmd(app *App) {
	migrateCmd := &cobra.Command{
		Use:   "migrate [path-to-migration-scripts]",
		Short: "Run migration scripts",
		Long: `Run migration scripts to update the database schema or data.
If no path is provided, the migrations embedded in the binary are used.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 {
				return errors.New("migrate command accepts at most one argument")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app.cmd.SilenceUsage = false

			if len(args) == 1 {
				app.config.MigrationsDir = args[0]

				fileInfo, err := os.Stat(app.config.MigrationsDir)
				if err != nil {
					return fmt.Errorf("the provided path to migration scripts is not valid: %v", err)
				}
				if !fileInfo.IsDir() {
					return fmt.Errorf("the provided path to migration scripts should be a directory, not a file")
				}
			}

			app.cmd.SilenceUsage = true

			slog.Info("Running migrate command")
			return app.migrateRun()
		},
	}
	app.cmd.AddCommand(migrateCmd)
}

func (a App) migrateRun() error {
	if a.config.MigrationsDir != "" {
		return database.MigrateFromDir(a.config.DB, a.config.MigrationsDir)
	}
	return database.MigrateFromFS(a.config.DB, migrations.FS, migrations.UserDir)
}
