package database

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx" // PGX driver for golang-migrate
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrateFromDir applies the migration scripts found in dir.
func MigrateFromDir(cfg Config, dir string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", dir), cfg.URI("pgx"))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %v", err)
	}
	return up(m)
}

// MigrateFromFS applies the migration scripts stored under path in fsys.
func MigrateFromFS(cfg Config, fsys fs.FS, path string) error {
	src, err := iofs.New(fsys, path)
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations %q: %v", path, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URI("pgx"))
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %v", err)
	}
	return up(m)
}

func up(m *migrate.Migrate) error {
	defer func() {
		if sErr, dbErr := m.Close(); sErr != nil || dbErr != nil {
			if sErr != nil {
				slog.Error("failed to close migration instance", "error", sErr)
			}
			if dbErr != nil {
				slog.Error("failed to close database connection", "error", dbErr)
			}
		}
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("No new migrations to apply")
			return nil
		}

		return fmt.Errorf("failed to apply migrations: %v", err)
	}
	slog.Info("Migrations applied successfully")
	return nil
}
