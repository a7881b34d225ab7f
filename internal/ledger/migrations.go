package ledger

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// runMigrations applies the embedded schema for dialect ("sqlite" or
// "postgres") to db. The migrator takes ownership of db and closes it.
func runMigrations(db *sql.DB, dialect string, log logger.Logger) error {
	sourceDriver, err := iofs.New(migrationFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("create embedded migration source: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case BackendSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case BackendPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}
	if err != nil {
		return fmt.Errorf("create %s migration driver: %w", dialect, err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, dialect, driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	log.Debug("Applying ledger migrations")
	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Debug("No new ledger migrations to apply")
			return nil
		}
		log.Error("Failed to run ledger migrations", logger.ErrorField(err))
		return fmt.Errorf("run migrations: %w", err)
	}

	log.Info("Applied ledger migrations")
	return nil
}
