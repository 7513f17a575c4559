package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"keyhub/internal/platform/database/migrations"
)

// Migrate applies the embedded schema migrations in the given direction
// ("up" or "down"). Running against an already current schema is not an error.
func Migrate(db *sql.DB, direction string) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrations.Migrations, ".")
	if err != nil {
		return err
	}

	instance, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}

	switch direction {
	case "up":
		err = instance.Up()
	case "down":
		err = instance.Down()
	default:
		return fmt.Errorf("invalid direction %q: must be up or down", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
