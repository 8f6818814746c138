package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var embeddedMigrations embed.FS

// ErrUnsupportedDialect is returned for databases without an embedded schema.
var ErrUnsupportedDialect = errors.New("no embedded migrations for database type")

// Supported reports whether dialect ships with an embedded schema.
func Supported(dialect string) bool {
	return dialect == "postgres" || dialect == "mysql"
}

func driverFor(db *sql.DB, dialect string) (database.Driver, error) {
	switch dialect {
	case "postgres":
		return postgres.WithInstance(db, &postgres.Config{})
	case "mysql":
		return mysql.WithInstance(db, &mysql.Config{})
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDialect, dialect)
	}
}

// RunMigrations brings payment_events, orders and order_outbox up to the
// latest embedded version and returns that version.
func RunMigrations(db *sql.DB, dialect string) (uint, error) {
	if db == nil {
		return 0, errors.New("migration database handle is required")
	}
	if !Supported(dialect) {
		return 0, fmt.Errorf("%w %q", ErrUnsupportedDialect, dialect)
	}

	sub, err := fs.Sub(embeddedMigrations, "migrations/"+dialect)
	if err != nil {
		return 0, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return 0, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := driverFor(db, dialect)
	if err != nil {
		return 0, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, dialect, driver)
	if err != nil {
		return 0, fmt.Errorf("create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}

	// migrator.Close would close the shared *sql.DB.
	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
