package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

//go:embed migrations
var migrations embed.FS

// Migrate brings the schema up to date. The pool stays open.
func Migrate(ctx context.Context, db *sqlx.DB) (err error) {
	m, err := newMigrator(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		serr, dberr := m.Close()
		if serr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration source error: %v", err, serr)
			} else {
				err = serr
			}
		}
		if dberr != nil {
			if err != nil {
				err = fmt.Errorf("%w; migration database error: %v", err, dberr)
			} else {
				err = dberr
			}
		}
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}
	version, dirty, verr := m.Version()
	if verr == nil {
		log.Debug("schema migrated", "driver", db.DriverName(), "version", version, "dirty", dirty)
	}
	return nil
}

func newMigrator(ctx context.Context, db *sqlx.DB) (*migrate.Migrate, error) {
	driver := db.DriverName()
	src, err := iofs.New(migrations, "migrations/"+driver)
	if err != nil {
		return nil, fmt.Errorf("unable to read migrations for %s: %w", driver, err)
	}

	var target database.Driver
	switch driver {
	case DriverPostgres:
		// A dedicated connection is returned to the pool on Close.
		conn, cerr := db.Conn(ctx)
		if cerr != nil {
			_ = src.Close()
			return nil, cerr
		}
		target, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			_ = conn.Close()
		}
	case DriverSQLite:
		var inst database.Driver
		inst, err = sqlite3.WithInstance(db.DB, &sqlite3.Config{})
		target = keepOpen{inst}
	default:
		err = fmt.Errorf("no migrations for driver %q", driver)
	}
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("unable to prepare migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("unable to prepare migrations: %w", err)
	}
	return m, nil
}

// keepOpen stops the sqlite migration driver from closing the shared pool.
type keepOpen struct {
	database.Driver
}

func (keepOpen) Close() error { return nil }
