// Package migrations wires golang-migrate execution for the Postgres sink.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	dbmigrations "github.com/hkracing/racesync/db/migrations"
	"github.com/hkracing/racesync/internal/observability"
)

var errNotDirectory = errors.New("migrations path must be a directory")

// Apply ensures the migrations located at migrationsDir are applied to the
// Postgres instance reachable via dsn.
func Apply(ctx context.Context, dsn, migrationsDir string) error {
	m, closeDB, err := newFileMigrate(ctx, dsn, migrationsDir)
	if err != nil {
		return err
	}
	defer closeDB()
	return up(m)
}

// Rollback reverts the most recent steps migrations from migrationsDir.
func Rollback(ctx context.Context, dsn, migrationsDir string, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("rollback steps must be positive, got %d", steps)
	}
	m, closeDB, err := newFileMigrate(ctx, dsn, migrationsDir)
	if err != nil {
		return err
	}
	defer closeDB()
	defer closeMigrate(m)

	observability.Log().Info("rolling back database migrations",
		observability.Field{Key: "steps", Value: steps})
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			observability.Log().Info("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("rollback migrations: %w", err)
	}
	observability.Log().Info("database migrations rolled back")
	return nil
}

func newFileMigrate(ctx context.Context, dsn, migrationsDir string) (*migrate.Migrate, func(), error) {
	resolvedDir, err := resolveDir(migrationsDir)
	if err != nil {
		return nil, nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open migrations connection: %w", err)
	}
	closeDB := func() {
		if cerr := db.Close(); cerr != nil {
			observability.Log().Error("migrations close",
				observability.Field{Key: "error", Value: cerr.Error()})
		}
	}

	if err := db.PingContext(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(fileURL(resolvedDir), "pgx5", driver)
	if err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("initialise migrate instance: %w", err)
	}

	observability.Log().Info("opened migrations source",
		observability.Field{Key: "path", Value: resolvedDir})
	return m, closeDB, nil
}

// ApplyEmbedded runs the migrations compiled into the binary. Used when no
// migrations directory is configured.
func ApplyEmbedded(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			observability.Log().Error("migrations close",
				observability.Field{Key: "error", Value: cerr.Error()})
		}
	}()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}
	source, err := iofs.New(dbmigrations.Files, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}

	observability.Log().Info("running embedded database migrations")
	return up(m)
}

func closeMigrate(m *migrate.Migrate) {
	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		observability.Log().Error("migrations source close",
			observability.Field{Key: "error", Value: sourceErr.Error()})
	}
	if dbErr != nil {
		observability.Log().Error("migrations db close",
			observability.Field{Key: "error", Value: dbErr.Error()})
	}
}

func up(m *migrate.Migrate) error {
	defer closeMigrate(m)
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			observability.Log().Info("database migrations up-to-date")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	observability.Log().Info("database migrations applied")
	return nil
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}
