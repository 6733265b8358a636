package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/lewisedginton/npc_registry/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate brings the documents schema up to date using the embedded
// migrations. It is a no-op when the schema is current.
func Migrate(pool *pgxpool.Pool, log logger.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("create embedded migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	log.Info("Running storage migrations")
	if err := migrator.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("Storage schema is up to date")
			return nil
		}
		return fmt.Errorf("run migrations: %w", err)
	}
	version, _, _ := migrator.Version()
	log.Info("Applied storage migrations", logger.IntField("version", int(version)))
	return nil
}
