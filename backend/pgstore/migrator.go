package pgstore

import (
	"context"
	"embed"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/agilira/go-errors"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const ErrCodeMigrate errors.ErrorCode = "PGSTORE_MIGRATE_FAILED"

// Migrator applies the embedded schema migrations.
type Migrator struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewMigrator(db *sqlx.DB, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Migrator{db: db, logger: logger}
}

// Migrate creates schemaName if needed and brings it to the latest version.
func (m *Migrator) Migrate(ctx context.Context, schemaName string) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to connect to db")
	}
	defer conn.Close()

	_, err = conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to create schema").WithContext("schema", schemaName)
	}
	_, err = conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", pq.QuoteIdentifier(schemaName)))
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to set search path").WithContext("schema", schemaName)
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to open embedded migrations")
	}
	defer source.Close()

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		DatabaseName: DBName,
		SchemaName:   schemaName,
	})
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to create postgres driver")
	}

	inst, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, ErrCodeMigrate, "failed to create migration instance")
	}
	defer inst.Close()

	m.logger.InfoContext(ctx, "starting migrations", slog.String("schema", schemaName))
	if err := inst.Up(); err != nil {
		if !goerrors.Is(err, migrate.ErrNoChange) {
			return errors.Wrap(err, ErrCodeMigrate, "failed to migrate").WithContext("schema", schemaName)
		}
		m.logger.InfoContext(ctx, "no migrations to run", slog.String("schema", schemaName))
	}
	m.logger.InfoContext(ctx, "migrations completed", slog.String("schema", schemaName))
	return nil
}
