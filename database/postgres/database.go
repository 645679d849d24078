package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/mediareceiver"
)

type database struct {
	pool   *pgxpool.Pool
	tables mediareceiver.Tables
}

// Connect establishes a connection to PostgreSQL.
// Tables should be validated before calling Connect.
func Connect(ctx context.Context, dsn string, tables mediareceiver.Tables) (*database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &database{
		pool:   pool,
		tables: tables,
	}, nil
}

// Ping verifies the database connection is alive.
func (d *database) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *database) Migrate(ctx context.Context) error {
	if err := createUploadsTable(ctx, d.pool, d.tables.Uploads); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	if err := validateTableSchema(ctx, d.pool, d.tables.Uploads, uploadsTableSchema); err != nil {
		return fmt.Errorf("validate schema %s: %w", d.tables.Uploads, err)
	}
	return nil
}

// GetRepo returns the UploadRepo for ledger operations.
func (d *database) GetRepo() mediareceiver.UploadRepo {
	return &Repo{pool: d.pool, tableName: pgx.Identifier{d.tables.Uploads}.Sanitize()}
}

// Close closes the database connection pool.
func (d *database) Close() error {
	d.pool.Close()
	return nil
}
