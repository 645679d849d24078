package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/mediareceiver"

	_ "modernc.org/sqlite" // SQLite driver
)

// database provides SQLite database operations.
type database struct {
	db     *sql.DB
	tables mediareceiver.Tables
}

// Connect opens a SQLite database. Tables should be validated before calling
// Connect.
//
// The pool holds a single connection so a ":memory:" database is seen by
// every query.
func Connect(ctx context.Context, dsn string, tables mediareceiver.Tables) (*database, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &database{
		db:     db,
		tables: tables,
	}, nil
}

// Ping verifies the database connection is alive.
func (d *database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *database) Migrate(ctx context.Context) error {
	if err := migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	for _, validation := range getTableValidations(d.tables) {
		if err := validateTableSchema(ctx, d.db, validation.tableName, validation.expectedSchema); err != nil {
			return fmt.Errorf("validate schema %s: %w", validation.tableName, err)
		}
	}

	return nil
}

// GetRepo returns the UploadRepo for ledger operations.
func (d *database) GetRepo() mediareceiver.UploadRepo {
	return &repo{db: d.db, tableName: quoteIdentifier(d.tables.Uploads)}
}

// DB exposes the underlying handle.
func (d *database) DB() *sql.DB {
	return d.db
}

// Close closes the database connection.
func (d *database) Close() error {
	return d.db.Close()
}
