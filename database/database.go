package database

import (
	"context"
	"fmt"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/database/postgres"
	"github.com/sagarc03/mediareceiver/database/sqlite"
)

// Backend types accepted by Config.Type.
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeNone     = "none"
)

// Database is a connected ledger backend.
type Database interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Validate(ctx context.Context) error
	GetRepo() mediareceiver.UploadRepo
	Close() error
}

// Config holds the configuration for connecting to a ledger backend.
type Config struct {
	// Type specifies the database type: "sqlite", "postgres" or "none"
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=sqlite postgres none"`
	// DSN is the data source name (connection string)
	DSN string `mapstructure:"dsn" yaml:"dsn" validate:"required_unless=Type none"`
	// Tables holds the ledger table names
	Tables mediareceiver.Tables `mapstructure:"tables" yaml:"tables"`
}

// Connect opens the configured backend without touching the schema.
func Connect(ctx context.Context, cfg Config) (Database, error) {
	if err := cfg.Tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	switch cfg.Type {
	case TypeSQLite:
		db, err := sqlite.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	case TypePostgres:
		db, err := postgres.Connect(ctx, cfg.DSN, cfg.Tables)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}

// Open connects, runs migrations, validates the schema and returns the
// ledger repo. The returned cleanup function closes the connection.
//
// Type "none" disables the ledger: the repo is nil and cleanup is a no-op.
func Open(ctx context.Context, cfg Config) (mediareceiver.UploadRepo, func(), error) {
	if cfg.Type == TypeNone {
		return nil, func() {}, nil
	}

	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err = db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping %s: %w", cfg.Type, err)
	}

	if err = db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Type, err)
	}

	if err = db.Validate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("validate %s schema: %w", cfg.Type, err)
	}

	cleanup := func() {
		_ = db.Close()
	}

	return db.GetRepo(), cleanup, nil
}
