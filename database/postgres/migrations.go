package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func createUploadsTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	quotedTable := pgx.Identifier{tableName}.Sanitize()
	indexReceived := pgx.Identifier{fmt.Sprintf("idx_%s_received", tableName)}.Sanitize()
	indexCategory := pgx.Identifier{fmt.Sprintf("idx_%s_category", tableName)}.Sanitize()

	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			stored_path TEXT NOT NULL UNIQUE,
			original_name TEXT NOT NULL,
			sanitized_name TEXT NOT NULL,
			category TEXT NOT NULL,
			etag TEXT NOT NULL,
			file_size_bytes BIGINT NOT NULL,
			client_ip TEXT NOT NULL DEFAULT '',
			received_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (received_at, stored_path);

		CREATE INDEX IF NOT EXISTS %s
		ON %s (category, received_at, stored_path);
	`,
		quotedTable,
		indexReceived, quotedTable,
		indexCategory, quotedTable,
	)

	_, err := pool.Exec(ctx, sql)
	if err != nil {
		return fmt.Errorf("create uploads table: %w", err)
	}
	return nil
}

// DropTables removes the ledger tables.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	_, err := pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{tableName}.Sanitize()))
	return err
}
