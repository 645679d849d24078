// Package postgres implements the upload ledger using PostgreSQL
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/database/internal"
)

const uploadColumns = `id, stored_path, original_name, sanitized_name, category, etag, file_size_bytes, client_ip, received_at`

type Repo struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewRepo returns a Repo over an existing pool. The table must already be
// migrated.
func NewRepo(pool *pgxpool.Pool, tables mediareceiver.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, tableName: pgx.Identifier{tables.Uploads}.Sanitize()}, nil
}

func scanUpload(row pgx.Row) (mediareceiver.UploadedFile, error) {
	var f mediareceiver.UploadedFile
	var category string

	err := row.Scan(&f.ID, &f.StoredPath, &f.OriginalName, &f.SanitizedName, &category,
		&f.Etag, &f.SizeBytes, &f.ClientIP, &f.ReceivedAt)
	if err != nil {
		return mediareceiver.UploadedFile{}, err
	}

	f.Category = mediareceiver.Category(category)
	return f, nil
}

func (r *Repo) Record(ctx context.Context, file mediareceiver.UploadedFile) (mediareceiver.UploadedFile, bool, error) {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.ReceivedAt.IsZero() {
		file.ReceivedAt = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stored_path) DO NOTHING
		RETURNING %s
	`, r.tableName, uploadColumns, uploadColumns)

	got, err := scanUpload(r.pool.QueryRow(ctx, query,
		file.ID, file.StoredPath, file.OriginalName, file.SanitizedName, string(file.Category),
		file.Etag, file.SizeBytes, file.ClientIP, file.ReceivedAt,
	))
	if err == nil {
		return got, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return mediareceiver.UploadedFile{}, false, fmt.Errorf("record: %w", err)
	}

	existing, err := r.getBy(ctx, "stored_path", file.StoredPath)
	if err != nil {
		return mediareceiver.UploadedFile{}, false, fmt.Errorf("record: get existing: %w", err)
	}
	return existing, false, nil
}

func (r *Repo) Get(ctx context.Context, id uuid.UUID) (mediareceiver.UploadedFile, error) {
	f, err := r.getBy(ctx, "id", id)
	if err != nil {
		return mediareceiver.UploadedFile{}, fmt.Errorf("get: %w", err)
	}
	return f, nil
}

func (r *Repo) getBy(ctx context.Context, column string, value any) (mediareceiver.UploadedFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`, uploadColumns, r.tableName, column)

	f, err := scanUpload(r.pool.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mediareceiver.UploadedFile{}, mediareceiver.ErrNotFound
		}
		return mediareceiver.UploadedFile{}, err
	}
	return f, nil
}

func (r *Repo) List(ctx context.Context, q mediareceiver.ListQuery) (mediareceiver.ListResult, error) {
	cursor, err := internal.DecodeCursor(q.Cursor)
	if err != nil {
		return mediareceiver.ListResult{}, fmt.Errorf("list: %w", err)
	}

	limit := internal.Limit(q.Limit)

	where := "TRUE"
	var args []any

	if q.Category != "" {
		args = append(args, string(q.Category))
		where += fmt.Sprintf(" AND category = $%d", len(args))
	}

	if q.Cursor != "" {
		args = append(args, cursor.ReceivedAt, cursor.Path)
		where += fmt.Sprintf(" AND (received_at, stored_path) > ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY received_at, stored_path
		LIMIT $%d
	`, uploadColumns, r.tableName, where, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return mediareceiver.ListResult{}, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	items := make([]mediareceiver.UploadedFile, 0, limit)
	for rows.Next() {
		f, err := scanUpload(rows)
		if err != nil {
			return mediareceiver.ListResult{}, fmt.Errorf("list: scan: %w", err)
		}
		items = append(items, f)
	}

	if err := rows.Err(); err != nil {
		return mediareceiver.ListResult{}, fmt.Errorf("list: rows: %w", err)
	}

	var nextCursor string
	if len(items) > limit {
		// Cursor points to the last item of the current page
		last := items[limit-1]
		nextCursor = internal.EncodeCursor(last.ReceivedAt, last.StoredPath)
		items = items[:limit]
	}

	return mediareceiver.ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *Repo) Summary(ctx context.Context) ([]mediareceiver.CategorySummary, error) {
	query := fmt.Sprintf(`
		SELECT category, COUNT(*), COALESCE(SUM(file_size_bytes), 0)::BIGINT
		FROM %s
		GROUP BY category
		ORDER BY category
	`, r.tableName)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summary []mediareceiver.CategorySummary
	for rows.Next() {
		var s mediareceiver.CategorySummary
		var category string
		if err := rows.Scan(&category, &s.Files, &s.TotalBytes); err != nil {
			return nil, fmt.Errorf("summary: scan: %w", err)
		}
		s.Category = mediareceiver.Category(category)
		summary = append(summary, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: rows: %w", err)
	}

	return summary, nil
}
