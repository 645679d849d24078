// Package sqlite implements the upload ledger using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/database/internal"
)

// timeLayout is fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const uploadColumns = `id, stored_path, original_name, sanitized_name, category, etag, file_size_bytes, client_ip, received_at`

type repo struct {
	db        *sql.DB
	tableName string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (mediareceiver.UploadedFile, error) {
	var f mediareceiver.UploadedFile
	var idStr, category, receivedAt string

	err := row.Scan(&idStr, &f.StoredPath, &f.OriginalName, &f.SanitizedName, &category,
		&f.Etag, &f.SizeBytes, &f.ClientIP, &receivedAt)
	if err != nil {
		return mediareceiver.UploadedFile{}, err
	}

	f.ID, err = uuid.Parse(idStr)
	if err != nil {
		return mediareceiver.UploadedFile{}, fmt.Errorf("parse uuid: %w", err)
	}

	f.ReceivedAt, err = time.Parse(timeLayout, receivedAt)
	if err != nil {
		return mediareceiver.UploadedFile{}, fmt.Errorf("parse received_at: %w", err)
	}

	f.Category = mediareceiver.Category(category)
	return f, nil
}

func (r *repo) Record(ctx context.Context, file mediareceiver.UploadedFile) (mediareceiver.UploadedFile, bool, error) {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if file.ReceivedAt.IsZero() {
		file.ReceivedAt = time.Now()
	}
	file.ReceivedAt = file.ReceivedAt.UTC()

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (stored_path) DO NOTHING`, r.tableName, uploadColumns)

	result, err := r.db.ExecContext(ctx, query,
		file.ID.String(), file.StoredPath, file.OriginalName, file.SanitizedName, string(file.Category),
		file.Etag, file.SizeBytes, file.ClientIP, file.ReceivedAt.Format(timeLayout),
	)
	if err != nil {
		return mediareceiver.UploadedFile{}, false, fmt.Errorf("record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return mediareceiver.UploadedFile{}, false, fmt.Errorf("record: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		existing, err := r.getBy(ctx, "stored_path", file.StoredPath)
		if err != nil {
			return mediareceiver.UploadedFile{}, false, fmt.Errorf("record: get existing: %w", err)
		}
		return existing, false, nil
	}

	return file, true, nil
}

func (r *repo) Get(ctx context.Context, id uuid.UUID) (mediareceiver.UploadedFile, error) {
	f, err := r.getBy(ctx, "id", id.String())
	if err != nil {
		return mediareceiver.UploadedFile{}, fmt.Errorf("get: %w", err)
	}
	return f, nil
}

func (r *repo) getBy(ctx context.Context, column, value string) (mediareceiver.UploadedFile, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table and column names are constants
		`SELECT %s FROM %s WHERE %s = ?`, uploadColumns, r.tableName, column)

	f, err := scanUpload(r.db.QueryRowContext(ctx, query, value))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return mediareceiver.UploadedFile{}, mediareceiver.ErrNotFound
		}
		return mediareceiver.UploadedFile{}, err
	}
	return f, nil
}

func (r *repo) List(ctx context.Context, q mediareceiver.ListQuery) (mediareceiver.ListResult, error) {
	cursor, err := internal.DecodeCursor(q.Cursor)
	if err != nil {
		return mediareceiver.ListResult{}, fmt.Errorf("list: %w", err)
	}

	limit := internal.Limit(q.Limit)

	where := "1 = 1"
	var args []any

	if q.Category != "" {
		where += " AND category = ?"
		args = append(args, string(q.Category))
	}

	if q.Cursor != "" {
		where += " AND (received_at, stored_path) > (?, ?)"
		args = append(args, cursor.ReceivedAt.UTC().Format(timeLayout), cursor.Path)
	}

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE %s
		ORDER BY received_at, stored_path
		LIMIT ?`, uploadColumns, r.tableName, where)
	args = append(args, limit+1)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return mediareceiver.ListResult{}, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

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

func (r *repo) Summary(ctx context.Context) ([]mediareceiver.CategorySummary, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT category, COUNT(*), COALESCE(SUM(file_size_bytes), 0)
		FROM %s
		GROUP BY category
		ORDER BY category`, r.tableName)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
