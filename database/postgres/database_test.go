package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/database/postgres"
)

func newUpload(path string, category mediareceiver.Category, size int64, at time.Time) mediareceiver.UploadedFile {
	return mediareceiver.UploadedFile{
		ID:            uuid.New(),
		OriginalName:  "orig_" + path,
		SanitizedName: path,
		Category:      category,
		SizeBytes:     size,
		StoredPath:    string(category) + "/" + path,
		Etag:          "etag-" + path,
		ClientIP:      "192.168.1.7",
		ReceivedAt:    at,
	}
}

func TestDatabase_Lifecycle(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()

	tableName := "lifecycle_" + getRandomString(t)
	db, err := postgres.Connect(ctx, getDSN(pool), mediareceiver.Tables{Uploads: tableName})
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
		_ = postgres.DropTables(ctx, pool, tableName)
	}()

	require.NoError(t, db.Ping(ctx))
	assert.Error(t, db.Validate(ctx), "validate should fail before migration")

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx), "migrate should be idempotent")
	assert.NoError(t, db.Validate(ctx))
}

func TestDatabase_Validate_MissingColumns(t *testing.T) {
	pool := getSharedTestDatabase(t)
	ctx := context.Background()

	tableName := "incomplete_" + getRandomString(t)
	_, err := pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE %s (id UUID PRIMARY KEY, stored_path TEXT)`, tableName))
	require.NoError(t, err)
	defer func() { _ = postgres.DropTables(ctx, pool, tableName) }()

	db, err := postgres.Connect(ctx, getDSN(pool), mediareceiver.Tables{Uploads: tableName})
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	err = db.Validate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
	assert.Contains(t, err.Error(), "stored_path: expected nullable=false, got nullable=true")
}

func TestNewRepo_InvalidTables(t *testing.T) {
	_, err := postgres.NewRepo(nil, mediareceiver.Tables{Uploads: "Bad Name"})
	assert.Error(t, err)
}

func TestRepo_RecordAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)

	file := newUpload("20240102_030405_a.jpg", mediareceiver.CategoryImages, 2048, at)

	got, inserted, err := repo.Record(ctx, file)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, file.ID, got.ID)
	assert.True(t, at.Equal(got.ReceivedAt))

	fetched, err := repo.Get(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, file.StoredPath, fetched.StoredPath)
	assert.Equal(t, mediareceiver.CategoryImages, fetched.Category)
	assert.Equal(t, int64(2048), fetched.SizeBytes)
	assert.Equal(t, "192.168.1.7", fetched.ClientIP)

	dup := file
	dup.ID = uuid.New()
	existing, inserted, err := repo.Record(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, file.ID, existing.ID)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, mediareceiver.ErrNotFound)
}

func TestRepo_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	files := []mediareceiver.UploadedFile{
		newUpload("c.jpg", mediareceiver.CategoryImages, 3, base.Add(time.Second)),
		newUpload("a.mp4", mediareceiver.CategoryVideos, 1, base),
		newUpload("b.jpg", mediareceiver.CategoryImages, 2, base.Add(time.Second)),
		newUpload("d.mp3", mediareceiver.CategoryAudio, 4, base.Add(2*time.Second)),
	}
	for _, f := range files {
		_, _, err := repo.Record(ctx, f)
		require.NoError(t, err)
	}

	var seen []string
	cursor := ""
	for {
		result, err := repo.List(ctx, mediareceiver.ListQuery{Limit: 3, Cursor: cursor})
		require.NoError(t, err)
		for _, it := range result.Items {
			seen = append(seen, it.StoredPath)
		}
		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}
	assert.Equal(t, []string{"videos/a.mp4", "images/b.jpg", "images/c.jpg", "audio/d.mp3"}, seen)

	images, err := repo.List(ctx, mediareceiver.ListQuery{Category: mediareceiver.CategoryImages, Limit: 1})
	require.NoError(t, err)
	require.Len(t, images.Items, 1)
	assert.Equal(t, "images/b.jpg", images.Items[0].StoredPath)

	rest, err := repo.List(ctx, mediareceiver.ListQuery{Category: mediareceiver.CategoryImages, Limit: 1, Cursor: images.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 1)
	assert.Equal(t, "images/c.jpg", rest.Items[0].StoredPath)
	assert.Empty(t, rest.NextCursor)

	_, err = repo.List(ctx, mediareceiver.ListQuery{Cursor: "%%%"})
	assert.ErrorIs(t, err, mediareceiver.ErrInvalidInput)
}

func TestRepo_Summary(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	at := time.Now()

	_, _, err := repo.Record(ctx, newUpload("a.jpg", mediareceiver.CategoryImages, 100, at))
	require.NoError(t, err)
	_, _, err = repo.Record(ctx, newUpload("b.jpg", mediareceiver.CategoryImages, 150, at))
	require.NoError(t, err)
	_, _, err = repo.Record(ctx, newUpload("c.pdf", mediareceiver.CategoryDocuments, 7, at))
	require.NoError(t, err)

	summary, err := repo.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []mediareceiver.CategorySummary{
		{Category: mediareceiver.CategoryDocuments, Files: 1, TotalBytes: 7},
		{Category: mediareceiver.CategoryImages, Files: 2, TotalBytes: 250},
	}, summary)
}
