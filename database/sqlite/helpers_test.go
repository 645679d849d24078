package sqlite_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/database/sqlite"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// setupTestRepo creates a repo with a unique table name for test isolation
func setupTestRepo(t *testing.T) mediareceiver.UploadRepo {
	t.Helper()

	ctx := context.Background()
	tables := mediareceiver.Tables{Uploads: "uploads_" + getRandomString(t)}

	db, err := sqlite.Connect(ctx, ":memory:", tables)
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx), "failed to migrate")

	return db.GetRepo()
}

func newUpload(path string, category mediareceiver.Category, size int64, at time.Time) mediareceiver.UploadedFile {
	return mediareceiver.UploadedFile{
		ID:            uuid.New(),
		OriginalName:  "orig_" + path,
		SanitizedName: path,
		Category:      category,
		SizeBytes:     size,
		StoredPath:    string(category) + "/" + path,
		Etag:          "etag-" + path,
		ClientIP:      "10.0.0.5",
		ReceivedAt:    at,
	}
}
