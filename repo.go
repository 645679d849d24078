package mediareceiver

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// UploadRepo defines the interface for the upload ledger, an optional index
// of every file the server has stored. Implementations must handle
// concurrent access safely.
//
// All methods accept a context for cancellation and timeout control.
type UploadRepo interface {
	// Record inserts a ledger entry for a stored file.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - file: The uploaded file; a zero ID is replaced with a new one
	//
	// Returns:
	//   - UploadedFile: The recorded entry (or the existing one)
	//   - bool: true if a new entry was created, false if the stored path was already recorded
	//   - error: Any database error
	Record(ctx context.Context, file UploadedFile) (UploadedFile, bool, error)

	// Get retrieves a ledger entry by ID.
	//
	// Returns ErrNotFound if no entry has that ID.
	Get(ctx context.Context, id uuid.UUID) (UploadedFile, error)

	// List retrieves a page of entries ordered by receive time and stored path.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - q: ListQuery with optional category filter, limit, and cursor for pagination
	//
	// Returns:
	//   - ListResult: Matching entries and the cursor for the next page
	//   - error: Any database error, or ErrInvalidInput for a malformed cursor
	List(ctx context.Context, q ListQuery) (ListResult, error)

	// Summary returns file counts and total bytes per category.
	// Categories without entries are omitted.
	Summary(ctx context.Context) ([]CategorySummary, error)
}

// PendingFile is a destination file being streamed to. Exactly one of
// Commit or Discard must be called.
type PendingFile interface {
	io.Writer

	// Commit makes the file visible under its final name.
	// On error nothing is left on disk.
	Commit() (StoredFile, error)

	// Discard removes the partial file.
	Discard() error
}

// FileStorage defines the destination filesystem for uploads.
type FileStorage interface {
	// Create opens a pending file that will be committed as name under the
	// category directory. The category directory is created on demand.
	Create(ctx context.Context, category Category, name string) (PendingFile, error)

	// List walks the storage tree and returns every stored file.
	List(ctx context.Context) ([]StoredEntry, error)
}

// Observer receives one-way notifications from a running server.
// Implementations must not block; the server may call them from any
// connection goroutine.
type Observer interface {
	OnStatusChanged(running bool)
	OnVisitorCount(count int64)
	OnFileCount(count int64)
	OnLog(message string)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) OnStatusChanged(bool) {}
func (NopObserver) OnVisitorCount(int64) {}
func (NopObserver) OnFileCount(int64)    {}
func (NopObserver) OnLog(string)         {}
