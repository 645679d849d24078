package mediareceiver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/sagarc03/mediareceiver/formdata"
)

// UploadService turns multipart request bodies into stored files.
// It combines the decoder, the classifier, the destination storage and the
// optional upload ledger.
type UploadService struct {
	repo          UploadRepo
	storage       FileStorage
	now           func() time.Time
	recordTimeout time.Duration
}

// ServiceConfig holds configuration options for UploadService.
type ServiceConfig struct {
	// Now returns the receive time used for naming (default: time.Now).
	Now func() time.Time
	// RecordTimeout bounds ledger writes after a commit (default: 10s).
	RecordTimeout time.Duration
}

// Upload is one multipart request body to receive.
type Upload struct {
	ContentType string
	Body        io.Reader
	ClientIP    string
}

// NewUploadService creates an UploadService. repo may be nil, in which case
// no ledger is kept.
func NewUploadService(repo UploadRepo, storage FileStorage, cfg ServiceConfig) (*UploadService, error) {
	if storage == nil {
		return nil, errors.New("new upload service: storage is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = 10 * time.Second
	}

	return &UploadService{
		repo:          repo,
		storage:       storage,
		now:           now,
		recordTimeout: recordTimeout,
	}, nil
}

// HasLedger reports whether uploads are recorded in a ledger.
func (s *UploadService) HasLedger() bool {
	return s.repo != nil
}

// Receive decodes up.Body and streams every file part into storage.
//
// The method performs the following steps for each file part:
//  1. Classifies the original name and derives the timestamped safe name
//  2. Streams the part bytes into a pending file under the category directory
//  3. Holds the written file until the decoder has read past the part's
//     delimiter to the next part headers or the closing delimiter
//  4. Commits it, calls onStored with the committed file, then records it in
//     the ledger
//
// A part that fails before commit is discarded and never reported. A body
// that stops after a part's delimiter discards that part too. Parts
// committed before a later failure stay on disk and were already reported.
//
// Errors are *StageError values:
//   - StageParse/KindClient: bad content type, malformed or truncated body, no file parts
//   - StageRead/KindAborted: the body reader failed (peer went away)
//   - StageWrite/KindServer: the destination filesystem failed
func (s *UploadService) Receive(ctx context.Context, up Upload, onStored func(UploadedFile)) ([]UploadedFile, error) {
	boundary, err := formdata.Boundary(up.ContentType)
	if err != nil {
		return nil, ParseError(fmt.Errorf("receive: %w: %w", ErrInvalidInput, err))
	}

	r := formdata.NewReader(up.Body, boundary)

	var (
		files []UploadedFile
		held  *heldFile
	)
	defer func() {
		if held != nil {
			held.discard()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return files, ReadError(KindAborted, fmt.Errorf("receive: %w", err))
		}

		part, err := r.NextFile()
		if err != nil && !errors.Is(err, io.EOF) {
			return files, decodeError(err)
		}

		// The held part is only complete once the body went on to another
		// part or to the closing delimiter.
		if held != nil {
			file, commitErr := s.commit(held)
			held = nil
			if commitErr != nil {
				return files, commitErr
			}

			if onStored != nil {
				onStored(file)
			}
			s.record(file)

			files = append(files, file)
		}

		if err != nil {
			return files, nil
		}

		held, err = s.write(ctx, part.FileName, part, up.ClientIP)
		if err != nil {
			return files, err
		}
	}
}

// Import stores one local file the same way an uploaded file part is stored
// and records it in the ledger.
func (s *UploadService) Import(ctx context.Context, name string, r io.Reader) (UploadedFile, error) {
	if BaseName(name) == "" {
		return UploadedFile{}, fmt.Errorf("import: %w: empty name", ErrInvalidInput)
	}

	file, err := s.store(ctx, name, r, "")
	if err != nil {
		return UploadedFile{}, err
	}

	s.record(file)
	return file, nil
}

func (s *UploadService) store(ctx context.Context, name string, r io.Reader, clientIP string) (UploadedFile, error) {
	held, err := s.write(ctx, name, r, clientIP)
	if err != nil {
		return UploadedFile{}, err
	}
	return s.commit(held)
}

// heldFile is a fully written pending file waiting for its commit.
type heldFile struct {
	pending    PendingFile
	original   string
	sanitized  string
	category   Category
	clientIP   string
	receivedAt time.Time
}

func (h *heldFile) discard() {
	if err := h.pending.Discard(); err != nil {
		slog.Warn("failed to discard partial upload", "name", h.sanitized, "err", err)
	}
}

func (s *UploadService) write(ctx context.Context, name string, r io.Reader, clientIP string) (*heldFile, error) {
	receivedAt := s.now()
	original := BaseName(name)
	category := Classify(original)
	sanitized := SanitizeName(original, receivedAt)

	pending, err := s.storage.Create(ctx, category, sanitized)
	if err != nil {
		return nil, WriteError(fmt.Errorf("receive %s: create: %w", original, err))
	}

	held := &heldFile{
		pending:    pending,
		original:   original,
		sanitized:  sanitized,
		category:   category,
		clientIP:   clientIP,
		receivedAt: receivedAt,
	}

	w := &trackingWriter{w: pending}
	if _, copyErr := io.Copy(w, r); copyErr != nil {
		held.discard()
		if w.err != nil {
			return nil, WriteError(fmt.Errorf("receive %s: write: %w", original, w.err))
		}
		return nil, decodeError(copyErr)
	}

	return held, nil
}

func (s *UploadService) commit(h *heldFile) (UploadedFile, error) {
	stored, err := h.pending.Commit()
	if err != nil {
		return UploadedFile{}, WriteError(fmt.Errorf("receive %s: commit: %w", h.original, err))
	}

	return UploadedFile{
		ID:            uuid.New(),
		OriginalName:  h.original,
		SanitizedName: stored.Name,
		Category:      h.category,
		SizeBytes:     stored.BytesWritten,
		StoredPath:    stored.Path,
		Etag:          stored.Etag,
		ClientIP:      h.clientIP,
		ReceivedAt:    h.receivedAt,
	}, nil
}

// record writes the ledger entry on its own context: the upload is already
// committed and counted, so a cancelled request must not skip it.
func (s *UploadService) record(file UploadedFile) {
	if s.repo == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.recordTimeout)
	defer cancel()

	if _, _, err := s.repo.Record(ctx, file); err != nil {
		slog.Warn("failed to record upload in ledger", "path", file.StoredPath, "err", err)
	}
}

func decodeError(err error) error {
	var srcErr *formdata.SourceError
	switch {
	case errors.As(err, &srcErr):
		return ReadError(KindAborted, fmt.Errorf("receive: %w", err))
	case errors.Is(err, formdata.ErrNoFileParts):
		return ParseError(fmt.Errorf("receive: %w", ErrNoFileParts))
	default:
		return ParseError(fmt.Errorf("receive: %w: %w", ErrInvalidInput, err))
	}
}

type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// Reindex records every stored file that is missing from the ledger.
// It returns the number of new ledger entries.
//
// Note: This operation is not atomic. If it fails partway through, some files
// may have been recorded while others were not.
func (s *UploadService) Reindex(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("reindex: %w", ErrLedgerDisabled)
	}

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	entries, err := s.storage.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("reindex: %w", err)
	}

	added := 0
	for _, e := range entries {
		_, inserted, err := s.repo.Record(ctx, fileFromEntry(e))
		if err != nil {
			return added, fmt.Errorf("reindex '%s': %w", e.Path, err)
		}
		if inserted {
			added++
		}
	}

	return added, nil
}

// fileFromEntry rebuilds ledger data from a stored file. The receive time is
// read back from the name prefix when present.
func fileFromEntry(e StoredEntry) UploadedFile {
	name := path.Base(e.Path)
	original := name
	receivedAt := e.ModTime

	if len(name) > len(TimestampLayout)+1 && name[len(TimestampLayout)] == '_' {
		if t, err := time.ParseInLocation(TimestampLayout, name[:len(TimestampLayout)], time.Local); err == nil {
			receivedAt = t
			original = name[len(TimestampLayout)+1:]
		}
	}

	return UploadedFile{
		ID:            uuid.New(),
		OriginalName:  original,
		SanitizedName: name,
		Category:      e.Category,
		SizeBytes:     e.Size,
		StoredPath:    e.Path,
		Etag:          e.Etag,
		ReceivedAt:    receivedAt,
	}
}

// List returns a page of ledger entries.
func (s *UploadService) List(ctx context.Context, q ListQuery) (ListResult, error) {
	if s.repo == nil {
		return ListResult{}, fmt.Errorf("list uploads: %w", ErrLedgerDisabled)
	}

	if q.Category != "" && !q.Category.IsValid() {
		return ListResult{}, fmt.Errorf("list uploads: %w: category %q", ErrInvalidInput, q.Category)
	}

	result, err := s.repo.List(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list uploads: %w", err)
	}
	return result, nil
}

// Get returns one ledger entry.
func (s *UploadService) Get(ctx context.Context, id uuid.UUID) (UploadedFile, error) {
	if s.repo == nil {
		return UploadedFile{}, fmt.Errorf("get upload: %w", ErrLedgerDisabled)
	}

	file, err := s.repo.Get(ctx, id)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("get upload: %w", err)
	}
	return file, nil
}

// Summary returns per-category totals from the ledger.
func (s *UploadService) Summary(ctx context.Context) ([]CategorySummary, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("summary: %w", ErrLedgerDisabled)
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	return summary, nil
}
