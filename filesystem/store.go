// Package filesystem provides the destination storage for uploads.
// Files are streamed into hidden temp files inside their category directory
// and renamed into place on commit, so a partially received file is never
// visible under its final name. Etags are SHA256-based.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/sagarc03/mediareceiver"
)

// AppDir is the directory created under the storage root that holds the
// category directories.
const AppDir = "MediaReceiverPro"

const (
	tmpPrefix       = ".t"
	maxNameAttempts = 10000
)

// Store provides file system storage operations.
type Store struct {
	root *os.Root

	// mu serialises name reservation and rename so that two commits of the
	// same name never target the same path.
	mu sync.Mutex
}

// NewFileStorage creates a new Store with the given root directory.
// The root provides sandboxed file operations preventing path traversal.
func NewFileStorage(root *os.Root) *Store {
	return &Store{root: root}
}

// Open creates <storageRoot>/MediaReceiverPro if needed and returns a Store
// rooted there. The returned func closes the root.
func Open(storageRoot string) (*Store, func(), error) {
	dir := filepath.Join(storageRoot, AppDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create storage directory: %w", err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage root: %w", err)
	}

	closeRoot := func() { _ = root.Close() }
	return NewFileStorage(root), closeRoot, nil
}

// Create opens a pending file that commits to <category>/<name>.
func (s *Store) Create(ctx context.Context, category mediareceiver.Category, name string) (mediareceiver.PendingFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !category.IsValid() {
		return nil, fmt.Errorf("create: %w: category %q", mediareceiver.ErrInvalidInput, category)
	}

	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tmpPrefix) {
		return nil, fmt.Errorf("create: %w: name %q", mediareceiver.ErrInvalidInput, name)
	}

	dir := string(category)
	if err := s.root.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create category directory: %w", err)
	}

	tmp := path.Join(dir, tmpFileName())
	f, err := s.root.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("could not open temp file: %w", err)
	}

	return &pendingFile{
		store: s,
		f:     f,
		tmp:   tmp,
		dir:   dir,
		name:  name,
		h:     sha256.New(),
	}, nil
}

type pendingFile struct {
	store *Store
	f     *os.File
	tmp   string
	dir   string
	name  string
	h     hash.Hash
	n     int64
	done  bool
}

func (p *pendingFile) Write(b []byte) (int, error) {
	if p.done {
		return 0, os.ErrClosed
	}

	n, err := p.f.Write(b)
	p.h.Write(b[:n])
	p.n += int64(n)
	return n, err
}

// Commit syncs the temp file and renames it to a free name in the category
// directory. If name is taken, _1, _2, ... is inserted before the extension.
func (p *pendingFile) Commit() (mediareceiver.StoredFile, error) {
	if p.done {
		return mediareceiver.StoredFile{}, os.ErrClosed
	}
	p.done = true

	success := false
	defer func() {
		if !success {
			if rmErr := p.store.root.Remove(p.tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	if err := p.f.Sync(); err != nil {
		_ = p.f.Close()
		return mediareceiver.StoredFile{}, fmt.Errorf("could not sync written file: %w", err)
	}

	if err := p.f.Close(); err != nil {
		return mediareceiver.StoredFile{}, fmt.Errorf("could not close written file: %w", err)
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	name, err := p.store.freeName(p.dir, p.name)
	if err != nil {
		return mediareceiver.StoredFile{}, err
	}

	final := path.Join(p.dir, name)
	if err := p.store.root.Rename(p.tmp, final); err != nil {
		return mediareceiver.StoredFile{}, fmt.Errorf("failed to rename file: %w", err)
	}

	success = true

	return mediareceiver.StoredFile{
		Name:         name,
		Path:         final,
		BytesWritten: p.n,
		Etag:         hex.EncodeToString(p.h.Sum(nil)),
	}, nil
}

func (p *pendingFile) Discard() error {
	if p.done {
		return nil
	}
	p.done = true

	if closeErr := p.f.Close(); closeErr != nil {
		slog.Warn("failed to close tmp file", "err", closeErr)
	}

	if err := p.store.root.Remove(p.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not remove tmp file: %w", err)
	}
	return nil
}

// freeName must be called with s.mu held.
func (s *Store) freeName(dir, name string) (string, error) {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 1; i <= maxNameAttempts; i++ {
		_, err := s.root.Lstat(path.Join(dir, candidate))
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("could not check destination: %w", err)
		}
		candidate = stem + "_" + strconv.Itoa(i) + ext
	}

	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}

// List recursively walks the category directories and returns all stored
// files with their size, SHA256-based etag and category. Temp files and
// entries outside the category directories are skipped.
// This is intended for one-time reindex operations.
func (s *Store) List(ctx context.Context) ([]mediareceiver.StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []mediareceiver.StoredEntry

	for _, category := range mediareceiver.Categories {
		err := s.walkDir(ctx, category, string(category), &entries)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}
	}

	return entries, nil
}

func (s *Store) walkDir(ctx context.Context, category mediareceiver.Category, dir string, entries *[]mediareceiver.StoredEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dirEntries, err := fs.ReadDir(s.root.FS(), dir)
	if err != nil {
		return err
	}

	for _, entry := range dirEntries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if strings.HasPrefix(entry.Name(), tmpPrefix) {
			continue
		}

		entryPath := path.Join(dir, entry.Name())

		if entry.IsDir() {
			if err := s.walkDir(ctx, category, entryPath, entries); err != nil {
				return err
			}
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("walk dir: %w", err)
		}

		etag, err := s.etag(entryPath)
		if err != nil {
			return fmt.Errorf("walk dir: %w", err)
		}

		*entries = append(*entries, mediareceiver.StoredEntry{
			Path:     entryPath,
			Category: category,
			Size:     info.Size(),
			Etag:     etag,
			ModTime:  info.ModTime(),
		})
	}

	return nil
}

func (s *Store) etag(p string) (string, error) {
	f, err := s.root.Open(p)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	_, copyErr := io.Copy(h, f)

	if closeErr := f.Close(); closeErr != nil {
		slog.Warn("failed to close file", "path", p, "err", closeErr)
	}

	if copyErr != nil {
		return "", copyErr
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func tmpFileName() string {
	return fmt.Sprintf("%s%s", tmpPrefix, uuid.New().String())
}
