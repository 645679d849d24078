package mediareceiver

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Category is the storage bucket an uploaded file is placed in.
type Category string

const (
	CategoryImages    Category = "images"
	CategoryVideos    Category = "videos"
	CategoryAudio     Category = "audio"
	CategoryDocuments Category = "documents"
	CategoryOther     Category = "other"
)

// Categories lists every storage bucket in display order.
var Categories = []Category{
	CategoryImages,
	CategoryVideos,
	CategoryAudio,
	CategoryDocuments,
	CategoryOther,
}

func (c Category) IsValid() bool {
	switch c {
	case CategoryImages, CategoryVideos, CategoryAudio, CategoryDocuments, CategoryOther:
		return true
	default:
		return false
	}
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.IsValid() {
		return "", fmt.Errorf("invalid category: %s (valid categories: images, videos, audio, documents, other): %w", s, ErrInvalidInput)
	}
	return c, nil
}

// UploadedFile describes one file part that was fully written to storage.
// It is never mutated after creation.
type UploadedFile struct {
	ID            uuid.UUID `json:"id"`
	OriginalName  string    `json:"original_name"`
	SanitizedName string    `json:"sanitized_name"`
	Category      Category  `json:"category"`
	SizeBytes     int64     `json:"size_bytes"`
	StoredPath    string    `json:"stored_path"`
	Etag          string    `json:"etag"`
	ClientIP      string    `json:"client_ip,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// StoredFile is the result of committing a pending file to its final path.
type StoredFile struct {
	Name         string
	Path         string
	BytesWritten int64
	Etag         string
}

// StoredEntry is a file found while walking the storage tree.
type StoredEntry struct {
	Path     string
	Category Category
	Size     int64
	Etag     string
	ModTime  time.Time
}

type ListQuery struct {
	Category Category
	Limit    int
	Cursor   string
}

type ListResult struct {
	Items      []UploadedFile `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// CategorySummary aggregates ledger entries for one category.
type CategorySummary struct {
	Category   Category `json:"category"`
	Files      int64    `json:"files"`
	TotalBytes int64    `json:"total_bytes"`
}

// Status is a point-in-time view of a running (or stopped) server.
type Status struct {
	Running  bool   `json:"running"`
	Addr     string `json:"addr,omitempty"`
	Visitors int64  `json:"visitors"`
	Files    int64  `json:"files"`
}

// Tables holds configurable table names for the upload ledger.
type Tables struct {
	Uploads string `mapstructure:"uploads" yaml:"uploads"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Uploads == "" {
		return errors.New("validate tables: uploads table name cannot be empty")
	}

	if !IsValidTableName(t.Uploads) {
		return fmt.Errorf("validate tables: invalid uploads table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Uploads)
	}

	return nil
}
