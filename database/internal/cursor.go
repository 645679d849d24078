// Package internal holds helpers shared by the ledger backends.
package internal

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sagarc03/mediareceiver"
)

// Cursor identifies the last row of a page in (received_at, stored_path)
// order.
type Cursor struct {
	ReceivedAt time.Time
	Path       string
}

// EncodeCursor returns an opaque, URL-safe cursor.
func EncodeCursor(receivedAt time.Time, path string) string {
	raw := receivedAt.UTC().Format(time.RFC3339Nano) + "|" + path
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string
// yields the zero Cursor. Errors wrap mediareceiver.ErrInvalidInput.
func DecodeCursor(s string) (Cursor, error) {
	if s == "" {
		return Cursor{}, nil
	}

	raw, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, cursorError(errors.New("invalid encoding"))
	}

	ts, path, ok := strings.Cut(string(raw), "|")
	if !ok {
		return Cursor{}, cursorError(errors.New("invalid format"))
	}
	if path == "" {
		return Cursor{}, cursorError(errors.New("empty path"))
	}

	receivedAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, cursorError(fmt.Errorf("invalid timestamp: %w", err))
	}

	return Cursor{ReceivedAt: receivedAt, Path: path}, nil
}

func cursorError(err error) error {
	return fmt.Errorf("decode cursor: %w: %w", mediareceiver.ErrInvalidInput, err)
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Limit clamps a requested page size to [1, MaxLimit], using DefaultLimit
// for non-positive values.
func Limit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	default:
		return n
	}
}
