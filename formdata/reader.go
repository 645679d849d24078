// Package formdata decodes multipart/form-data request bodies as a stream of
// file parts.
//
// Bodies are never buffered in full: each file part is an io.Reader that
// yields the raw part bytes and returns io.EOF only once the boundary that
// ends the part has been read. A reader that stops early (truncated body,
// malformed part headers, missing closing boundary) returns an error instead,
// so callers can commit a destination file exactly when Read reports io.EOF.
//
// # Errors
//
// Errors are split into two classes:
//
//   - format errors (ErrNotMultipart, ErrMissingBoundary, ErrNoFileParts and
//     anything wrapped in ErrMalformed) describe a bad request body
//   - source errors (*SourceError) come from the underlying body reader, such
//     as a reset connection, and carry the original error
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

var (
	// ErrNotMultipart is returned when the content type is not multipart/form-data
	ErrNotMultipart = errors.New("content type is not multipart/form-data")
	// ErrMissingBoundary is returned when the content type has no boundary parameter
	ErrMissingBoundary = errors.New("missing boundary parameter")
	// ErrNoFileParts is returned when the body ends without any file part
	ErrNoFileParts = errors.New("no file parts in body")
	// ErrMalformed wraps structural errors in the body
	ErrMalformed = errors.New("malformed multipart body")
)

// SourceError is an error returned by the body reader itself.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("read body: %v", e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Boundary extracts the boundary token from a multipart/form-data content type.
func Boundary(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", ErrNotMultipart
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// ParseMediaType reports duplicate or malformed parameters; the
		// media type itself is still usable to tell the two failures apart.
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "multipart/form-data") {
			return "", ErrNotMultipart
		}
		return "", fmt.Errorf("%w: %v", ErrMissingBoundary, err)
	}

	if mediaType != "multipart/form-data" {
		return "", ErrNotMultipart
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}

	return boundary, nil
}

// sourceReader remembers the first non-EOF error of the wrapped reader so
// that failures surfacing through mime/multipart can be attributed. It also
// keeps the last bytes read, enough to find the closing delimiter.
type sourceReader struct {
	r    io.Reader
	err  error
	n    int64
	eof  bool
	tail []byte
}

const tailSize = 256

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	if n > 0 {
		s.tail = append(s.tail, p[:n]...)
		if len(s.tail) > tailSize {
			s.tail = s.tail[len(s.tail)-tailSize:]
		}
	}
	if errors.Is(err, io.EOF) {
		s.eof = true
	} else if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

// Reader iterates over the file parts of a multipart/form-data body.
type Reader struct {
	src     *sourceReader
	mr      *multipart.Reader
	closing []byte
	cur     *FilePart
	files   int
}

// NewReader returns a Reader that decodes body using boundary.
func NewReader(body io.Reader, boundary string) *Reader {
	src := &sourceReader{r: body}
	return &Reader{
		src:     src,
		mr:      multipart.NewReader(src, boundary),
		closing: []byte("--" + boundary + "--"),
	}
}

// BytesRead reports how many body bytes have been consumed so far.
func (r *Reader) BytesRead() int64 {
	return r.src.n
}

// NextFile returns the next file part, draining and skipping plain form
// fields. It returns io.EOF after the closing boundary, or ErrNoFileParts if
// the body held no file part at all.
//
// Any unread bytes of the previous part are discarded.
func (r *Reader) NextFile() (*FilePart, error) {
	if r.cur != nil {
		if err := r.cur.drain(); err != nil {
			return nil, err
		}
		r.cur = nil
	}

	for {
		part, err := r.mr.NextRawPart()
		if err != nil {
			// mime/multipart returns a bare io.EOF after the closing
			// boundary but also for a body cut off inside part headers.
			if err == io.EOF { //nolint:errorlint // identity check is intentional
				if !r.sawClosing() {
					if r.src.n == 0 {
						return nil, ErrNoFileParts
					}
					return nil, fmt.Errorf("%w: unexpected end of body", ErrMalformed)
				}
				if r.files == 0 {
					return nil, ErrNoFileParts
				}
				return nil, io.EOF
			}
			if r.src.err == nil && r.src.n == 0 {
				return nil, ErrNoFileParts
			}
			return nil, r.classify(err)
		}

		filename := part.FileName()
		if filename == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, r.classify(err)
			}
			_ = part.Close()
			continue
		}

		r.files++
		r.cur = &FilePart{
			FieldName:   part.FormName(),
			FileName:    filename,
			ContentType: part.Header.Get("Content-Type"),
			part:        part,
			r:           r,
		}
		return r.cur, nil
	}
}

// sawClosing reports whether the body can still end at a closing delimiter:
// either the source has more to give or its last bytes hold the delimiter.
func (r *Reader) sawClosing() bool {
	return !r.src.eof || bytes.Contains(r.src.tail, r.closing)
}

func (r *Reader) classify(err error) error {
	if r.src.err != nil {
		return &SourceError{Err: r.src.err}
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// FilePart is one file field of the body.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string

	part *multipart.Part
	r    *Reader
	n    int64
	done bool
	err  error
}

// Read reads raw part bytes. io.EOF means the part ended at a delimiter;
// only the following NextFile call confirms that the body went on to
// another part or to the closing delimiter.
func (p *FilePart) Read(b []byte) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	if p.done {
		return 0, io.EOF
	}

	n, err := p.part.Read(b)
	p.n += int64(n)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, io.EOF) {
		// mime/multipart also ends a part at a delimiter that is the last
		// thing in the body, with no line break or closing dashes after it.
		if !p.r.sawClosing() {
			p.err = fmt.Errorf("%w: body ends after part %q", ErrMalformed, p.FileName)
			return n, p.err
		}
		p.done = true
		return n, io.EOF
	}
	p.err = p.r.classify(err)
	return n, p.err
}

// Size reports how many bytes of the part have been read.
func (p *FilePart) Size() int64 {
	return p.n
}

func (p *FilePart) drain() error {
	if p.err != nil {
		return p.err
	}
	if p.done {
		return nil
	}
	_, err := io.Copy(io.Discard, p)
	return err
}
