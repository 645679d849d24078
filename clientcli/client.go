package clientcli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sagarc03/mediareceiver"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 5 * time.Minute

	// DefaultFieldName is the multipart field files are sent in.
	DefaultFieldName = "file"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Client talks to a running media receiver: the upload server for Send and
// the status API for Status, List and Summary.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a new Client for endpoint, e.g. http://192.168.1.20:8080.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, ErrEndpointRequired
	}

	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	c := &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Send uploads local files to the upload server, one request per file.
// It continues after a failed file; per-file errors are in the results.
func (c *Client) Send(ctx context.Context, opts SendOptions) ([]SendResult, error) {
	if len(opts.Paths) == 0 {
		return nil, ErrNoPaths
	}

	field := opts.FieldName
	if field == "" {
		field = DefaultFieldName
	}

	var results []SendResult
	for _, p := range opts.Paths {
		if p == "" {
			return results, fmt.Errorf("send: %w", ErrEmptyPath)
		}

		files, err := collectFiles(p, opts.Recursive)
		if err != nil {
			results = append(results, SendResult{LocalPath: p, Err: err})
			continue
		}

		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			results = append(results, c.sendSingle(ctx, f, field))
		}
	}

	return results, nil
}

// HasSendErrors returns true if any file failed to send.
func HasSendErrors(results []SendResult) bool {
	for _, r := range results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// sendSingle posts one file as a multipart/form-data body with an exact
// Content-Length; the upload server does not accept chunked bodies.
func (c *Client) sendSingle(ctx context.Context, localPath, field string) SendResult {
	name := filepath.Base(localPath)
	result := SendResult{LocalPath: localPath, Name: name}

	file, err := os.Open(localPath) //#nosec G304 -- localPath is user-provided input
	if err != nil {
		result.Err = fmt.Errorf("open file: %w", err)
		return result
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		result.Err = fmt.Errorf("stat file: %w", err)
		return result
	}
	result.Size = info.Size()

	var envelope bytes.Buffer
	mw := multipart.NewWriter(&envelope)
	if _, err = mw.CreateFormFile(field, name); err != nil {
		result.Err = fmt.Errorf("build form: %w", err)
		return result
	}
	headLen := envelope.Len()
	if err = mw.Close(); err != nil {
		result.Err = fmt.Errorf("build form: %w", err)
		return result
	}
	head := envelope.Bytes()[:headLen]
	tail := envelope.Bytes()[headLen:]

	body := io.MultiReader(bytes.NewReader(head), io.LimitReader(file, info.Size()), bytes.NewReader(tail))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", body)
	if err != nil {
		result.Err = fmt.Errorf("create request: %w", err)
		return result
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.ContentLength = int64(len(head)) + info.Size() + int64(len(tail))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Err = fmt.Errorf("do request: %w", err)
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		result.Err = parseServerError(resp.StatusCode, respBody)
	}

	return result
}

// Status fetches the server status from the status API.
func (c *Client) Status(ctx context.Context) (*StatusInfo, error) {
	var status StatusInfo
	if err := c.getJSON(ctx, "/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Summary fetches per-category ledger totals from the status API.
func (c *Client) Summary(ctx context.Context) ([]mediareceiver.CategorySummary, error) {
	var summary []mediareceiver.CategorySummary
	if err := c.getJSON(ctx, "/uploads/summary", nil, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// List lists ledger entries through the status API.
// If opts.All is true, paginates through all results.
func (c *Client) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return CollectPages(ctx, c.listPage, opts)
}

// PageFunc fetches one page of ledger entries.
type PageFunc func(ctx context.Context, q mediareceiver.ListQuery) (mediareceiver.ListResult, error)

// CollectPages fetches one page, or every page when opts.All is set.
func CollectPages(ctx context.Context, fetch PageFunc, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	q := mediareceiver.ListQuery{Category: opts.Category, Limit: limit, Cursor: opts.Cursor}

	if !opts.All {
		page, err := fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		return &ListResult{ListResult: page}, nil
	}

	var all []mediareceiver.UploadedFile
	for {
		// Check context cancellation
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, q)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)

		if page.NextCursor == "" {
			break
		}
		q.Cursor = page.NextCursor
	}

	return &ListResult{ListResult: mediareceiver.ListResult{Items: all}}, nil
}

func (c *Client) listPage(ctx context.Context, q mediareceiver.ListQuery) (mediareceiver.ListResult, error) {
	query := url.Values{}
	if q.Category != "" {
		query.Set("category", string(q.Category))
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Cursor != "" {
		query.Set("cursor", q.Cursor)
	}

	var page mediareceiver.ListResult
	if err := c.getJSON(ctx, "/uploads", query, &page); err != nil {
		return mediareceiver.ListResult{}, err
	}
	return page, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseServerError(resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// collectFiles expands path into the regular files to send.
func collectFiles(path string, recursive bool) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat local path: %w", err)
	}

	if !info.IsDir() {
		return []string{path}, nil
	}

	if !recursive {
		return nil, fmt.Errorf("%s is a directory (use -r to send recursively)", path)
	}

	var files []string
	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk directory: %w", walkErr)
	}

	return files, nil
}

// parseServerError extracts the error from a server response. The status
// API answers with a JSON envelope; the upload server with an HTML page.
func parseServerError(statusCode int, body []byte) error {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Code = envelope.Error
		apiErr.Message = envelope.Message
	}

	return apiErr
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return "server error: " + strconv.Itoa(e.StatusCode) + " - " + e.Message
	}
	return "server error: " + strconv.Itoa(e.StatusCode) + " " + http.StatusText(e.StatusCode)
}

// Is reports whether target matches this error.
// It matches if target is an *APIError with the same StatusCode and, when
// the target sets one, the same Code.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.StatusCode == e.StatusCode && (t.Code == "" || t.Code == e.Code)
}

// Sentinel errors for common API error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound is returned when the requested resource does not exist (404).
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound}

	// ErrLedgerDisabled is returned when the server keeps no upload ledger.
	ErrLedgerDisabled = &APIError{StatusCode: http.StatusNotFound, Code: "ledger_disabled"}

	// ErrTooLarge is returned when the upload server rejects a body over its size limit (413).
	ErrTooLarge = &APIError{StatusCode: http.StatusRequestEntityTooLarge}

	// ErrBusy is returned when the upload server is at its connection limit (503).
	ErrBusy = &APIError{StatusCode: http.StatusServiceUnavailable}
)
