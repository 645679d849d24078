// Package page renders the HTML served to visitors.
//
// The upload page comes from an optional external template file and falls
// back to a built-in default. Placeholders are plain tokens replaced by
// Render; tokens outside the recognised set are left untouched.
//
// # Placeholders
//
//   - {{CLIENT_IP}}: address of the visitor
//   - {{VISITOR_NUMBER}}: visitor number assigned to this request
//   - {{TOTAL_FILES}}: files stored so far in this session
//   - {{CURRENT_TIME}}: local time, HH:MM:SS
package page

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	TokenClientIP      = "{{CLIENT_IP}}"
	TokenVisitorNumber = "{{VISITOR_NUMBER}}"
	TokenTotalFiles    = "{{TOTAL_FILES}}"
	TokenCurrentTime   = "{{CURRENT_TIME}}"
)

// TimeLayout is the format of {{CURRENT_TIME}}.
const TimeLayout = "15:04:05"

//go:embed templates/index.html
var defaultTemplate string

// Source tells where a loaded template came from.
type Source string

const (
	SourceExternal Source = "external"
	SourceDefault  Source = "default"
)

// Default returns the built-in upload page template.
func Default() string {
	return defaultTemplate
}

// Engine loads the upload page template.
type Engine struct {
	path string
}

// NewEngine returns an Engine that prefers the template at path. An empty
// path always uses the built-in default.
func NewEngine(path string) *Engine {
	return &Engine{path: path}
}

// Load returns the external template when it can be read and is not empty,
// otherwise the built-in default. The file is read on every call so it can be
// replaced while the server runs.
func (e *Engine) Load() (string, Source) {
	if e.path == "" {
		return defaultTemplate, SourceDefault
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to read template, using default", "path", e.path, "err", err)
		}
		return defaultTemplate, SourceDefault
	}

	if len(strings.TrimSpace(string(data))) == 0 {
		return defaultTemplate, SourceDefault
	}

	return string(data), SourceExternal
}

// Values are the runtime values substituted into a template.
type Values struct {
	ClientIP      string
	VisitorNumber int64
	TotalFiles    int64
	CurrentTime   time.Time
}

// Render replaces every occurrence of each recognised placeholder.
func Render(tmpl string, v Values) string {
	r := strings.NewReplacer(
		TokenClientIP, v.ClientIP,
		TokenVisitorNumber, strconv.FormatInt(v.VisitorNumber, 10),
		TokenTotalFiles, strconv.FormatInt(v.TotalFiles, 10),
		TokenCurrentTime, v.CurrentTime.Format(TimeLayout),
	)
	return r.Replace(tmpl)
}
