package clientcli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sagarc03/mediareceiver"
)

// Formatter formats results for output.
type Formatter interface {
	FormatSend(w io.Writer, results []SendResult) error
	FormatStatus(w io.Writer, status *StatusInfo) error
	FormatList(w io.Writer, result *ListResult) error
	FormatSummary(w io.Writer, summary []mediareceiver.CategorySummary) error
	FormatError(w io.Writer, err error) error
}

// NewFormatter returns the appropriate formatter based on flags.
func NewFormatter(jsonOutput, quiet bool) Formatter {
	if jsonOutput {
		return &JSONFormatter{}
	}
	return &HumanFormatter{Quiet: quiet}
}

// HumanFormatter outputs human-readable text.
type HumanFormatter struct {
	Quiet bool
}

// FormatSend formats send results as human-readable text.
func (f *HumanFormatter) FormatSend(w io.Writer, results []SendResult) error {
	for i := range results {
		r := &results[i]
		if r.Err != nil {
			_, _ = fmt.Fprintf(w, "Error: %s - %v\n", r.LocalPath, r.Err)
			continue
		}
		if !f.Quiet {
			_, _ = fmt.Fprintf(w, "Sent: %s (%s)\n", r.LocalPath, mediareceiver.FormatSize(r.Size))
		}
	}
	return nil
}

// FormatStatus formats the server status as human-readable text.
func (f *HumanFormatter) FormatStatus(w io.Writer, status *StatusInfo) error {
	state := "stopped"
	if status.Running {
		state = "running"
	}

	_, _ = fmt.Fprintf(w, "State:    %s\n", state)
	if status.Addr != "" {
		_, _ = fmt.Fprintf(w, "Address:  %s\n", status.Addr)
	}
	_, _ = fmt.Fprintf(w, "Visitors: %d\n", status.Visitors)
	_, _ = fmt.Fprintf(w, "Files:    %d\n", status.Files)

	for _, u := range status.URLs {
		_, _ = fmt.Fprintf(w, "URL:      %s\n", u)
	}
	return nil
}

// FormatList formats ledger entries as human-readable text.
func (f *HumanFormatter) FormatList(w io.Writer, result *ListResult) error {
	if len(result.Items) == 0 {
		_, _ = fmt.Fprintln(w, "No uploads found")
		return nil
	}

	// Calculate column widths
	maxPathLen := 4 // "PATH"
	for i := range result.Items {
		if len(result.Items[i].StoredPath) > maxPathLen {
			maxPathLen = len(result.Items[i].StoredPath)
		}
	}
	if maxPathLen > 60 {
		maxPathLen = 60
	}

	_, _ = fmt.Fprintf(w, "%-*s  %-9s  %10s  %s\n", maxPathLen, "PATH", "CATEGORY", "SIZE", "RECEIVED")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n",
		strings.Repeat("-", maxPathLen), strings.Repeat("-", 9), strings.Repeat("-", 10), strings.Repeat("-", 19))

	for i := range result.Items {
		item := &result.Items[i]
		p := item.StoredPath
		if len(p) > maxPathLen {
			p = p[:maxPathLen-3] + "..."
		}
		_, _ = fmt.Fprintf(w, "%-*s  %-9s  %10s  %s\n",
			maxPathLen,
			p,
			item.Category,
			mediareceiver.FormatSize(item.SizeBytes),
			item.ReceivedAt.Local().Format("2006-01-02 15:04:05"),
		)
	}

	_, _ = fmt.Fprintf(w, "\n%d upload(s) (%s total)\n", len(result.Items), mediareceiver.FormatSize(result.TotalSize()))

	if result.NextCursor != "" {
		_, _ = fmt.Fprintf(w, "Next page: use --cursor %q\n", result.NextCursor)
	}

	return nil
}

// FormatSummary formats per-category totals as human-readable text.
func (f *HumanFormatter) FormatSummary(w io.Writer, summary []mediareceiver.CategorySummary) error {
	if len(summary) == 0 {
		_, _ = fmt.Fprintln(w, "No uploads found")
		return nil
	}

	_, _ = fmt.Fprintf(w, "%-9s  %8s  %10s\n", "CATEGORY", "FILES", "SIZE")
	_, _ = fmt.Fprintf(w, "%s  %s  %s\n", strings.Repeat("-", 9), strings.Repeat("-", 8), strings.Repeat("-", 10))

	var files, total int64
	for _, s := range summary {
		_, _ = fmt.Fprintf(w, "%-9s  %8d  %10s\n", s.Category, s.Files, mediareceiver.FormatSize(s.TotalBytes))
		files += s.Files
		total += s.TotalBytes
	}

	_, _ = fmt.Fprintf(w, "\n%d file(s) (%s total)\n", files, mediareceiver.FormatSize(total))
	return nil
}

// FormatError formats an error as human-readable text.
func (f *HumanFormatter) FormatError(w io.Writer, err error) error {
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return nil
}

// JSONFormatter outputs JSON.
type JSONFormatter struct{}

// FormatSend formats send results as JSON.
func (f *JSONFormatter) FormatSend(w io.Writer, results []SendResult) error {
	// Convert errors to strings for JSON output
	type jsonResult struct {
		LocalPath  string `json:"local_path"`
		Name       string `json:"name,omitempty"`
		Size       int64  `json:"size_bytes"`
		StatusCode int    `json:"status_code,omitempty"`
		Error      string `json:"error,omitempty"`
	}

	output := make([]jsonResult, len(results))
	for i := range results {
		r := &results[i]
		output[i] = jsonResult{
			LocalPath:  r.LocalPath,
			Name:       r.Name,
			Size:       r.Size,
			StatusCode: r.StatusCode,
		}
		if r.Err != nil {
			output[i].Error = r.Err.Error()
		}
	}

	return writeJSON(w, output)
}

// FormatStatus formats the server status as JSON.
func (f *JSONFormatter) FormatStatus(w io.Writer, status *StatusInfo) error {
	return writeJSON(w, status)
}

// FormatList formats ledger entries as JSON.
func (f *JSONFormatter) FormatList(w io.Writer, result *ListResult) error {
	items := result.Items
	if items == nil {
		items = []mediareceiver.UploadedFile{}
	}
	return writeJSON(w, mediareceiver.ListResult{Items: items, NextCursor: result.NextCursor})
}

// FormatSummary formats per-category totals as JSON.
func (f *JSONFormatter) FormatSummary(w io.Writer, summary []mediareceiver.CategorySummary) error {
	if summary == nil {
		summary = []mediareceiver.CategorySummary{}
	}
	return writeJSON(w, summary)
}

// FormatError formats an error as JSON.
func (f *JSONFormatter) FormatError(w io.Writer, err error) error {
	output := struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	}
	return writeJSON(w, output)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
