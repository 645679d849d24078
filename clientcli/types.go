package clientcli

import (
	"github.com/sagarc03/mediareceiver"
)

// SendOptions configures a send operation.
type SendOptions struct {
	Paths     []string
	Recursive bool
	// FieldName is the multipart form field of each file (default "file").
	FieldName string
}

// SendResult represents the result of sending a single file.
type SendResult struct {
	LocalPath  string `json:"local_path"`
	Name       string `json:"name"`
	Size       int64  `json:"size_bytes"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"-"` // nil on success
}

// ListOptions configures a list operation.
type ListOptions struct {
	Category mediareceiver.Category
	Limit    int
	Cursor   string
	All      bool // auto-paginate through all results
}

// StatusInfo mirrors the status API's GET /status body.
type StatusInfo struct {
	mediareceiver.Status
	URLs []string `json:"urls"`
}

// ListResult is a page (or all pages) of ledger entries.
type ListResult struct {
	mediareceiver.ListResult
}

// TotalSize calculates the total size of all items in bytes.
func (r *ListResult) TotalSize() int64 {
	var total int64
	for _, item := range r.Items {
		total += item.SizeBytes
	}
	return total
}
