package mediareceiver

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when a resource is not found
	ErrNotFound = errors.New("not found")
	// ErrInternal is returned when an internal error occurs
	ErrInternal = errors.New("internal error")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoFileParts is returned when a multipart body carries no file part
	ErrNoFileParts = errors.New("no file parts")
	// ErrTooLarge is returned when a request body exceeds the configured limit
	ErrTooLarge = errors.New("request body too large")
	// ErrAlreadyRunning is returned by Start on a server that is listening
	ErrAlreadyRunning = errors.New("server already running")
	// ErrNotRunning is returned by Stop on a server that is not listening
	ErrNotRunning = errors.New("server not running")
	// ErrLedgerDisabled is returned by ledger queries when no ledger is configured
	ErrLedgerDisabled = errors.New("upload ledger disabled")
)

// Stage identifies which part of request handling produced an error.
type Stage string

const (
	StageRead  Stage = "read"
	StageParse Stage = "parse"
	StageWrite Stage = "write"
)

// ErrorKind classifies a failure for the response it produces.
type ErrorKind int

const (
	// KindAborted means the peer went away; no response is sent.
	KindAborted ErrorKind = iota
	// KindClient is a malformed or unacceptable request (400).
	KindClient
	// KindTooLarge is a body over the configured size limit (413).
	KindTooLarge
	// KindServer is a local failure such as a filesystem error (500).
	KindServer
)

func (k ErrorKind) String() string {
	switch k {
	case KindAborted:
		return "aborted"
	case KindClient:
		return "client"
	case KindTooLarge:
		return "too_large"
	case KindServer:
		return "server"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StatusCode returns the HTTP status for the kind, or 0 for KindAborted.
func (k ErrorKind) StatusCode() int {
	switch k {
	case KindAborted:
		return 0
	case KindClient:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// StageError tags an error with the stage and kind it belongs to.
type StageError struct {
	Stage Stage
	Kind  ErrorKind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func ReadError(kind ErrorKind, err error) error {
	return &StageError{Stage: StageRead, Kind: kind, Err: err}
}

func ParseError(err error) error {
	return &StageError{Stage: StageParse, Kind: KindClient, Err: err}
}

func WriteError(err error) error {
	return &StageError{Stage: StageWrite, Kind: KindServer, Err: err}
}

// KindOf reports the kind of err. Untagged errors are server errors,
// except the client-facing sentinels.
func KindOf(err error) ErrorKind {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}

	switch {
	case errors.Is(err, ErrTooLarge):
		return KindTooLarge
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoFileParts):
		return KindClient
	default:
		return KindServer
	}
}
