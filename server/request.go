package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sagarc03/mediareceiver"
)

const (
	maxLineLength  = 8 << 10
	maxHeaderLines = 100
)

var (
	errLineTooLong       = errors.New("line too long")
	errTooManyHeaders    = errors.New("too many header lines")
	errMalformedRequest  = errors.New("malformed request line")
	errBadContentLength  = errors.New("invalid Content-Length")
	errNoContentLength   = errors.New("missing Content-Length")
	errUnsupportedCoding = errors.New("unsupported Transfer-Encoding")
)

// Header maps lower-cased header names to values. Repeated names keep the
// last value.
type Header map[string]string

// Get returns the value of name, matched case-insensitively.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Request is one parsed inbound request. Body is positioned at the first
// body byte and is not limited to ContentLength.
type Request struct {
	Method   string
	Path     string
	Proto    string
	Header   Header
	ClientIP string
	Body     io.Reader
}

// ContentLength returns the declared body length, or an error if the header
// is absent or invalid.
func (r *Request) ContentLength() (int64, error) {
	if r.Header.Get("Transfer-Encoding") != "" {
		return 0, errUnsupportedCoding
	}

	v := strings.TrimSpace(r.Header.Get("Content-Length"))
	if v == "" {
		return 0, errNoContentLength
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", errBadContentLength, v)
	}
	return n, nil
}

// readLine returns one line without its LF or CRLF terminator.
// A connection closed before any byte arrives yields io.EOF.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return "", errLineTooLong
	case err != nil && len(line) == 0:
		return "", err
	case err != nil:
		// A final line without terminator is accepted.
		if !errors.Is(err, io.EOF) {
			return "", err
		}
	}

	s := strings.TrimSuffix(string(line), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// readRequestLine reads "METHOD TARGET [PROTO]". Leading blank lines are
// skipped.
func readRequestLine(br *bufio.Reader) (method, target, proto string, err error) {
	var line string
	for line == "" {
		line, err = readLine(br)
		if err != nil {
			return "", "", "", requestError(err)
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return "", "", "", mediareceiver.ParseError(fmt.Errorf("%w: %q", errMalformedRequest, truncate(line)))
	}

	proto = "HTTP/1.0"
	if len(fields) == 3 {
		proto = fields[2]
	}
	return strings.ToUpper(fields[0]), fields[1], proto, nil
}

// readHeaders reads header lines up to the empty line. Lines without a colon
// or with an empty name are skipped.
func readHeaders(br *bufio.Reader) (Header, error) {
	h := make(Header)
	for n := 0; ; n++ {
		line, err := readLine(br)
		if err != nil {
			return nil, requestError(err)
		}
		if line == "" {
			return h, nil
		}
		if n >= maxHeaderLines {
			return nil, mediareceiver.ParseError(errTooManyHeaders)
		}

		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			continue
		}
		h[strings.ToLower(name)] = strings.TrimSpace(value)
	}
}

func requestError(err error) error {
	if errors.Is(err, errLineTooLong) {
		return mediareceiver.ParseError(err)
	}
	return mediareceiver.ReadError(mediareceiver.KindAborted, err)
}

func requestPath(target string) string {
	path, _, _ := strings.Cut(target, "?")
	if path == "" {
		return "/"
	}
	return path
}

func truncate(s string) string {
	const max = 64
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
