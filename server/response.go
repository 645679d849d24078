package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/sagarc03/mediareceiver/page"
)

const (
	serverName      = "MediaReceiverPro"
	contentTypeHTML = "text/html; charset=utf-8"
)

type response struct {
	status      int
	contentType string
	header      [][2]string
	body        []byte
}

func htmlResponse(status int, body string) response {
	return response{status: status, contentType: contentTypeHTML, body: []byte(body)}
}

func errorResponse(status int, message string) response {
	return htmlResponse(status, page.Error(status, http.StatusText(status), message))
}

// write sends the full response. Content-Length always matches the body.
func (r response) write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", r.status, http.StatusText(r.status))
	if r.contentType != "" {
		fmt.Fprintf(bw, "Content-Type: %s\r\n", r.contentType)
	}
	fmt.Fprintf(bw, "Content-Length: %s\r\n", strconv.Itoa(len(r.body)))
	bw.WriteString("Connection: close\r\n")
	fmt.Fprintf(bw, "Server: %s\r\n", serverName)
	for _, kv := range r.header {
		fmt.Fprintf(bw, "%s: %s\r\n", kv[0], kv[1])
	}
	bw.WriteString("\r\n")
	bw.Write(r.body)

	return bw.Flush()
}
