package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/page"
)

// exchange is the state shared by the handlers of one request.
type exchange struct {
	req     *Request
	sess    *session
	visitor int64
}

type handlerFunc func(ctx context.Context, x *exchange) (response, bool)

// route picks the handler for a request. Every path is served by the same
// page; only the method matters.
func (s *Server) route(method, _ string) handlerFunc {
	switch method {
	case http.MethodGet:
		return s.serveIndex
	case http.MethodPost:
		return s.serveUpload
	default:
		return s.methodNotAllowed
	}
}

func (s *Server) serveIndex(_ context.Context, x *exchange) (response, bool) {
	tmpl, source := s.pages.Load()
	body := page.Render(tmpl, page.Values{
		ClientIP:      x.req.ClientIP,
		VisitorNumber: x.visitor,
		TotalFiles:    x.sess.counters.Files(),
		CurrentTime:   s.now(),
	})

	s.observer.OnLog(fmt.Sprintf("Sent upload page to %s", x.req.ClientIP))
	slog.Debug("served upload page", "client", x.req.ClientIP, "template", source)

	return htmlResponse(http.StatusOK, body), true
}

// serveUpload streams the body into storage. The second result is false
// when the peer went away and no response should be written.
func (s *Server) serveUpload(ctx context.Context, x *exchange) (response, bool) {
	length, err := x.req.ContentLength()
	if err != nil {
		s.observer.OnLog(fmt.Sprintf("Rejected upload from %s: %v", x.req.ClientIP, err))
		return errorResponse(http.StatusBadRequest, "The upload request has no valid Content-Length."), true
	}

	if s.cfg.MaxUploadSize > 0 && length > s.cfg.MaxUploadSize {
		s.observer.OnLog(fmt.Sprintf("Rejected upload from %s: %d bytes exceeds limit", x.req.ClientIP, length))
		return errorResponse(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("Uploads are limited to %s.", mediareceiver.FormatSize(s.cfg.MaxUploadSize))), true
	}

	onStored := func(f mediareceiver.UploadedFile) {
		n := x.sess.counters.AddFile()
		s.observer.OnFileCount(n)
		s.observer.OnLog(fmt.Sprintf("Received %s (%s) from %s", f.OriginalName, mediareceiver.FormatSize(f.SizeBytes), x.req.ClientIP))
	}

	files, err := s.service.Receive(ctx, mediareceiver.Upload{
		ContentType: x.req.Header.Get("Content-Type"),
		Body:        io.LimitReader(x.req.Body, length),
		ClientIP:    x.req.ClientIP,
	}, onStored)
	if err != nil {
		kind := mediareceiver.KindOf(err)
		slog.Warn("upload failed", "client", x.req.ClientIP, "kind", kind, "stored", len(files), "err", err)

		if kind == mediareceiver.KindAborted {
			s.observer.OnLog(fmt.Sprintf("Upload from %s aborted", x.req.ClientIP))
			return response{}, false
		}

		s.observer.OnLog(fmt.Sprintf("Upload from %s failed: %v", x.req.ClientIP, err))
		return errorResponse(kind.StatusCode(), uploadErrorMessage(err)), true
	}

	return htmlResponse(http.StatusOK, page.Uploaded(files, x.sess.counters.Files())), true
}

func (s *Server) methodNotAllowed(_ context.Context, x *exchange) (response, bool) {
	s.observer.OnLog(fmt.Sprintf("Rejected %s from %s", x.req.Method, x.req.ClientIP))

	resp := errorResponse(http.StatusMethodNotAllowed, "")
	resp.header = append(resp.header, [2]string{"Allow", "GET, POST"})
	return resp, true
}

func uploadErrorMessage(err error) string {
	switch {
	case errors.Is(err, mediareceiver.ErrNoFileParts):
		return "No file was selected."
	case mediareceiver.KindOf(err) == mediareceiver.KindServer:
		return "The file could not be saved."
	default:
		return "The upload could not be read."
	}
}
