package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/sagarc03/mediareceiver"
)

const (
	lingerTimeout = 500 * time.Millisecond
	lingerBytes   = 256 << 10
)

// serveConn handles exactly one request on conn and closes it.
func (s *Server) serveConn(sess *session, conn net.Conn) {
	clientIP := remoteIP(conn)
	sent := false

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic serving connection", "client", clientIP, "panic", r, "stack", string(debug.Stack()))
			s.observer.OnLog(fmt.Sprintf("Error handling client %s: %v", clientIP, r))
			if !sent {
				_ = errorResponse(http.StatusInternalServerError, "").write(conn)
			}
		}
		closeConn(conn)
	}()

	br := bufio.NewReaderSize(conn, maxLineLength)

	method, target, proto, err := readRequestLine(br)
	if err != nil {
		if mediareceiver.KindOf(err) != mediareceiver.KindAborted {
			slog.Debug("bad request line", "client", clientIP, "err", err)
			sent = true
			s.send(conn, errorResponse(http.StatusBadRequest, ""))
		}
		return
	}

	header, err := readHeaders(br)
	if err != nil {
		if mediareceiver.KindOf(err) != mediareceiver.KindAborted {
			slog.Debug("bad request headers", "client", clientIP, "err", err)
			sent = true
			s.send(conn, errorResponse(http.StatusBadRequest, ""))
		}
		return
	}

	visitor := sess.counters.AddVisitor()
	s.observer.OnVisitorCount(visitor)
	s.observer.OnLog(fmt.Sprintf("Visitor #%d from: %s", visitor, clientIP))

	req := &Request{
		Method:   method,
		Path:     requestPath(target),
		Proto:    proto,
		Header:   header,
		ClientIP: clientIP,
		Body:     br,
	}

	slog.Debug("request", "client", clientIP, "method", req.Method, "path", req.Path, "visitor", visitor)

	resp, ok := s.route(req.Method, req.Path)(context.Background(), &exchange{req: req, sess: sess, visitor: visitor})
	if !ok {
		return
	}

	sent = true
	s.send(conn, resp)
}

func (s *Server) send(conn net.Conn, resp response) {
	if err := resp.write(conn); err != nil {
		slog.Debug("failed to write response", "remote", conn.RemoteAddr(), "status", resp.status, "err", err)
	}
}

// closeConn half-closes TCP connections and discards what the peer is still
// sending for a short while, so an early response is not lost to a reset.
func closeConn(conn net.Conn) {
	if tc, ok := conn.(*net.TCPConn); ok {
		if err := tc.CloseWrite(); err == nil {
			_ = tc.SetReadDeadline(time.Now().Add(lingerTimeout))
			_, _ = io.CopyN(io.Discard, tc, lingerBytes)
		}
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Debug("failed to close connection", "err", err)
	}
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return ""
	}
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
