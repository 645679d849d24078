// Package server implements the upload HTTP server.
//
// The server speaks a minimal subset of HTTP/1.1 directly on a net.Listener:
// one request per connection, bodies delimited by Content-Length, and
// Connection: close on every response. GET on any path serves the upload
// page; POST streams a multipart/form-data body into storage; every other
// method is answered with 405.
//
// Each accepted connection runs on its own goroutine. Stop closes the
// listener only; connections in flight run to completion and Wait blocks
// until they have. Observer notifications are queued and delivered on a
// separate goroutine, never while the server holds a lock. Visitor and file counters belong to one session, from
// Start to Stop, and a new session starts both at zero.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sagarc03/mediareceiver"
	"github.com/sagarc03/mediareceiver/observer"
	"github.com/sagarc03/mediareceiver/page"
)

// DefaultAddr is the listen address used when Config.Addr is empty.
const DefaultAddr = ":8080"

// Config holds configuration options for Server.
type Config struct {
	// Addr is the TCP listen address (default: ":8080").
	Addr string
	// MaxConnections bounds concurrently served connections. Connections
	// over the limit get 503 and are not counted. 0 means unbounded.
	MaxConnections int
	// MaxUploadSize rejects POST bodies declaring more bytes with 413.
	// 0 means no limit.
	MaxUploadSize int64
	// Now returns the time shown on the upload page (default: time.Now).
	Now func() time.Time
}

// observerQueue is the notification queue length of the dispatcher the
// server puts in front of its observer.
const observerQueue = 1024

// Server owns the listening socket and the accept loop.
type Server struct {
	service *mediareceiver.UploadService
	pages   *page.Engine
	cfg     Config
	now     func() time.Time

	// observer never blocks: it is a Dispatcher, owned unless the caller
	// passed one in.
	observer   *observer.Dispatcher
	ownsEvents bool

	// lifecycle serialises Start, Stop and listener failure including their
	// notifications. mu guards ln and sess and is never held while notifying.
	lifecycle sync.Mutex
	mu        sync.Mutex
	ln        net.Listener
	sess      *session

	conns sync.WaitGroup
}

type session struct {
	counters mediareceiver.Counters
	slots    chan struct{}
}

func newSession(maxConns int) *session {
	s := &session{}
	if maxConns > 0 {
		s.slots = make(chan struct{}, maxConns)
	}
	return s
}

// New creates a Server. service is required. Notifications reach obs on a
// separate goroutine, so obs may block or call back into the Server. A nil
// observer discards notifications. Close releases the delivery goroutine.
func New(service *mediareceiver.UploadService, pages *page.Engine, obs mediareceiver.Observer, cfg Config) *Server {
	if obs == nil {
		obs = mediareceiver.NopObserver{}
	}
	if pages == nil {
		pages = page.NewEngine("")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	events, ok := obs.(*observer.Dispatcher)
	if !ok {
		events = observer.NewDispatcher(obs, observerQueue)
	}

	return &Server{
		service:    service,
		pages:      pages,
		observer:   events,
		ownsEvents: !ok,
		cfg:        cfg,
		now:        now,
		sess:       newSession(cfg.MaxConnections),
	}
}

// Start binds the listener and starts accepting connections in the
// background. A bind failure is reported to the observer and returned; it is
// not retried.
func (s *Server) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return fmt.Errorf("start: %w", mediareceiver.ErrAlreadyRunning)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		s.observer.OnStatusChanged(false)
		s.observer.OnLog(fmt.Sprintf("Failed to start server: %v", err))
		return fmt.Errorf("start: %w", err)
	}

	sess := newSession(s.cfg.MaxConnections)
	s.ln = ln
	s.sess = sess

	s.conns.Add(1)
	s.mu.Unlock()

	s.observer.OnStatusChanged(true)
	s.observer.OnLog(fmt.Sprintf("Server started on %s", ln.Addr()))
	slog.Info("server started", "addr", ln.Addr().String())

	go s.acceptLoop(ln, sess)
	return nil
}

// Stop closes the listener. Connections in flight are not interrupted.
func (s *Server) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.ln == nil {
		s.mu.Unlock()
		return fmt.Errorf("stop: %w", mediareceiver.ErrNotRunning)
	}

	err := s.ln.Close()
	s.ln = nil
	s.mu.Unlock()

	s.observer.OnStatusChanged(false)
	s.observer.OnLog("Server stopped")
	slog.Info("server stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Close stops the server if it is running, waits for connections in flight
// and stops notification delivery. The Server cannot be restarted after
// Close.
func (s *Server) Close() error {
	err := s.Stop()
	if errors.Is(err, mediareceiver.ErrNotRunning) {
		err = nil
	}

	s.Wait()
	if s.ownsEvents {
		s.observer.Close()
	}
	return err
}

// IsRunning reports whether the server is listening.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln != nil
}

// Addr returns the bound address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Wait blocks until the accept loop has exited, every accepted connection
// has been served and their notifications have been delivered.
func (s *Server) Wait() {
	s.conns.Wait()
	s.observer.Flush()
}

// DroppedEvents returns how many observer notifications were discarded
// because the observer fell behind.
func (s *Server) DroppedEvents() int64 {
	return s.observer.Dropped()
}

// Status returns a snapshot of the current session. After Stop the counters
// of the last session are reported until the next Start.
func (s *Server) Status() mediareceiver.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := mediareceiver.Status{
		Running:  s.ln != nil,
		Visitors: s.sess.counters.Visitors(),
		Files:    s.sess.counters.Files(),
	}
	if s.ln != nil {
		st.Addr = s.ln.Addr().String()
	}
	return st
}

func (s *Server) acceptLoop(ln net.Listener, sess *session) {
	defer s.conns.Done()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}

			var ne net.Error
			if (errors.As(err, &ne) && ne.Timeout()) || isTemporary(err) {
				delay = backoff(delay)
				slog.Warn("accept failed, retrying", "err", err, "delay", delay)
				time.Sleep(delay)
				continue
			}

			s.observer.OnLog(fmt.Sprintf("Client connection error: %v", err))
			slog.Error("accept failed", "err", err)
			s.listenerFailed(ln)
			return
		}
		delay = 0

		if sess.slots != nil {
			select {
			case sess.slots <- struct{}{}:
			default:
				s.conns.Add(1)
				go s.reject(conn)
				continue
			}
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			if sess.slots != nil {
				defer func() { <-sess.slots }()
			}
			s.serveConn(sess, conn)
		}()
	}
}

// listenerFailed marks the server stopped after the listener broke on its own.
func (s *Server) listenerFailed(ln net.Listener) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.ln != ln {
		s.mu.Unlock()
		return
	}
	_ = ln.Close()
	s.ln = nil
	s.mu.Unlock()

	s.observer.OnStatusChanged(false)
}

func (s *Server) reject(conn net.Conn) {
	defer s.conns.Done()
	defer closeConn(conn)

	slog.Debug("connection limit reached", "client", remoteIP(conn), "limit", s.cfg.MaxConnections)
	s.send(conn, errorResponse(http.StatusServiceUnavailable, "The server is busy. Try again shortly."))
}

func isTemporary(err error) bool {
	var t interface{ Temporary() bool }
	return errors.As(err, &t) && t.Temporary()
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}
