// Package observer provides implementations of mediareceiver.Observer.
//
// The server wraps whatever observer it is given in a Dispatcher, so
// callbacks run on the dispatcher goroutine with no server lock held and may
// query the server. Logger, Snapshot and Multi are the usual things to pass.
package observer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/sagarc03/mediareceiver"
)

// DefaultQueueSize is the Dispatcher queue length used when none is given.
const DefaultQueueSize = 256

type eventKind int

const (
	eventStatus eventKind = iota
	eventVisitors
	eventFiles
	eventLog
)

type event struct {
	kind    eventKind
	running bool
	count   int64
	message string
	flushed chan struct{}
}

// Dispatcher delivers notifications to another observer on its own goroutine.
// Calls never block: when the queue is full the notification is dropped.
type Dispatcher struct {
	next    mediareceiver.Observer
	queue   chan event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts a Dispatcher delivering to next. size <= 0 uses
// DefaultQueueSize. Close must be called to stop the delivery goroutine.
func NewDispatcher(next mediareceiver.Observer, size int) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}

	d := &Dispatcher{
		next:  next,
		queue: make(chan event, size),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		if e.flushed != nil {
			close(e.flushed)
			continue
		}
		switch e.kind {
		case eventStatus:
			d.next.OnStatusChanged(e.running)
		case eventVisitors:
			d.next.OnVisitorCount(e.count)
		case eventFiles:
			d.next.OnFileCount(e.count)
		case eventLog:
			d.next.OnLog(e.message)
		}
	}
}

func (d *Dispatcher) send(e event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.dropped.Add(1)
		return
	}

	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
	}
}

func (d *Dispatcher) OnStatusChanged(running bool) {
	d.send(event{kind: eventStatus, running: running})
}

func (d *Dispatcher) OnVisitorCount(count int64) {
	d.send(event{kind: eventVisitors, count: count})
}

func (d *Dispatcher) OnFileCount(count int64) {
	d.send(event{kind: eventFiles, count: count})
}

func (d *Dispatcher) OnLog(message string) {
	d.send(event{kind: eventLog, message: message})
}

// Dropped returns how many notifications were discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Flush blocks until every notification queued before the call has been
// delivered. It returns at once after Close.
func (d *Dispatcher) Flush() {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	flushed := make(chan struct{})
	d.queue <- event{flushed: flushed}
	d.mu.RUnlock()

	<-flushed
}

// Close stops accepting notifications and waits until the queued ones have
// been delivered. It is safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	<-d.done
}

// Logger writes every notification to a slog.Logger.
type Logger struct {
	log *slog.Logger
}

// NewLogger returns a Logger using l, or slog.Default() if l is nil.
func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{log: l}
}

func (l *Logger) OnStatusChanged(running bool) {
	l.log.Info("server status changed", "running", running)
}

func (l *Logger) OnVisitorCount(count int64) {
	l.log.Debug("visitor count", "visitors", count)
}

func (l *Logger) OnFileCount(count int64) {
	l.log.Debug("file count", "files", count)
}

func (l *Logger) OnLog(message string) {
	l.log.Info(message)
}

// Snapshot keeps the latest reported state. Counts only move forward, so a
// late notification never lowers them.
type Snapshot struct {
	running  atomic.Bool
	visitors atomic.Int64
	files    atomic.Int64
	lastLog  atomic.Value
}

func (s *Snapshot) OnStatusChanged(running bool) {
	s.running.Store(running)
	if running {
		s.visitors.Store(0)
		s.files.Store(0)
	}
}

func (s *Snapshot) OnVisitorCount(count int64) {
	storeMax(&s.visitors, count)
}

func (s *Snapshot) OnFileCount(count int64) {
	storeMax(&s.files, count)
}

func (s *Snapshot) OnLog(message string) {
	s.lastLog.Store(message)
}

func (s *Snapshot) Running() bool   { return s.running.Load() }
func (s *Snapshot) Visitors() int64 { return s.visitors.Load() }
func (s *Snapshot) Files() int64    { return s.files.Load() }

// LastLog returns the most recent log message, or "" if none.
func (s *Snapshot) LastLog() string {
	msg, _ := s.lastLog.Load().(string)
	return msg
}

func storeMax(v *atomic.Int64, n int64) {
	for {
		cur := v.Load()
		if n <= cur || v.CompareAndSwap(cur, n) {
			return
		}
	}
}

// Multi forwards every notification to each observer in order.
type Multi []mediareceiver.Observer

func (m Multi) OnStatusChanged(running bool) {
	for _, o := range m {
		o.OnStatusChanged(running)
	}
}

func (m Multi) OnVisitorCount(count int64) {
	for _, o := range m {
		o.OnVisitorCount(count)
	}
}

func (m Multi) OnFileCount(count int64) {
	for _, o := range m {
		o.OnFileCount(count)
	}
}

func (m Multi) OnLog(message string) {
	for _, o := range m {
		o.OnLog(message)
	}
}
