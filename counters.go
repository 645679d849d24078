package mediareceiver

import "sync/atomic"

// Counters tracks visitors and stored files for one server session.
// Both values only ever increase.
type Counters struct {
	visitors atomic.Int64
	files    atomic.Int64
}

// AddVisitor increments the visitor count and returns the new value.
func (c *Counters) AddVisitor() int64 {
	return c.visitors.Add(1)
}

// AddFile increments the file count and returns the new value.
func (c *Counters) AddFile() int64 {
	return c.files.Add(1)
}

func (c *Counters) Visitors() int64 {
	return c.visitors.Load()
}

func (c *Counters) Files() int64 {
	return c.files.Load()
}
