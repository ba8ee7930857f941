package executor

import (
	"bytes"
	"sync"
)

// capture is a run's output buffer. A runtime that ignores cancellation may
// still write after the run has been reported, so writes are locked.
type capture struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (c *capture) Write(data []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(data)
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
