package connection

import (
	"io"
	"sync"
)

// FakeConn implements redis.Connection for test
type FakeConn struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

// NewFakeConn creates an in-memory connection collecting replies
func NewFakeConn() *FakeConn {
	return &FakeConn{}
}

// Write writes data to buffer
func (c *FakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.EOF
	}
	c.buf = append(c.buf, b...)
	return len(b), nil
}

// Clean resets the buffer
func (c *FakeConn) Clean() {
	c.mu.Lock()
	c.buf = nil
	c.mu.Unlock()
}

// Bytes returns written data
func (c *FakeConn) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.buf...)
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *FakeConn) RemoteAddr() string {
	return "fake"
}

func (c *FakeConn) Name() string {
	return "fake"
}
