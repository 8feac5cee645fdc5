package connection

import (
	"net"
	"sync"
	"time"
)

// Connection represents a connection with a redis-cli
type Connection struct {
	conn net.Conn
	name string

	// waiting until reply finished
	waitingReply sync.WaitGroup

	// lock while server sending response
	mu sync.Mutex
}

// NewConn creates Connection instance
func NewConn(conn net.Conn) *Connection {
	c := &Connection{
		conn: conn,
	}
	if addr := conn.RemoteAddr(); addr != nil {
		c.name = addr.String()
	}
	return c
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() string {
	return c.name
}

// Name identifies the client in logs
func (c *Connection) Name() string {
	return c.name
}

// Write sends response to client over tcp connection
func (c *Connection) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	c.waitingReply.Add(1)
	defer func() {
		c.waitingReply.Done()
		c.mu.Unlock()
	}()

	return c.conn.Write(b)
}

// Close disconnect with the client after pending replies are sent, waiting up to 10 seconds
func (c *Connection) Close() error {
	waitWithTimeout(&c.waitingReply, 10*time.Second)
	_ = c.conn.Close()
	return nil
}

// waitWithTimeout returns false if wg did not finish in time
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
