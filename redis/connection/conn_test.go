package connection

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestWriteAndClose(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConn(server)
	if conn.Name() != "pipe" {
		t.Errorf("unexpected name %q", conn.Name())
	}

	received := make(chan []byte, 1)
	go func() {
		buf, _ := io.ReadAll(client)
		received <- buf
	}()
	if n, err := conn.Write([]byte("+OK\r\n")); err != nil || n != 5 {
		t.Fatalf("write: %d %v", n, err)
	}
	if n, err := conn.Write(nil); err != nil || n != 0 {
		t.Fatalf("empty write: %d %v", n, err)
	}
	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case buf := <-received:
		if string(buf) != "+OK\r\n" {
			t.Errorf("got %q", buf)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not finished after close")
	}
	if _, err := conn.Write([]byte("+OK\r\n")); err == nil {
		t.Error("expected error after close")
	}
}

func TestWaitWithTimeout(t *testing.T) {
	var wg sync.WaitGroup
	if !waitWithTimeout(&wg, time.Millisecond) {
		t.Error("empty wait group should finish")
	}
	wg.Add(1)
	if waitWithTimeout(&wg, 10*time.Millisecond) {
		t.Error("expected timeout")
	}
	wg.Done()
}

func TestFakeConn(t *testing.T) {
	conn := NewFakeConn()
	_, _ = conn.Write([]byte("+PONG\r\n"))
	_, _ = conn.Write([]byte(":1\r\n"))
	if got := string(conn.Bytes()); got != "+PONG\r\n:1\r\n" {
		t.Errorf("got %q", got)
	}
	conn.Clean()
	if len(conn.Bytes()) != 0 {
		t.Error("expected empty buffer")
	}
	_ = conn.Close()
	if _, err := conn.Write([]byte("x")); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}
