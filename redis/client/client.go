package client

import (
	"errors"
	"net"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hdt3213/tabledis/interface/redis"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/redis/parser"
	"github.com/hdt3213/tabledis/redis/protocol"
)

const (
	created = iota
	running
	closed
)

// Client is a pipeline mode redis client
type Client struct {
	conn        net.Conn
	pendingReqs chan *request // wait to send
	waitingReqs chan *request // waiting response
	ticker      *time.Ticker
	addr        string

	status  atomic.Int32
	working sync.WaitGroup // its counter presents unfinished requests(pending and waiting)
}

// request is a message sends to redis server
type request struct {
	args      [][]byte
	reply     redis.Reply
	heartbeat bool
	done      chan struct{}
	err       error
}

func newRequest(args [][]byte, heartbeat bool) *request {
	return &request{
		args:      args,
		heartbeat: heartbeat,
		done:      make(chan struct{}),
	}
}

func (req *request) finish() {
	close(req.done)
}

// wait returns false on timeout
func (req *request) wait(timeout time.Duration) bool {
	select {
	case <-req.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

const (
	chanSize = 256
	maxWait  = 3 * time.Second
)

// MakeClient creates a new client
func MakeClient(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{
		addr:        addr,
		conn:        conn,
		pendingReqs: make(chan *request, chanSize),
		waitingReqs: make(chan *request, chanSize),
	}, nil
}

// Start starts asynchronous goroutines
func (client *Client) Start() {
	client.ticker = time.NewTicker(10 * time.Second)
	go client.handleWrite()
	go client.handleRead()
	go client.heartbeat()
	client.status.Store(running)
}

// Close stops asynchronous goroutines and close connection
func (client *Client) Close() {
	if !client.status.CompareAndSwap(running, closed) {
		return
	}
	client.ticker.Stop()
	// stop new request
	close(client.pendingReqs)

	// wait stop process
	client.working.Wait()

	// clean
	_ = client.conn.Close()
	close(client.waitingReqs)
}

func (client *Client) reconnect() {
	logger.Info("reconnect with: " + client.addr)
	_ = client.conn.Close() // ignore possible errors from repeated closes

	var conn net.Conn
	for i := 0; i < 3; i++ {
		var err error
		conn, err = net.Dial("tcp", client.addr)
		if err != nil {
			logger.Error("reconnect error: " + err.Error())
			time.Sleep(time.Second)
			continue
		}
		break
	}
	if conn == nil { // reach max retry, abort
		client.Close()
		return
	}
	client.conn = conn

	close(client.waitingReqs)
	for req := range client.waitingReqs {
		req.err = errors.New("connection closed")
		req.finish()
	}
	client.waitingReqs = make(chan *request, chanSize)
	// restart handle read
	go client.handleRead()
}

func (client *Client) heartbeat() {
	for range client.ticker.C {
		client.doHeartbeat()
	}
}

func (client *Client) handleWrite() {
	for req := range client.pendingReqs {
		client.doRequest(req)
	}
}

// Send sends a request to redis server and waits for its reply
func (client *Client) Send(args [][]byte) redis.Reply {
	if client.status.Load() != running {
		return protocol.MakeErrReply("client closed")
	}
	req := newRequest(args, false)
	client.working.Add(1)
	defer client.working.Done()
	client.pendingReqs <- req
	if !req.wait(maxWait) {
		return protocol.MakeErrReply("server time out")
	}
	if req.err != nil {
		return protocol.MakeErrReply("request failed")
	}
	return req.reply
}

func (client *Client) doHeartbeat() {
	if client.status.Load() != running {
		return
	}
	req := newRequest([][]byte{[]byte("PING")}, true)
	client.working.Add(1)
	defer client.working.Done()
	client.pendingReqs <- req
	req.wait(maxWait)
}

func (client *Client) doRequest(req *request) {
	if req == nil || len(req.args) == 0 {
		return
	}
	re := protocol.MakeMultiBulkReply(req.args)
	bytes := re.ToBytes()
	var err error
	for i := 0; i < 3; i++ { // only retry, waiting for handleRead
		_, err = client.conn.Write(bytes)
		if err == nil ||
			(!strings.Contains(err.Error(), "timeout") && // only retry timeout
				!strings.Contains(err.Error(), "deadline exceeded")) {
			break
		}
	}
	if err == nil {
		client.waitingReqs <- req
	} else {
		req.err = err
		req.finish()
	}
}

func (client *Client) finishRequest(reply redis.Reply) {
	defer func() {
		if err := recover(); err != nil {
			debug.PrintStack()
			logger.Error(err)
		}
	}()
	req := <-client.waitingReqs
	if req == nil {
		return
	}
	req.reply = reply
	req.finish()
}

func (client *Client) handleRead() {
	ch := parser.ParseStream(client.conn)
	for payload := range ch {
		if payload.Err != nil {
			if client.status.Load() == closed {
				return
			}
			client.reconnect()
			return
		}
		client.finishRequest(payload.Data)
	}
}
