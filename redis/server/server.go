package server

/*
 * A tcp.Handler implements redis protocol
 */

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync/atomic"

	"github.com/hdt3213/tabledis/interface/database"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/redis/connection"
	"github.com/hdt3213/tabledis/redis/parser"
	"github.com/hdt3213/tabledis/redis/protocol"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	unknownErrReplyBytes = []byte("-ERR unknown\r\n")
)

// Handler implements tcp.Handler and serves as a redis server
type Handler struct {
	activeConn *xsync.MapOf[*connection.Connection, struct{}]
	db         database.DB
	closing    atomic.Bool
}

// MakeHandler creates a Handler executing commands on db
func MakeHandler(db database.DB) *Handler {
	return &Handler{
		activeConn: xsync.NewMapOf[*connection.Connection, struct{}](),
		db:         db,
	}
}

// ActiveConnections returns the number of connected clients
func (h *Handler) ActiveConnections() int {
	return h.activeConn.Size()
}

func (h *Handler) closeClient(client *connection.Connection) {
	_ = client.Close()
	h.db.AfterClientClose(client)
	h.activeConn.Delete(client)
}

func isClosedErr(err error) bool {
	return err == io.EOF ||
		err == io.ErrUnexpectedEOF ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

// Handle receives and executes redis commands
func (h *Handler) Handle(ctx context.Context, conn net.Conn) {
	if h.closing.Load() {
		// closing handler refuse new connection
		_ = conn.Close()
		return
	}

	client := connection.NewConn(conn)
	h.activeConn.Store(client, struct{}{})

	ch := parser.ParseStream(conn)
	for payload := range ch {
		if payload.Err != nil {
			if isClosedErr(payload.Err) {
				// connection closed
				h.closeClient(client)
				logger.Info("connection closed: " + client.RemoteAddr())
				return
			}
			// protocol err
			errReply := protocol.MakeErrReply("ERR " + payload.Err.Error())
			_, err := client.Write(errReply.ToBytes())
			if err != nil {
				h.closeClient(client)
				logger.Info("connection closed: " + client.RemoteAddr())
				return
			}
			continue
		}
		if payload.Data == nil {
			logger.Error("empty payload")
			continue
		}
		r, ok := payload.Data.(*protocol.MultiBulkReply)
		if !ok {
			logger.Error("require multi bulk protocol")
			continue
		}
		result := h.db.Exec(client, r.Args)
		if result != nil {
			_, _ = client.Write(result.ToBytes())
		} else {
			_, _ = client.Write(unknownErrReplyBytes)
		}
	}
}

// Close stops handler
func (h *Handler) Close() error {
	logger.Info("handler shutting down...")
	h.closing.Store(true)
	h.activeConn.Range(func(client *connection.Connection, _ struct{}) bool {
		_ = client.Close()
		return true
	})
	h.db.Close()
	return nil
}
