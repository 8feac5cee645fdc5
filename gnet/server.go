package gnet

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hdt3213/tabledis/interface/database"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/redis/connection"
	"github.com/hdt3213/tabledis/redis/parser"
	"github.com/hdt3213/tabledis/redis/protocol"
	"github.com/panjf2000/gnet/v2"
)

type GnetServer struct {
	gnet.BuiltinEventEngine
	eng       gnet.Engine
	booted    chan struct{}
	connected atomic.Int32
	db        database.DB
}

func NewGnetServer(db database.DB) *GnetServer {
	return &GnetServer{
		db:     db,
		booted: make(chan struct{}),
	}
}

// Run serves addr until Close is called
func (s *GnetServer) Run(addr string) error {
	logger.Infof("bind: %s, start gnet event loop...", addr)
	return gnet.Run(s, "tcp://"+addr, gnet.WithMulticore(true), gnet.WithReusePort(true))
}

// Booted is closed once the event loop accepts connections
func (s *GnetServer) Booted() <-chan struct{} {
	return s.booted
}

// Connected returns the number of open connections
func (s *GnetServer) Connected() int {
	return int(s.connected.Load())
}

// Close stops the event loop and the database
func (s *GnetServer) Close() error {
	<-s.booted
	err := s.eng.Stop(context.Background())
	s.db.Close()
	return err
}

func (s *GnetServer) OnBoot(eng gnet.Engine) (action gnet.Action) {
	s.eng = eng
	close(s.booted)
	return
}

func (s *GnetServer) OnOpen(c gnet.Conn) (out []byte, action gnet.Action) {
	client := connection.NewConn(c)
	c.SetContext(client)
	s.connected.Add(1)
	return
}

func (s *GnetServer) OnClose(c gnet.Conn, err error) (action gnet.Action) {
	if err != nil {
		logger.Infof("error occurred on connection=%s, %v\n", c.RemoteAddr().String(), err)
	}
	s.connected.Add(-1)
	conn := c.Context().(*connection.Connection)
	s.db.AfterClientClose(conn)
	return
}

// OnTraffic executes every complete request in the inbound buffer, an incomplete tail stays buffered
func (s *GnetServer) OnTraffic(c gnet.Conn) (action gnet.Action) {
	conn := c.Context().(*connection.Connection)
	buf, err := c.Peek(-1)
	if err != nil {
		logger.Infof("read inbound buffer failed: %v", err)
		return gnet.Close
	}
	var out []byte
	consumed := 0
	for consumed < len(buf) {
		cmdLine, n, err := parser.Parse(buf[consumed:])
		if err != nil {
			var protoErr *parser.ProtocolError
			if errors.As(err, &protoErr) {
				out = append(out, protocol.MakeErrReply("ERR "+err.Error()).ToBytes()...)
			}
			logger.Infof("parse command line failed: %v", err)
			action = gnet.Close
			break
		}
		if n == 0 {
			break
		}
		consumed += n
		if len(cmdLine) == 0 {
			continue
		}
		out = append(out, s.db.Exec(conn, cmdLine).ToBytes()...)
	}
	if _, err := c.Discard(consumed); err != nil {
		logger.Infof("discard inbound buffer failed: %v", err)
		return gnet.Close
	}
	if len(out) > 0 {
		if _, err := c.Write(out); err != nil {
			return gnet.Close
		}
	}
	return action
}
