package tcp

/**
 * A tcp server
 */

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hdt3213/tabledis/interface/tcp"
	"github.com/hdt3213/tabledis/lib/logger"
)

// Config stores tcp server properties
type Config struct {
	Address string
	// MaxConnect limits concurrent clients, 0 means unlimited
	MaxConnect uint32
}

// ClientCounter records the number of clients being served
var ClientCounter atomic.Int32

var tooManyClients = []byte("-ERR max number of clients reached\r\n")

// ListenAndServeWithSignal binds port and handle requests, blocking until receive stop signal
func ListenAndServeWithSignal(cfg *Config, handler tcp.Handler) error {
	closeChan := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		switch sig {
		case syscall.SIGHUP, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT:
			closeChan <- struct{}{}
		}
	}()
	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("bind: %s, start listening...", listener.Addr()))
	ListenAndServe(cfg, listener, handler, closeChan)
	return nil
}

// ListenAndServe binds port and handle requests, blocking until close
func ListenAndServe(cfg *Config, listener net.Listener, handler tcp.Handler, closeChan <-chan struct{}) {
	// listen signal
	errCh := make(chan error, 1)
	defer close(errCh)
	go func() {
		select {
		case <-closeChan:
			logger.Info("get exit signal")
		case er := <-errCh:
			logger.Info(fmt.Sprintf("accept error: %s", er.Error()))
		}
		logger.Info("shutting down...")
		_ = listener.Close() // listener.Accept() will return err immediately
		_ = handler.Close()  // close connections
	}()

	ctx := context.Background()
	var waitDone sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			// learn from net/http/serve.go#Serve()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Infof("accept occurs temporary error: %v, retry in 5ms", err)
				time.Sleep(5 * time.Millisecond)
				continue
			}
			errCh <- err
			break
		}
		if cfg.MaxConnect > 0 && uint32(ClientCounter.Load()) >= cfg.MaxConnect {
			logger.Warnf("refuse %s: max number of clients reached", conn.RemoteAddr())
			_, _ = conn.Write(tooManyClients)
			_ = conn.Close()
			continue
		}
		// handle
		logger.Debug("accept link " + conn.RemoteAddr().String())
		ClientCounter.Add(1)
		waitDone.Add(1)
		go func() {
			defer func() {
				waitDone.Done()
				ClientCounter.Add(-1)
			}()
			handler.Handle(ctx, conn)
		}()
	}
	waitDone.Wait()
}
