// Package database routes parsed commands to the store.
package database

import (
	"fmt"
	"runtime/debug"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hdt3213/tabledis/interface/redis"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/redis/protocol"
)

// HandlerFunc executes a command whose arity has already been checked.
// Returning nil means an internal failure, the caller substitutes a generic error.
type HandlerFunc func(cmd *protocol.Command) redis.Reply

// CommandHandler binds a HandlerFunc to its inclusive argument count bounds, the verb excluded
type CommandHandler struct {
	fn  HandlerFunc
	min int
	max int
}

// MakeCommandHandler creates a handler accepting between min and max arguments
func MakeCommandHandler(fn HandlerFunc, min, max int) *CommandHandler {
	return &CommandHandler{fn: fn, min: min, max: max}
}

// Invoke checks arity and calls the handler
func (h *CommandHandler) Invoke(cmd *protocol.Command) redis.Reply {
	if argc := cmd.Argc(); argc < h.min || argc > h.max {
		return protocol.MakeArgNumErrReply(cmd.Verb())
	}
	return h.fn(cmd)
}

// Dispatcher owns the verb table
type Dispatcher struct {
	storage  Storage
	handlers map[string]*CommandHandler
}

// MakeDispatcher builds the verb table over storage
func MakeDispatcher(storage Storage) *Dispatcher {
	d := &Dispatcher{
		storage:  storage,
		handlers: make(map[string]*CommandHandler),
	}
	d.registerCommands()
	return d
}

func (d *Dispatcher) register(verb string, fn HandlerFunc, min, max int) {
	d.handlers[verb] = MakeCommandHandler(fn, min, max)
}

// Run executes cmd, it never returns nil
func (d *Dispatcher) Run(cmd *protocol.Command) redis.Reply {
	verb := cmd.Verb()
	handler, ok := d.handlers[verb]
	if !ok {
		countCommand("unknown", true)
		return protocol.MakeUnknownCommandErrReply(verb)
	}
	reply := handler.Invoke(cmd)
	if reply == nil {
		reply = protocol.MakeUnknownErrReply()
	}
	countCommand(verb, protocol.IsErrorReply(reply))
	return reply
}

// Exec implements database.DB
func (d *Dispatcher) Exec(c redis.Connection, cmdLine [][]byte) (result redis.Reply) {
	defer func() {
		if err := recover(); err != nil {
			logger.Warn(fmt.Sprintf("error occurs: %v\n%s", err, string(debug.Stack())))
			result = protocol.MakeUnknownErrReply()
		}
	}()
	if len(cmdLine) == 0 {
		return protocol.MakeErrReply("ERR empty command")
	}
	return d.Run(protocol.MakeCommand(cmdLine))
}

// AfterClientClose implements database.DB, connections hold no server side state
func (d *Dispatcher) AfterClientClose(c redis.Connection) {
}

// Close closes the underlying storage
func (d *Dispatcher) Close() {
	if err := d.storage.Close(); err != nil {
		logger.Error("close storage: " + err.Error())
	}
}

// failed logs a storage error, the returned nil becomes a generic error reply in Run
func failed(cmd *protocol.Command, err error) redis.Reply {
	logger.Errorf("%s %s: %v", cmd.Verb(), cmd.Arg(0), err)
	return nil
}

func countCommand(verb string, isErr bool) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`tabledis_commands_total{verb=%q}`, verb)).Inc()
	if isErr {
		metrics.GetOrCreateCounter(fmt.Sprintf(`tabledis_command_errors_total{verb=%q}`, verb)).Inc()
	}
}
