package protocol

// UnknownErrReply is returned when a command failed without a specific cause
type UnknownErrReply struct{}

var unknownErrBytes = []byte("-ERR Unknown error\r\n")

var theUnknownErrReply = &UnknownErrReply{}

// MakeUnknownErrReply returns the shared UnknownErrReply
func MakeUnknownErrReply() *UnknownErrReply {
	return theUnknownErrReply
}

// ToBytes marshals redis.Reply
func (r *UnknownErrReply) ToBytes() []byte {
	return unknownErrBytes
}

func (r *UnknownErrReply) Error() string {
	return "ERR Unknown error"
}

// ArgNumErrReply represents wrong number of arguments for command
type ArgNumErrReply struct {
	Cmd string
}

// ToBytes marshals redis.Reply
func (r *ArgNumErrReply) ToBytes() []byte {
	return []byte("-ERR wrong number of arguments for '" + r.Cmd + "' command\r\n")
}

func (r *ArgNumErrReply) Error() string {
	return "ERR wrong number of arguments for '" + r.Cmd + "' command"
}

// MakeArgNumErrReply represents wrong number of arguments for command
func MakeArgNumErrReply(cmd string) *ArgNumErrReply {
	return &ArgNumErrReply{
		Cmd: cmd,
	}
}

// UnknownCommandErrReply represents a verb without handler
type UnknownCommandErrReply struct {
	Cmd string
}

// MakeUnknownCommandErrReply creates UnknownCommandErrReply
func MakeUnknownCommandErrReply(cmd string) *UnknownCommandErrReply {
	return &UnknownCommandErrReply{Cmd: cmd}
}

// ToBytes marshals redis.Reply
func (r *UnknownCommandErrReply) ToBytes() []byte {
	return []byte("-" + r.Error() + CRLF)
}

func (r *UnknownCommandErrReply) Error() string {
	return "ERR unknown command '" + r.Cmd + "'"
}

// ProtocolErrReply represents meeting unexpected byte during parse requests
type ProtocolErrReply struct {
	Msg string
}

// ToBytes marshals redis.Reply
func (r *ProtocolErrReply) ToBytes() []byte {
	return []byte("-" + r.Error() + CRLF)
}

func (r *ProtocolErrReply) Error() string {
	return "ERR Protocol error: '" + r.Msg + "'"
}
