package redis

// Connection represents a connection with redis client
type Connection interface {
	Write([]byte) (int, error)
	RemoteAddr() string
	// Name identifies the connection in logs
	Name() string
}
