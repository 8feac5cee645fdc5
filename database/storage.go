package database

// Storage is what command handlers need from the store layer.
// Every method runs in its own transaction; a non-nil error means nothing was changed.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, val []byte) error
	Del(key string) (bool, error)
	Incr(key string, by int64) (int64, error)
	Decr(key string, by int64) (int64, error)

	SAdd(key string, member []byte) (bool, error)
	SIsMember(key string, member []byte) (bool, error)
	SMembers(key string) ([][]byte, error)
	SRem(key string, member []byte) (bool, error)

	LPush(key string, val []byte) (int64, error)
	RPush(key string, val []byte) (int64, error)
	LPop(key string) ([]byte, bool, error)
	RPop(key string) ([]byte, bool, error)
	LLen(key string) (int64, error)
	LRange(key string, start, stop int64) ([][]byte, error)

	ZAdd(key string, score float64, member []byte) (bool, error)
	ZCard(key string) (int64, error)
	ZRem(key string, member []byte) (bool, error)
	ZScore(key string, member []byte) (float64, bool, error)
	ZCount(key string, min, max float64) (int64, error)

	FlushAll() error
	Close() error
}
