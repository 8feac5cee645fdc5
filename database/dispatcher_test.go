package database

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hdt3213/tabledis/config"
	"github.com/hdt3213/tabledis/engine/boltdb"
	"github.com/hdt3213/tabledis/engine/faulty"
	"github.com/hdt3213/tabledis/lib/utils"
	"github.com/hdt3213/tabledis/redis/connection"
	"github.com/hdt3213/tabledis/redis/protocol"
	"github.com/hdt3213/tabledis/redis/protocol/asserts"
	"github.com/hdt3213/tabledis/store"
)

func newDispatcher(t *testing.T) (*Dispatcher, *faulty.Engine) {
	e, err := boltdb.Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	db := faulty.Wrap(e)
	s := store.New(db, config.Defaults())
	if err := s.Install(); err != nil {
		t.Fatal(err)
	}
	d := MakeDispatcher(s)
	t.Cleanup(func() {
		if n := db.OpenTransactions(); n != 0 {
			t.Errorf("%d transactions leaked", n)
		}
		d.Close()
	})
	return d, db
}

func line(args ...string) *protocol.Command {
	return protocol.MakeCommand(utils.ToCmdLine(args...))
}

// untouchedStorage panics on any call
type untouchedStorage struct {
	Storage
}

func TestArity(t *testing.T) {
	d := MakeDispatcher(&untouchedStorage{})
	cases := [][]string{
		{"GET"},
		{"GET", "a", "b"},
		{"SET"},
		{"SET", "a", "b", "c"},
		{"DEL"},
		{"INCR", "a", "1", "2"},
		{"SADD", "a"},
		{"SMEMBERS", "a"},
		{"LPUSH", "a"},
		{"LLEN", "a", "b"},
		{"LRANGE", "a", "0"},
		{"ZADD", "a", "1"},
		{"ZSCORE", "a"},
		{"ZCOUNT", "a", "1"},
		{"FLUSHALL", "now"},
		{"PING", "a", "b"},
	}
	for _, c := range cases {
		reply := d.Run(line(c...))
		asserts.AssertErrReply(t, reply, "ERR wrong number of arguments for '"+c[0]+"' command")
	}
}

func TestUnknownCommand(t *testing.T) {
	d := MakeDispatcher(&untouchedStorage{})
	asserts.AssertErrReply(t, d.Run(line("get", "a")), "ERR unknown command 'get'")
	asserts.AssertErrReply(t, d.Run(line("HGET", "a", "b")), "ERR unknown command 'HGET'")
}

func TestBadArguments(t *testing.T) {
	d := MakeDispatcher(&untouchedStorage{})
	asserts.AssertErrReply(t, d.Run(line("INCR", "a", "x")), notIntegerErr)
	asserts.AssertErrReply(t, d.Run(line("DECR", "a", "1.5")), notIntegerErr)
	asserts.AssertErrReply(t, d.Run(line("LRANGE", "a", "0", "end")), notIntegerErr)
	asserts.AssertErrReply(t, d.Run(line("ZADD", "a", "nan", "m")), notFloatErr)
	asserts.AssertErrReply(t, d.Run(line("ZADD", "a", "one", "m")), notFloatErr)
	asserts.AssertErrReply(t, d.Run(line("ZCOUNT", "a", "0", "x")), notFloatErr)
}

func TestPing(t *testing.T) {
	d := MakeDispatcher(&untouchedStorage{})
	asserts.AssertStatusReply(t, d.Run(line("PING")), "PONG")
	asserts.AssertBulkReply(t, d.Run(line("PING", "hi")), "hi")
}

func TestString(t *testing.T) {
	d, _ := newDispatcher(t)
	asserts.AssertNullBulk(t, d.Run(line("GET", "k")))
	asserts.AssertStatusReply(t, d.Run(line("SET", "k", "v")), "OK")
	asserts.AssertBulkReply(t, d.Run(line("GET", "k")), "v")
	asserts.AssertStatusReply(t, d.Run(line("SET", "k")), "OK")
	asserts.AssertBulkReply(t, d.Run(line("GET", "k")), "")
	binary := []byte("a\r\n\x00b")
	asserts.AssertStatusReply(t, d.Run(protocol.MakeCommand(utils.ToCmdLine2("SET", []byte("bin"), binary))), "OK")
	asserts.AssertBulkReply(t, d.Run(line("GET", "bin")), string(binary))

	asserts.AssertIntReply(t, d.Run(line("INCR", "n")), 1)
	asserts.AssertIntReply(t, d.Run(line("INCR", "n", "5")), 6)
	asserts.AssertIntReply(t, d.Run(line("DECR", "n", "10")), -4)
	asserts.AssertIntReply(t, d.Run(line("DECR", "fresh", "5")), -5)
	asserts.AssertBulkReply(t, d.Run(line("GET", "n")), "-4")

	asserts.AssertStatusReply(t, d.Run(line("SET", "max", "9223372036854775807")), "OK")
	asserts.AssertErrReply(t, d.Run(line("INCR", "max")), "ERR increment or decrement would overflow")

	asserts.AssertIntReply(t, d.Run(line("DEL", "k")), 1)
	asserts.AssertIntReply(t, d.Run(line("DEL", "k")), 0)
	asserts.AssertNullBulk(t, d.Run(line("GET", "k")))
}

func TestSet(t *testing.T) {
	d, _ := newDispatcher(t)
	asserts.AssertIntReply(t, d.Run(line("SADD", "s", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("SADD", "s", "a")), 0)
	asserts.AssertIntReply(t, d.Run(line("SADD", "s", "b")), 1)
	asserts.AssertIntReply(t, d.Run(line("SISMEMBER", "s", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("SISMEMBER", "s", "c")), 0)
	asserts.AssertMultiBulkReply(t, d.Run(line("SMEMBERS", "s", "")), []string{"a", "b"})
	asserts.AssertIntReply(t, d.Run(line("SREM", "s", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("SREM", "s", "a")), 0)
	asserts.AssertMultiBulkReply(t, d.Run(line("SMEMBERS", "s", "")), []string{"b"})
	asserts.AssertMultiBulkReply(t, d.Run(line("SMEMBERS", "missing", "")), []string{})
}

func TestList(t *testing.T) {
	d, _ := newDispatcher(t)
	asserts.AssertIntReply(t, d.Run(line("RPUSH", "l", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("RPUSH", "l", "b")), 2)
	asserts.AssertIntReply(t, d.Run(line("LPUSH", "l", "z")), 3)
	asserts.AssertMultiBulkReply(t, d.Run(line("LRANGE", "l", "0", "-1")), []string{"z", "a", "b"})
	asserts.AssertMultiBulkReply(t, d.Run(line("LRANGE", "l", "1", "1")), []string{"a"})
	asserts.AssertMultiBulkReply(t, d.Run(line("LRANGE", "l", "5", "10")), []string{})
	asserts.AssertIntReply(t, d.Run(line("LLEN", "l")), 3)
	asserts.AssertBulkReply(t, d.Run(line("LPOP", "l")), "z")
	asserts.AssertIntReply(t, d.Run(line("LLEN", "l")), 2)
	asserts.AssertBulkReply(t, d.Run(line("RPOP", "l")), "b")
	asserts.AssertBulkReply(t, d.Run(line("RPOP", "l")), "a")
	asserts.AssertNullBulk(t, d.Run(line("RPOP", "l")))
	asserts.AssertNullBulk(t, d.Run(line("LPOP", "l")))
	asserts.AssertIntReply(t, d.Run(line("LLEN", "l")), 0)
}

func TestSortedSet(t *testing.T) {
	d, _ := newDispatcher(t)
	asserts.AssertIntReply(t, d.Run(line("ZADD", "z", "1", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("ZADD", "z", "5", "b")), 1)
	asserts.AssertIntReply(t, d.Run(line("ZADD", "z", "3", "c")), 1)
	asserts.AssertIntReply(t, d.Run(line("ZCOUNT", "z", "2", "5")), 2)
	asserts.AssertIntReply(t, d.Run(line("ZCOUNT", "z", "-inf", "+inf")), 3)
	asserts.AssertDoubleReply(t, d.Run(line("ZSCORE", "z", "a")), 1)
	asserts.AssertNullBulk(t, d.Run(line("ZSCORE", "z", "missing")))
	asserts.AssertIntReply(t, d.Run(line("ZADD", "z", "9", "a")), 0)
	asserts.AssertDoubleReply(t, d.Run(line("ZSCORE", "z", "a")), 9)
	asserts.AssertIntReply(t, d.Run(line("ZCARD", "z")), 3)
	asserts.AssertIntReply(t, d.Run(line("ZREM", "z", "a")), 1)
	asserts.AssertIntReply(t, d.Run(line("ZREM", "z", "a")), 0)
	asserts.AssertIntReply(t, d.Run(line("ZCARD", "z")), 2)
}

func TestFlushAll(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Run(line("SET", "k", "v"))
	d.Run(line("RPUSH", "l", "v"))
	asserts.AssertStatusReply(t, d.Run(line("FLUSHALL")), "OK")
	asserts.AssertNullBulk(t, d.Run(line("GET", "k")))
	asserts.AssertIntReply(t, d.Run(line("LLEN", "l")), 0)
}

func TestStorageFailure(t *testing.T) {
	d, db := newDispatcher(t)
	asserts.AssertStatusReply(t, d.Run(line("SET", "k", "old")), "OK")
	db.FailCommit()
	asserts.AssertErrReply(t, d.Run(line("SET", "k", "new")), "ERR Unknown error")
	asserts.AssertBulkReply(t, d.Run(line("GET", "k")), "old")

	db.FailBegin()
	asserts.AssertErrReply(t, d.Run(line("GET", "k")), "ERR Unknown error")

	d.Run(line("RPUSH", "l", "a"))
	db.FailUpdate()
	asserts.AssertErrReply(t, d.Run(line("RPUSH", "l", "b")), "ERR Unknown error")
	asserts.AssertMultiBulkReply(t, d.Run(line("LRANGE", "l", "0", "-1")), []string{"a"})

	long := utils.RandString(65)
	asserts.AssertErrReply(t, d.Run(line("SET", long, "v")), "ERR Unknown error")
}

type brokenStorage struct {
	Storage
}

func (s *brokenStorage) Get(key string) ([]byte, bool, error) {
	return nil, false, errors.New("disk on fire")
}

func (s *brokenStorage) Close() error {
	return nil
}

func TestExec(t *testing.T) {
	d := MakeDispatcher(&brokenStorage{})
	conn := connection.NewFakeConn()
	asserts.AssertErrReply(t, d.Exec(conn, nil), "ERR empty command")
	asserts.AssertErrReply(t, d.Exec(conn, utils.ToCmdLine("GET", "k")), "ERR Unknown error")
	// storage without SET panics, Exec recovers
	asserts.AssertErrReply(t, d.Exec(conn, utils.ToCmdLine("SET", "k", "v")), "ERR Unknown error")
	d.AfterClientClose(conn)
	d.Close()
}

func TestMetrics(t *testing.T) {
	d := MakeDispatcher(&untouchedStorage{})
	d.Run(line("PING"))
	d.Run(line("GET"))
	d.Run(line("NOPE"))

	var buf bytes.Buffer
	metrics.WritePrometheus(&buf, false)
	out := buf.String()
	for _, name := range []string{
		`tabledis_commands_total{verb="PING"}`,
		`tabledis_command_errors_total{verb="GET"}`,
		`tabledis_command_errors_total{verb="unknown"}`,
	} {
		if !strings.Contains(out, name) {
			t.Errorf("missing %s in\n%s", name, out)
		}
	}
}
