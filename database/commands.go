package database

import (
	"errors"
	"math"
	"strconv"

	"github.com/hdt3213/tabledis/interface/redis"
	"github.com/hdt3213/tabledis/redis/protocol"
	"github.com/hdt3213/tabledis/table"
)

const (
	notIntegerErr = "ERR value is not an integer or out of range"
	notFloatErr   = "ERR value is not a valid float"
)

func (d *Dispatcher) registerCommands() {
	d.register("PING", d.execPing, 0, 1)
	d.register("FLUSHALL", d.execFlushAll, 0, 0)

	d.register("GET", d.execGet, 1, 1)
	d.register("SET", d.execSet, 1, 2)
	d.register("DEL", d.execDel, 1, 1)
	d.register("INCR", d.execIncr, 1, 2)
	d.register("DECR", d.execDecr, 1, 2)

	d.register("SADD", d.execSAdd, 2, 2)
	d.register("SMEMBERS", d.execSMembers, 2, 2)
	d.register("SISMEMBER", d.execSIsMember, 2, 2)
	d.register("SREM", d.execSRem, 2, 2)

	d.register("LPUSH", d.execLPush, 2, 2)
	d.register("RPUSH", d.execRPush, 2, 2)
	d.register("LLEN", d.execLLen, 1, 1)
	d.register("LRANGE", d.execLRange, 3, 3)
	d.register("LPOP", d.execLPop, 1, 1)
	d.register("RPOP", d.execRPop, 1, 1)

	d.register("ZADD", d.execZAdd, 3, 3)
	d.register("ZCARD", d.execZCard, 1, 1)
	d.register("ZREM", d.execZRem, 2, 2)
	d.register("ZSCORE", d.execZScore, 2, 2)
	d.register("ZCOUNT", d.execZCount, 3, 3)
}

func parseInt(arg []byte) (int64, bool) {
	n, err := strconv.ParseInt(string(arg), 10, 64)
	return n, err == nil
}

// parseFloat accepts inf and -inf but not NaN
func parseFloat(arg []byte) (float64, bool) {
	f, err := strconv.ParseFloat(string(arg), 64)
	if err != nil || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func boolReply(b bool) redis.Reply {
	if b {
		return protocol.MakeIntReply(1)
	}
	return protocol.MakeIntReply(0)
}

func bulkOrNull(val []byte, ok bool) redis.Reply {
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(val)
}

func (d *Dispatcher) execPing(cmd *protocol.Command) redis.Reply {
	if cmd.Argc() == 1 {
		return protocol.MakeBulkReply(cmd.Arg(0))
	}
	return &protocol.PongReply{}
}

func (d *Dispatcher) execFlushAll(cmd *protocol.Command) redis.Reply {
	if err := d.storage.FlushAll(); err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeOkReply()
}

func (d *Dispatcher) execGet(cmd *protocol.Command) redis.Reply {
	val, ok, err := d.storage.Get(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return bulkOrNull(val, ok)
}

// execSet stores an empty value when none is given
func (d *Dispatcher) execSet(cmd *protocol.Command) redis.Reply {
	val := []byte{}
	if cmd.Argc() == 2 {
		val = cmd.Arg(1)
	}
	if err := d.storage.Set(string(cmd.Arg(0)), val); err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeOkReply()
}

func (d *Dispatcher) execDel(cmd *protocol.Command) redis.Reply {
	deleted, err := d.storage.Del(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(deleted)
}

func (d *Dispatcher) amount(cmd *protocol.Command) (int64, redis.Reply) {
	if cmd.Argc() == 1 {
		return 1, nil
	}
	by, ok := parseInt(cmd.Arg(1))
	if !ok {
		return 0, protocol.MakeErrReply(notIntegerErr)
	}
	return by, nil
}

func (d *Dispatcher) execIncr(cmd *protocol.Command) redis.Reply {
	by, errReply := d.amount(cmd)
	if errReply != nil {
		return errReply
	}
	n, err := d.storage.Incr(string(cmd.Arg(0)), by)
	return d.counterReply(cmd, n, err)
}

func (d *Dispatcher) execDecr(cmd *protocol.Command) redis.Reply {
	by, errReply := d.amount(cmd)
	if errReply != nil {
		return errReply
	}
	n, err := d.storage.Decr(string(cmd.Arg(0)), by)
	return d.counterReply(cmd, n, err)
}

func (d *Dispatcher) counterReply(cmd *protocol.Command, n int64, err error) redis.Reply {
	if err == nil {
		return protocol.MakeIntReply(n)
	}
	if errors.Is(err, table.ErrIncrOverflow) {
		return protocol.MakeErrReply("ERR increment or decrement would overflow")
	}
	return failed(cmd, err)
}

func (d *Dispatcher) execSAdd(cmd *protocol.Command) redis.Reply {
	added, err := d.storage.SAdd(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(added)
}

// execSMembers ignores its second argument
func (d *Dispatcher) execSMembers(cmd *protocol.Command) redis.Reply {
	members, err := d.storage.SMembers(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeMultiBulkReply(members)
}

func (d *Dispatcher) execSIsMember(cmd *protocol.Command) redis.Reply {
	ok, err := d.storage.SIsMember(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(ok)
}

func (d *Dispatcher) execSRem(cmd *protocol.Command) redis.Reply {
	removed, err := d.storage.SRem(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(removed)
}

func (d *Dispatcher) execLPush(cmd *protocol.Command) redis.Reply {
	n, err := d.storage.LPush(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeIntReply(n)
}

func (d *Dispatcher) execRPush(cmd *protocol.Command) redis.Reply {
	n, err := d.storage.RPush(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeIntReply(n)
}

func (d *Dispatcher) execLLen(cmd *protocol.Command) redis.Reply {
	n, err := d.storage.LLen(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeIntReply(n)
}

func (d *Dispatcher) execLRange(cmd *protocol.Command) redis.Reply {
	start, ok := parseInt(cmd.Arg(1))
	if !ok {
		return protocol.MakeErrReply(notIntegerErr)
	}
	stop, ok := parseInt(cmd.Arg(2))
	if !ok {
		return protocol.MakeErrReply(notIntegerErr)
	}
	values, err := d.storage.LRange(string(cmd.Arg(0)), start, stop)
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeMultiBulkReply(values)
}

func (d *Dispatcher) execLPop(cmd *protocol.Command) redis.Reply {
	val, ok, err := d.storage.LPop(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return bulkOrNull(val, ok)
}

func (d *Dispatcher) execRPop(cmd *protocol.Command) redis.Reply {
	val, ok, err := d.storage.RPop(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return bulkOrNull(val, ok)
}

func (d *Dispatcher) execZAdd(cmd *protocol.Command) redis.Reply {
	score, ok := parseFloat(cmd.Arg(1))
	if !ok {
		return protocol.MakeErrReply(notFloatErr)
	}
	added, err := d.storage.ZAdd(string(cmd.Arg(0)), score, cmd.Arg(2))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(added)
}

func (d *Dispatcher) execZCard(cmd *protocol.Command) redis.Reply {
	n, err := d.storage.ZCard(string(cmd.Arg(0)))
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeIntReply(n)
}

func (d *Dispatcher) execZRem(cmd *protocol.Command) redis.Reply {
	removed, err := d.storage.ZRem(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	return boolReply(removed)
}

func (d *Dispatcher) execZScore(cmd *protocol.Command) redis.Reply {
	score, found, err := d.storage.ZScore(string(cmd.Arg(0)), cmd.Arg(1))
	if err != nil {
		return failed(cmd, err)
	}
	if !found {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeDoubleReply(score)
}

func (d *Dispatcher) execZCount(cmd *protocol.Command) redis.Reply {
	min, ok := parseFloat(cmd.Arg(1))
	if !ok {
		return protocol.MakeErrReply(notFloatErr)
	}
	max, ok := parseFloat(cmd.Arg(2))
	if !ok {
		return protocol.MakeErrReply(notFloatErr)
	}
	n, err := d.storage.ZCount(string(cmd.Arg(0)), min, max)
	if err != nil {
		return failed(cmd, err)
	}
	return protocol.MakeIntReply(n)
}
