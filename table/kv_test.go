package table

import (
	"math"
	"testing"

	"github.com/hdt3213/tabledis/engine/faulty"
	"github.com/stretchr/testify/require"
)

func TestKV(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)

	_, ok, err := kv.Get("a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, kv.Set("a", []byte("1")))
	require.NoError(t, kv.Set("a", []byte("2")))
	val, ok, err := kv.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("2"), val)

	require.NoError(t, kv.Set("empty", nil))
	val, ok, err = kv.Get("empty")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, val)
}

func TestSetUnchanged(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)
	require.NoError(t, kv.Set("a", []byte("v")))

	// the value is equal so no update may reach the engine
	db.FailUpdate()
	require.NoError(t, kv.Set("a", []byte("v")))
	val, _, err := kv.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)

	require.ErrorIs(t, kv.Set("a", []byte("w")), faulty.ErrInjected)
}

func TestIncr(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)

	n, err := kv.Incr("k", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	n, err = kv.Incr("k", 1)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
	val, _, err := kv.Get("k")
	require.NoError(t, err)
	require.Equal(t, "6", string(val))

	n, err = kv.Decr("fresh", 5)
	require.NoError(t, err)
	require.Equal(t, int64(-5), n)

	require.NoError(t, kv.Set("junk", []byte("abc")))
	n, err = kv.Incr("junk", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	require.NoError(t, kv.Set("prefix", []byte(" 12abc")))
	n, err = kv.Incr("prefix", 1)
	require.NoError(t, err)
	require.Equal(t, int64(13), n)
}

func TestIncrOverflow(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)

	_, err := kv.Incr("k", math.MaxInt64)
	require.NoError(t, err)
	_, err = kv.Incr("k", 1)
	require.ErrorIs(t, err, ErrIncrOverflow)
	_, err = kv.Decr("k", math.MinInt64)
	require.ErrorIs(t, err, ErrIncrOverflow)

	val, _, err := kv.Get("k")
	require.NoError(t, err)
	require.Equal(t, "9223372036854775807", string(val))
}

func TestIncrAtomicity(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)
	_, err := kv.Incr("k", 10)
	require.NoError(t, err)

	db.FailCommit()
	_, err = kv.Incr("k", 1)
	require.ErrorIs(t, err, faulty.ErrInjected)
	val, _, err := kv.Get("k")
	require.NoError(t, err)
	require.Equal(t, "10", string(val))

	db.FailCommit()
	require.ErrorIs(t, kv.Set("new", []byte("x")), faulty.ErrInjected)
	_, ok, err := kv.Get("new")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVDeleteAndForEach(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)
	require.NoError(t, kv.Set("b", []byte("2")))
	require.NoError(t, kv.Set("a", []byte("1")))

	txn, err := Begin(db, false)
	require.NoError(t, err)
	got := map[string]string{}
	require.NoError(t, kv.ForEach(txn, func(key string, val []byte) bool {
		got[key] = string(val)
		return true
	}))
	require.NoError(t, txn.Commit())
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, got)

	txn, err = Begin(db, true)
	require.NoError(t, err)
	deleted, err := kv.DeleteKey(txn, "a")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = kv.DeleteKey(txn, "missing")
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, txn.Commit())

	_, ok, err := kv.Get("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVPut(t *testing.T) {
	db := newEngine(t)
	kv := NewKVTable(db, "kv")
	install(t, kv)
	require.NoError(t, kv.Set("a", []byte("old")))

	txn, err := Begin(db, true)
	require.NoError(t, err)
	require.NoError(t, kv.Put(txn, "a", []byte("new")))
	require.NoError(t, kv.Put(txn, "b", nil))
	txn.Rollback()
	val, _, err := kv.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("old"), val)

	txn, err = Begin(db, true)
	require.NoError(t, err)
	require.NoError(t, kv.Put(txn, "a", []byte("new")))
	require.NoError(t, kv.Put(txn, "b", nil))
	require.NoError(t, txn.Commit())
	val, _, err = kv.Get("a")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), val)
	val, ok, err := kv.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, val)
}

func TestParseLenient(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"42", 42},
		{"  -7", -7},
		{"+3x", 3},
		{"x3", 0},
		{"-", 0},
		{"99999999999999999999", math.MaxInt64},
		{"-99999999999999999999", math.MinInt64},
		{"-9223372036854775808", math.MinInt64},
	}
	for _, c := range cases {
		require.Equal(t, c.want, parseLenient([]byte(c.in)), c.in)
	}
}
