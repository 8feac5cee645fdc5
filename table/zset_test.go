package table

import (
	"math"
	"testing"

	"github.com/hdt3213/tabledis/engine/faulty"
	"github.com/stretchr/testify/require"
)

func newZSet(t *testing.T) (*faulty.Engine, *ZSetHeadTable) {
	db := newEngine(t)
	zset := NewZSetHeadTable(db, "zset", "zset_score")
	install(t, zset, zset.Scores())
	return db, zset
}

// indexed returns the score index entries of key and checks that each matches the member table
func indexed(t *testing.T, zset *ZSetHeadTable, key string) []ZEntry {
	t.Helper()
	txn, err := Begin(zset.db, false)
	require.NoError(t, err)
	defer txn.Rollback()
	index, err := txn.Open(zset.Scores())
	require.NoError(t, err)
	members, err := txn.Open(zset.Table)
	require.NoError(t, err)
	var entries []ZEntry
	require.NoError(t, index.scan(keyPrefix(key), func(_ []byte, row *Row) bool {
		entries = append(entries, ZEntry{Member: row.Bytes(scoreMemberCol), Score: row.Float64(scoreScoreCol)})
		return true
	}))
	var n int
	require.NoError(t, members.scan(keyPrefix(key), func(_ []byte, row *Row) bool {
		n++
		return true
	}))
	require.Equal(t, n, len(entries))
	for _, e := range entries {
		require.NoError(t, members.seek(memberKey(key, e.Member)))
		require.NotNil(t, members.Row())
		require.Equal(t, e.Score, members.Row().Float64(zsetScoreCol))
	}
	return entries
}

func TestZSet(t *testing.T) {
	_, zset := newZSet(t)

	for _, e := range []ZEntry{{[]byte("a"), 1}, {[]byte("b"), 5}, {[]byte("c"), 3}} {
		added, err := zset.ZAdd("k", e.Score, e.Member)
		require.NoError(t, err)
		require.True(t, added)
	}
	n, err := zset.ZCount("k", 2, 5)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	score, found, err := zset.ZScore("k", []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1.0, score)
	_, found, err = zset.ZScore("k", []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)

	added, err := zset.ZAdd("k", 9, []byte("a"))
	require.NoError(t, err)
	require.False(t, added)
	score, _, err = zset.ZScore("k", []byte("a"))
	require.NoError(t, err)
	require.Equal(t, 9.0, score)
	n, err = zset.ZCard("k")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	entries := indexed(t, zset, "k")
	require.Equal(t, []ZEntry{{[]byte("c"), 3}, {[]byte("b"), 5}, {[]byte("a"), 9}}, entries)
}

func TestZCount(t *testing.T) {
	_, zset := newZSet(t)
	scores := map[string]float64{"n": -2.5, "z": 0, "p": 1, "q": 1, "big": 1e300, "inf": math.Inf(1)}
	for m, s := range scores {
		_, err := zset.ZAdd("k", s, []byte(m))
		require.NoError(t, err)
	}
	_, err := zset.ZAdd("other", 1, []byte("p"))
	require.NoError(t, err)

	cases := []struct {
		min, max float64
		want     int64
	}{
		{math.Inf(-1), math.Inf(1), 6},
		{-3, 0, 2},
		{1, 1, 2},
		{math.Copysign(0, -1), 0, 1},
		{2, 1, 0},
		{1.5, 1e301, 1},
		{math.Inf(1), math.Inf(1), 1},
	}
	for _, c := range cases {
		n, err := zset.ZCount("k", c.min, c.max)
		require.NoError(t, err)
		require.Equal(t, c.want, n, "[%v, %v]", c.min, c.max)
	}

	_, err = zset.ZCount("k", math.NaN(), 1)
	require.ErrorIs(t, err, ErrNaNScore)
	n, err := zset.ZCount("missing", math.Inf(-1), math.Inf(1))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestZAddScores(t *testing.T) {
	_, zset := newZSet(t)

	_, err := zset.ZAdd("k", math.NaN(), []byte("x"))
	require.ErrorIs(t, err, ErrNaNScore)
	n, err := zset.ZCard("k")
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = zset.ZAdd("k", math.Copysign(0, -1), []byte("x"))
	require.NoError(t, err)
	added, err := zset.ZAdd("k", 0, []byte("x"))
	require.NoError(t, err)
	require.False(t, added)
	require.Len(t, indexed(t, zset, "k"), 1)
}

func TestZRem(t *testing.T) {
	db, zset := newZSet(t)
	_, err := zset.ZAdd("k", 1, []byte("a"))
	require.NoError(t, err)
	_, err = zset.ZAdd("k", 2, []byte("b"))
	require.NoError(t, err)

	db.FailDelete()
	_, err = zset.ZRem("k", []byte("a"))
	require.ErrorIs(t, err, faulty.ErrInjected)
	require.Len(t, indexed(t, zset, "k"), 2)

	removed, err := zset.ZRem("k", []byte("a"))
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = zset.ZRem("k", []byte("a"))
	require.NoError(t, err)
	require.False(t, removed)
	require.Equal(t, []ZEntry{{[]byte("b"), 2}}, indexed(t, zset, "k"))
}

func TestZAddAtomicity(t *testing.T) {
	db, zset := newZSet(t)
	_, err := zset.ZAdd("k", 1, []byte("a"))
	require.NoError(t, err)

	// moving a member deletes its old index row, updates the member, then inserts the new index row
	db.FailInsert()
	_, err = zset.ZAdd("k", 7, []byte("a"))
	require.ErrorIs(t, err, faulty.ErrInjected)
	require.Equal(t, []ZEntry{{[]byte("a"), 1}}, indexed(t, zset, "k"))

	db.FailCommit()
	_, err = zset.ZAdd("k", 2, []byte("b"))
	require.ErrorIs(t, err, faulty.ErrInjected)
	require.Equal(t, []ZEntry{{[]byte("a"), 1}}, indexed(t, zset, "k"))
}

func TestZSetDeleteAndForEach(t *testing.T) {
	_, zset := newZSet(t)
	for _, key := range []string{"x", "y"} {
		_, err := zset.ZAdd(key, 2, []byte("m2"))
		require.NoError(t, err)
		_, err = zset.ZAdd(key, -1, []byte("m1"))
		require.NoError(t, err)
	}

	txn, err := Begin(zset.db, true)
	require.NoError(t, err)
	deleted, err := zset.DeleteKey(txn, "x")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = zset.DeleteKey(txn, "x")
	require.NoError(t, err)
	require.False(t, deleted)
	require.NoError(t, txn.Commit())
	require.Empty(t, indexed(t, zset, "x"))

	txn, err = Begin(zset.db, false)
	require.NoError(t, err)
	defer txn.Rollback()
	got := map[string][]ZEntry{}
	require.NoError(t, zset.ForEach(txn, func(key string, entries []ZEntry) bool {
		got[key] = entries
		return true
	}))
	require.Equal(t, map[string][]ZEntry{"y": {{[]byte("m1"), -1}, {[]byte("m2"), 2}}}, got)
}

func TestZSetLoad(t *testing.T) {
	_, zset := newZSet(t)
	txn, err := Begin(zset.db, true)
	require.NoError(t, err)
	require.NoError(t, zset.Load(txn, "k", []ZEntry{
		{[]byte("a"), 2}, {[]byte("b"), math.Copysign(0, -1)}, {[]byte("a"), 4},
	}))
	require.NoError(t, txn.Commit())
	require.Equal(t, []ZEntry{{[]byte("b"), 0}, {[]byte("a"), 4}}, indexed(t, zset, "k"))

	txn, err = Begin(zset.db, true)
	require.NoError(t, err)
	require.ErrorIs(t, zset.Load(txn, "nan", []ZEntry{{[]byte("m"), math.NaN()}}), ErrNaNScore)
	txn.Rollback()
	card, err := zset.ZCard("nan")
	require.NoError(t, err)
	require.Zero(t, card)
}
