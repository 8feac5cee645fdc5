package table

import (
	"testing"

	"github.com/hdt3213/tabledis/engine/faulty"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)

	for i, m := range []string{"b", "a", "b", "c", "a"} {
		added, err := set.SAdd("s", []byte(m))
		require.NoError(t, err)
		require.Equal(t, i < 2 || i == 3, added, m)
	}
	members, err := set.SMembers("s")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, members)
	n, err := set.SCard("s")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	ok, err := set.SIsMember("s", []byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = set.SIsMember("s", []byte("z"))
	require.NoError(t, err)
	require.False(t, ok)

	members, err = set.SMembers("none")
	require.NoError(t, err)
	require.NotNil(t, members)
	require.Empty(t, members)
}

func TestSetKeysDoNotOverlap(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)

	// "ab"+"c" and "a"+"bc" must stay distinct rows
	_, err := set.SAdd("ab", []byte("c"))
	require.NoError(t, err)
	_, err = set.SAdd("a", []byte("bc"))
	require.NoError(t, err)

	members, err := set.SMembers("a")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("bc")}, members)
	ok, err := set.SIsMember("ab", []byte("bc"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSRem(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)
	_, err := set.SAdd("s", []byte("m"))
	require.NoError(t, err)

	db.FailDelete()
	_, err = set.SRem("s", []byte("m"))
	require.ErrorIs(t, err, faulty.ErrInjected)
	ok, err := set.SIsMember("s", []byte("m"))
	require.NoError(t, err)
	require.True(t, ok)

	removed, err := set.SRem("s", []byte("m"))
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = set.SRem("s", []byte("m"))
	require.NoError(t, err)
	require.False(t, removed)
	n, err := set.SCard("s")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSetForEach(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)
	for _, kv := range [][2]string{{"x", "1"}, {"y", "2"}, {"x", "3"}, {"z", "4"}} {
		_, err := set.SAdd(kv[0], []byte(kv[1]))
		require.NoError(t, err)
	}

	txn, err := Begin(db, false)
	require.NoError(t, err)
	defer txn.Rollback()
	got := map[string]int{}
	require.NoError(t, set.ForEach(txn, func(key string, members [][]byte) bool {
		got[key] = len(members)
		return true
	}))
	require.Equal(t, map[string]int{"x": 2, "y": 1, "z": 1}, got)

	visited := 0
	require.NoError(t, set.ForEach(txn, func(string, [][]byte) bool {
		visited++
		return false
	}))
	require.Equal(t, 1, visited)
}

func TestSetDeleteKey(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)
	for _, m := range []string{"1", "2", "3"} {
		_, err := set.SAdd("s", []byte(m))
		require.NoError(t, err)
	}
	_, err := set.SAdd("t", []byte("1"))
	require.NoError(t, err)

	txn, err := Begin(db, true)
	require.NoError(t, err)
	deleted, err := set.DeleteKey(txn, "s")
	require.NoError(t, err)
	require.True(t, deleted)
	require.NoError(t, txn.Commit())

	n, err := set.SCard("s")
	require.NoError(t, err)
	require.Zero(t, n)
	n, err = set.SCard("t")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSetLoad(t *testing.T) {
	db := newEngine(t)
	set := NewSetTable(db, "set")
	install(t, set)
	_, err := set.SAdd("k", []byte("b"))
	require.NoError(t, err)

	txn, err := Begin(db, true)
	require.NoError(t, err)
	require.NoError(t, set.Load(txn, "k", [][]byte{[]byte("c"), []byte("a"), []byte("c"), []byte("b")}))
	require.NoError(t, txn.Commit())
	members, err := set.SMembers("k")
	require.NoError(t, err)
	require.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, members)
}
