// Package enginetest is a conformance suite shared by all engine.Engine implementations
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hdt3213/tabledis/interface/engine"
	"github.com/stretchr/testify/require"
)

// Factory opens a fresh, empty engine for one test
type Factory func(t *testing.T) engine.Engine

func testSchema(name string) *engine.Schema {
	return &engine.Schema{
		Name: name,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: 64, NotNull: true},
			{Name: "val", Type: engine.Blob, NotNull: true},
		},
		PrimaryKey: []string{"key"},
	}
}

// Run executes every conformance test against engines built by open
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, e engine.Engine)
	}{
		{"CreateTable", testCreateTable},
		{"RejectSchema", testRejectSchema},
		{"InsertUpdateDelete", testInsertUpdateDelete},
		{"Ordering", testOrdering},
		{"MoveAfterMutation", testMoveAfterMutation},
		{"Rollback", testRollback},
		{"ReadOnly", testReadOnly},
		{"DropTable", testDropTable},
		{"TableIsolation", testTableIsolation},
		{"ConcurrentWriters", testConcurrentWriters},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := open(t)
			defer func() {
				require.NoError(t, e.Close())
			}()
			tc.fn(t, e)
		})
	}
}

func put(t *testing.T, e engine.Engine, table string, kvs ...string) {
	tx, err := e.Begin(true)
	require.NoError(t, err)
	c, err := tx.Cursor(table)
	require.NoError(t, err)
	for i := 0; i+1 < len(kvs); i += 2 {
		require.NoError(t, c.Insert([]byte(kvs[i]), []byte(kvs[i+1])))
	}
	c.Close()
	require.NoError(t, tx.Commit())
}

func get(t *testing.T, e engine.Engine, table string, key string) ([]byte, bool) {
	tx, err := e.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	c, err := tx.Cursor(table)
	require.NoError(t, err)
	k, v := c.Seek([]byte(key))
	if k == nil || string(k) != key {
		return nil, false
	}
	return v, true
}

func keys(t *testing.T, e engine.Engine, table string) []string {
	tx, err := e.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	c, err := tx.Cursor(table)
	require.NoError(t, err)
	var result []string
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		result = append(result, string(k))
	}
	return result
}

func testCreateTable(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	// same definition again is accepted
	require.NoError(t, e.CreateTable(testSchema("kv")))

	other := testSchema("kv")
	other.Columns[0].Width = 32
	err := e.CreateTable(other)
	require.True(t, errors.Is(err, engine.ErrTableExists), "got %v", err)

	tx, err := e.Begin(false)
	require.NoError(t, err)
	_, err = tx.Cursor("missing")
	require.True(t, errors.Is(err, engine.ErrTableNotFound), "got %v", err)
	require.NoError(t, tx.Rollback())
}

func testRejectSchema(t *testing.T, e engine.Engine) {
	noPK := testSchema("a")
	noPK.PrimaryKey = nil
	nullablePK := testSchema("b")
	nullablePK.Columns[0].NotNull = false
	zeroWidth := testSchema("c")
	zeroWidth.Columns[0].Width = 0
	unknownPK := testSchema("d")
	unknownPK.PrimaryKey = []string{"nope"}
	for _, schema := range []*engine.Schema{noPK, nullablePK, zeroWidth, unknownPK, {Name: "e"}} {
		err := e.CreateTable(schema)
		require.True(t, errors.Is(err, engine.ErrSchemaRejected), "%s: got %v", schema.Name, err)
	}
}

func testInsertUpdateDelete(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "a", "1")

	tx, err := e.Begin(true)
	require.NoError(t, err)
	c, err := tx.Cursor("kv")
	require.NoError(t, err)
	require.ErrorIs(t, c.Insert([]byte("a"), []byte("2")), engine.ErrDuplicateKey)
	require.ErrorIs(t, c.Update([]byte("b"), []byte("2")), engine.ErrNotFound)
	require.ErrorIs(t, c.Delete([]byte("b")), engine.ErrNotFound)
	require.NoError(t, c.Update([]byte("a"), []byte("3")))
	require.NoError(t, c.Insert([]byte("b"), []byte("4")))
	c.Close()
	require.NoError(t, tx.Commit())
	require.ErrorIs(t, tx.Commit(), engine.ErrTxDone)

	v, ok := get(t, e, "kv", "a")
	require.True(t, ok)
	require.Equal(t, "3", string(v))

	tx, err = e.Begin(true)
	require.NoError(t, err)
	c, err = tx.Cursor("kv")
	require.NoError(t, err)
	require.NoError(t, c.Delete([]byte("a")))
	require.NoError(t, tx.Commit())

	_, ok = get(t, e, "kv", "a")
	require.False(t, ok)
	require.Equal(t, []string{"b"}, keys(t, e, "kv"))
}

func testOrdering(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "c", "3", "a", "1", "b", "2", "bb", "22")
	require.Equal(t, []string{"a", "b", "bb", "c"}, keys(t, e, "kv"))

	tx, err := e.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	c, err := tx.Cursor("kv")
	require.NoError(t, err)

	k, v := c.Seek([]byte("ba"))
	require.Equal(t, "bb", string(k))
	require.Equal(t, "22", string(v))
	k, _ = c.Prev()
	require.Equal(t, "b", string(k))
	k, _ = c.Last()
	require.Equal(t, "c", string(k))
	k, _ = c.Next()
	require.Nil(t, k)
	k, _ = c.Seek([]byte("d"))
	require.Nil(t, k)

	var backwards []string
	for k, _ := c.Last(); k != nil; k, _ = c.Prev() {
		backwards = append(backwards, string(k))
	}
	require.Equal(t, []string{"c", "bb", "b", "a"}, backwards)
}

func testMoveAfterMutation(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "a", "1", "b", "2", "c", "3", "d", "4")

	tx, err := e.Begin(true)
	require.NoError(t, err)
	c, err := tx.Cursor("kv")
	require.NoError(t, err)
	var seen []string
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		seen = append(seen, string(k))
		if string(k) == "b" {
			require.NoError(t, c.Delete(k))
			require.NoError(t, c.Insert([]byte("bz"), []byte("9")))
		}
	}
	require.Equal(t, []string{"a", "b", "bz", "c", "d"}, seen)
	require.NoError(t, tx.Commit())
	require.Equal(t, []string{"a", "bz", "c", "d"}, keys(t, e, "kv"))
}

func testRollback(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "a", "1")

	tx, err := e.Begin(true)
	require.NoError(t, err)
	c, err := tx.Cursor("kv")
	require.NoError(t, err)
	require.NoError(t, c.Update([]byte("a"), []byte("2")))
	require.NoError(t, c.Insert([]byte("b"), []byte("2")))
	require.NoError(t, tx.Rollback())
	// second rollback is a no-op
	require.NoError(t, tx.Rollback())

	v, ok := get(t, e, "kv", "a")
	require.True(t, ok)
	require.Equal(t, "1", string(v))
	_, ok = get(t, e, "kv", "b")
	require.False(t, ok)
}

func testReadOnly(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "a", "1")

	tx, err := e.Begin(false)
	require.NoError(t, err)
	require.False(t, tx.Writable())
	c, err := tx.Cursor("kv")
	require.NoError(t, err)
	require.ErrorIs(t, c.Insert([]byte("b"), []byte("2")), engine.ErrTxNotWritable)
	require.NoError(t, tx.Commit())
}

func testDropTable(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "a", "1", "b", "2")
	require.NoError(t, e.DropTable("kv"))
	require.ErrorIs(t, e.DropTable("kv"), engine.ErrTableNotFound)

	require.NoError(t, e.CreateTable(testSchema("kv")))
	require.Empty(t, keys(t, e, "kv"))
}

func testTableIsolation(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("a")))
	require.NoError(t, e.CreateTable(testSchema("ab")))
	put(t, e, "a", "x", "1")
	put(t, e, "ab", "y", "2")
	require.Equal(t, []string{"x"}, keys(t, e, "a"))
	require.Equal(t, []string{"y"}, keys(t, e, "ab"))

	require.NoError(t, e.DropTable("a"))
	require.Equal(t, []string{"y"}, keys(t, e, "ab"))
}

// concurrent read-modify-write on one row must not lose updates
func testConcurrentWriters(t *testing.T, e engine.Engine) {
	require.NoError(t, e.CreateTable(testSchema("kv")))
	put(t, e, "kv", "n", "0")

	const workers, rounds = 8, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				if err := increment(e); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	v, ok := get(t, e, "kv", "n")
	require.True(t, ok)
	require.Equal(t, fmt.Sprint(workers*rounds), string(v))
}

func increment(e engine.Engine) error {
	tx, err := e.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	c, err := tx.Cursor("kv")
	if err != nil {
		return err
	}
	_, v := c.Seek([]byte("n"))
	var n int
	if _, err := fmt.Sscan(string(v), &n); err != nil {
		return err
	}
	if err := c.Update([]byte("n"), []byte(fmt.Sprint(n+1))); err != nil {
		return err
	}
	return tx.Commit()
}
