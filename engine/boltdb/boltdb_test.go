package boltdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hdt3213/tabledis/engine/enginetest"
	"github.com/hdt3213/tabledis/interface/engine"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		e, err := Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
		require.NoError(t, err)
		return e
	})
}

func TestReservedTable(t *testing.T) {
	e, err := Open(filepath.Join(t.TempDir(), "test.db"), time.Second)
	require.NoError(t, err)
	defer e.Close()
	err = e.CreateTable(&engine.Schema{
		Name:       schemaBucketName,
		Columns:    []engine.Column{{Name: "k", Type: engine.Blob, NotNull: true}},
		PrimaryKey: []string{"k"},
	})
	require.ErrorIs(t, err, engine.ErrSchemaRejected)
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	schema := &engine.Schema{
		Name:       "kv",
		Columns:    []engine.Column{{Name: "k", Type: engine.Varchar, Width: 8, NotNull: true}},
		PrimaryKey: []string{"k"},
	}
	e, err := Open(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable(schema))
	tx, err := e.Begin(true)
	require.NoError(t, err)
	c, err := tx.Cursor("kv")
	require.NoError(t, err)
	require.NoError(t, c.Insert([]byte("a"), []byte("x")))
	require.NoError(t, tx.Commit())
	require.NoError(t, e.Close())

	e, err = Open(path, time.Second)
	require.NoError(t, err)
	defer e.Close()
	require.NoError(t, e.CreateTable(schema))
	tx, err = e.Begin(false)
	require.NoError(t, err)
	defer tx.Rollback()
	c, err = tx.Cursor("kv")
	require.NoError(t, err)
	k, v := c.First()
	require.Equal(t, "a", string(k))
	require.Equal(t, "x", string(v))
}
