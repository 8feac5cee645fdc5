package pebbledb

import (
	"testing"

	"github.com/hdt3213/tabledis/engine/enginetest"
	"github.com/hdt3213/tabledis/interface/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine(t *testing.T) {
	enginetest.Run(t, func(t *testing.T) engine.Engine {
		e, err := Open(t.TempDir())
		require.NoError(t, err)
		return e
	})
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{'t', 2}, prefixEnd([]byte{'t', 1}))
	assert.Equal(t, []byte{'u'}, prefixEnd([]byte{'t', 0xff}))
	assert.Nil(t, prefixEnd([]byte{0xff, 0xff}))
}

func TestBeginAfterClose(t *testing.T) {
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, e.Close())
	_, err = e.Begin(false)
	require.ErrorIs(t, err, engine.ErrClosed)
	require.NoError(t, e.Close())
}
