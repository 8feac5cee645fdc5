package table

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64Order(t *testing.T) {
	values := []int64{math.MinInt64, -1000, -1, 0, 1, 42, math.MaxInt64}
	var prev []byte
	for _, v := range values {
		enc := appendInt64(nil, v)
		require.Equal(t, v, decodeInt64(enc))
		if prev != nil {
			require.Negative(t, bytes.Compare(prev, enc), "%d", v)
		}
		prev = enc
	}
}

func TestFloat64Order(t *testing.T) {
	values := []float64{math.Inf(-1), -1e300, -2.5, -math.SmallestNonzeroFloat64, 0, math.SmallestNonzeroFloat64, 1, 3.25, 1e300, math.Inf(1)}
	encoded := make([][]byte, len(values))
	for i, v := range values {
		encoded[i] = appendFloat64(nil, v)
		require.Equal(t, v, decodeFloat64(encoded[i]))
	}
	require.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))
}

func TestKeyPrefix(t *testing.T) {
	require.False(t, bytes.HasPrefix(keyPrefix("ab"), keyPrefix("a")))
	require.True(t, bytes.HasPrefix(memberKey("a", []byte("b")), keyPrefix("a")))
	require.True(t, bytes.HasPrefix(nodeKey("a", -1), keyPrefix("a")))
	require.True(t, bytes.HasPrefix(scoreKey("a", 1, []byte("m")), keyPrefix("a")))
}

func TestRowCodec(t *testing.T) {
	row := NewRow([]byte("k"), nil, []byte{}, Int64Col(-3), Float64Col(2.5))
	decoded, err := decodeRow(encodeRow(row))
	require.NoError(t, err)
	require.Equal(t, 5, decoded.Len())
	require.Equal(t, []byte("k"), decoded.Bytes(0))
	require.Nil(t, decoded.Bytes(1))
	require.NotNil(t, decoded.Bytes(2))
	require.Empty(t, decoded.Bytes(2))
	require.Equal(t, int64(-3), decoded.Int64(3))
	require.Equal(t, 2.5, decoded.Float64(4))
	require.Nil(t, decoded.Bytes(9))

	_, err = decodeRow([]byte{5, 'a'})
	require.ErrorIs(t, err, ErrCorruptRow)
	_, err = decodeRow([]byte{0x80})
	require.ErrorIs(t, err, ErrCorruptRow)
}
