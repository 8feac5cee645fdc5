package table

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrCorruptRow means stored bytes could not be decoded into a row
var ErrCorruptRow = errors.New("table: corrupt row")

// Row holds column values in schema order, a nil column is NULL
type Row struct {
	cols [][]byte
}

// NewRow creates a row from column values
func NewRow(cols ...[]byte) *Row {
	return &Row{cols: cols}
}

// Len returns the number of columns
func (r *Row) Len() int {
	return len(r.cols)
}

// Bytes returns the raw value of column i
func (r *Row) Bytes(i int) []byte {
	if i < 0 || i >= len(r.cols) {
		return nil
	}
	return r.cols[i]
}

// Int64 returns column i decoded as Int64, 0 when NULL
func (r *Row) Int64(i int) int64 {
	b := r.Bytes(i)
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

// Float64 returns column i decoded as Float64, 0 when NULL
func (r *Row) Float64(i int) float64 {
	b := r.Bytes(i)
	if len(b) != 8 {
		return 0
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

// Int64Col encodes v as an Int64 column value
func Int64Col(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

// Float64Col encodes v as a Float64 column value
func Float64Col(v float64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b
}

// encodeRow writes every column as uvarint(len+1) followed by its bytes, 0 marks NULL
func encodeRow(r *Row) []byte {
	size := 0
	for _, col := range r.cols {
		size += binary.MaxVarintLen64 + len(col)
	}
	buf := make([]byte, 0, size)
	for _, col := range r.cols {
		if col == nil {
			buf = binary.AppendUvarint(buf, 0)
			continue
		}
		buf = binary.AppendUvarint(buf, uint64(len(col))+1)
		buf = append(buf, col...)
	}
	return buf
}

func decodeRow(raw []byte) (*Row, error) {
	var cols [][]byte
	for len(raw) > 0 {
		n, size := binary.Uvarint(raw)
		if size <= 0 {
			return nil, ErrCorruptRow
		}
		raw = raw[size:]
		if n == 0 {
			cols = append(cols, nil)
			continue
		}
		n--
		if uint64(len(raw)) < n {
			return nil, ErrCorruptRow
		}
		cols = append(cols, raw[:n:n])
		raw = raw[n:]
	}
	return &Row{cols: cols}, nil
}
