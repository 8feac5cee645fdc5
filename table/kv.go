package table

import (
	"bytes"
	"errors"
	"math"
	"strconv"

	"github.com/hdt3213/tabledis/interface/engine"
)

// ErrIncrOverflow means an increment would overflow int64
var ErrIncrOverflow = errors.New("table: increment or decrement would overflow")

const (
	kvKeyCol = iota
	kvValCol
)

// KVTable stores one scalar value per key
type KVTable struct {
	*Table
}

// NewKVTable creates the adapter, CreateSchema must have been called before use
func NewKVTable(db engine.Engine, name string) *KVTable {
	return &KVTable{Table: newTable(db, &engine.Schema{
		Name: name,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "val", Type: engine.Blob, NotNull: true},
		},
		PrimaryKey: []string{"key"},
	})}
}

// Get returns the value of key, ok is false when the key does not exist
func (t *KVTable) Get(key string) ([]byte, bool, error) {
	txn, cur, err := t.getCursor(keyPrefix(key), false)
	if err != nil {
		return nil, false, err
	}
	row := cur.Row()
	if row == nil {
		txn.Rollback()
		return nil, false, nil
	}
	val := row.Bytes(kvValCol)
	if err := txn.Commit(); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores val at key, an unchanged value is not written again
func (t *KVTable) Set(key string, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	pk := keyPrefix(key)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return err
	}
	defer txn.Rollback()

	row := NewRow([]byte(key), val)
	if old := cur.Row(); old != nil {
		if bytes.Equal(old.Bytes(kvValCol), val) {
			return nil
		}
		err = t.updateRow(cur, row)
	} else {
		err = t.insertRow(cur, pk, row)
	}
	if err != nil {
		return err
	}
	return txn.Commit()
}

// Incr adds by to the integer stored at key and returns the result.
// A missing or empty value counts as 0, other values are read by parseLenient.
func (t *KVTable) Incr(key string, by int64) (int64, error) {
	pk := keyPrefix(key)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	var current int64
	old := cur.Row()
	if old != nil {
		current = parseLenient(old.Bytes(kvValCol))
	}
	if (by > 0 && current > math.MaxInt64-by) || (by < 0 && current < math.MinInt64-by) {
		return 0, ErrIncrOverflow
	}
	result := current + by
	row := NewRow([]byte(key), []byte(strconv.FormatInt(result, 10)))
	if old != nil {
		err = t.updateRow(cur, row)
	} else {
		err = t.insertRow(cur, pk, row)
	}
	if err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return result, nil
}

// Decr is Incr with a negated amount
func (t *KVTable) Decr(key string, by int64) (int64, error) {
	if by == math.MinInt64 {
		return 0, ErrIncrOverflow
	}
	return t.Incr(key, -by)
}

// DeleteKey removes the value of key within txn
func (t *KVTable) DeleteKey(txn *Txn, key string) (bool, error) {
	cur, err := txn.Open(t.Table)
	if err != nil {
		return false, err
	}
	if err := cur.seek(keyPrefix(key)); err != nil {
		return false, err
	}
	if cur.Row() == nil {
		return false, nil
	}
	if err := t.deleteRow(cur); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores val at key within txn
func (t *KVTable) Put(txn *Txn, key string, val []byte) error {
	if val == nil {
		val = []byte{}
	}
	pk := keyPrefix(key)
	cur, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	if err := cur.seek(pk); err != nil {
		return err
	}
	row := NewRow([]byte(key), val)
	if cur.Row() != nil {
		return t.updateRow(cur, row)
	}
	return t.insertRow(cur, pk, row)
}

// ForEach visits every key in txn until fn returns false
func (t *KVTable) ForEach(txn *Txn, fn func(key string, val []byte) bool) error {
	cur, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	return cur.scan(nil, func(_ []byte, row *Row) bool {
		return fn(string(row.Bytes(kvKeyCol)), row.Bytes(kvValCol))
	})
}

// parseLenient reads a stored counter the way a formatted stream extraction would:
// leading spaces are skipped, then an optional sign and the longest run of digits is taken.
// Anything unparsable reads as 0, out of range values saturate.
func parseLenient(b []byte) int64 {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r' || b[i] == '\v' || b[i] == '\f') {
		i++
	}
	negative := false
	if i < len(b) && (b[i] == '+' || b[i] == '-') {
		negative = b[i] == '-'
		i++
	}
	var n uint64
	digits := 0
	limit := uint64(math.MaxInt64)
	if negative {
		limit++
	}
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		digits++
		if n > (limit-uint64(b[i]-'0'))/10 {
			n = limit
			for i < len(b) && b[i] >= '0' && b[i] <= '9' {
				i++
			}
			break
		}
		n = n*10 + uint64(b[i]-'0')
	}
	if digits == 0 {
		return 0
	}
	if negative {
		return int64(-n)
	}
	return int64(n)
}
