// Package table maps Redis-like data types onto rows of the transactional engine.
//
// Table is the shared part: it owns a schema and drives the transaction and cursor lifecycle.
// KVTable, SetTable, ListHeadTable and ZSetHeadTable embed it and keep their own row layouts.
// Every exported adapter operation runs in exactly one transaction that is committed or
// rolled back before the operation returns.
package table

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hdt3213/tabledis/interface/engine"
)

// KeyWidth is the maximum length of a key, enforced by the key column width
const KeyWidth = 64

var (
	// ErrValueTooLong means a value exceeds the width of its Varchar column
	ErrValueTooLong = errors.New("table: value too long for column")
	// ErrNullColumn means a NOT NULL column got no value
	ErrNullColumn = errors.New("table: null value in not null column")
	// ErrColumnCount means a row does not match the column count of its schema
	ErrColumnCount = errors.New("table: wrong number of columns")
	// ErrColumnType means a fixed width column has the wrong size
	ErrColumnType = errors.New("table: illegal value for column type")
)

// Adapter is implemented by every table so the store can install and flush them uniformly
type Adapter interface {
	Name() string
	CreateSchema() error
	Drop() error
}

// KeyDeleter removes every row of a key inside a transaction shared by several tables
type KeyDeleter interface {
	DeleteKey(txn *Txn, key string) (bool, error)
}

// Table binds a schema to an engine
type Table struct {
	db     engine.Engine
	schema *engine.Schema
}

func newTable(db engine.Engine, schema *engine.Schema) *Table {
	return &Table{db: db, schema: schema}
}

// Name returns the table name
func (t *Table) Name() string {
	return t.schema.Name
}

// Schema returns the row layout of the table
func (t *Table) Schema() *engine.Schema {
	return t.schema
}

// CreateSchema installs the table definition and its primary index
func (t *Table) CreateSchema() error {
	if err := t.db.CreateTable(t.schema); err != nil {
		return fmt.Errorf("create table %s: %w", t.Name(), err)
	}
	return nil
}

// Drop removes the table with all rows
func (t *Table) Drop() error {
	if err := t.db.DropTable(t.Name()); err != nil {
		return fmt.Errorf("drop table %s: %w", t.Name(), err)
	}
	return nil
}

func (t *Table) validate(row *Row) error {
	if row.Len() != len(t.schema.Columns) {
		return fmt.Errorf("%w: %s expects %d, got %d", ErrColumnCount, t.Name(), len(t.schema.Columns), row.Len())
	}
	for i, col := range t.schema.Columns {
		value := row.Bytes(i)
		if value == nil {
			if col.NotNull {
				return fmt.Errorf("%w: %s.%s", ErrNullColumn, t.Name(), col.Name)
			}
			continue
		}
		switch col.Type {
		case engine.Varchar:
			if len(value) > col.Width {
				return fmt.Errorf("%w: %s.%s allows %d bytes, got %d", ErrValueTooLong, t.Name(), col.Name, col.Width, len(value))
			}
		case engine.Int64, engine.Float64:
			if len(value) != 8 {
				return fmt.Errorf("%w: %s.%s", ErrColumnType, t.Name(), col.Name)
			}
		}
	}
	return nil
}

// getCursor opens a transaction and a cursor positioned at key.
// cur.Row() is the current row, nil when the key is absent; the cursor then stays at the
// insertion point. The caller must finish txn with exactly one Commit or Rollback.
func (t *Table) getCursor(key []byte, writable bool) (*Txn, *Cursor, error) {
	txn, err := Begin(t.db, writable)
	if err != nil {
		return nil, nil, fmt.Errorf("begin on %s: %w", t.Name(), err)
	}
	cur, err := txn.Open(t)
	if err != nil {
		txn.Rollback()
		return nil, nil, err
	}
	if err := cur.seek(key); err != nil {
		txn.Rollback()
		return nil, nil, err
	}
	return txn, cur, nil
}

// insertRow adds a row at key
func (t *Table) insertRow(cur *Cursor, key []byte, row *Row) error {
	if err := t.validate(row); err != nil {
		return err
	}
	if err := cur.c.Insert(key, encodeRow(row)); err != nil {
		return fmt.Errorf("insert into %s: %w", t.Name(), err)
	}
	cur.key, cur.row = key, row
	return nil
}

// updateRow replaces the row the cursor is positioned at
func (t *Table) updateRow(cur *Cursor, row *Row) error {
	if err := t.validate(row); err != nil {
		return err
	}
	if cur.row == nil {
		return fmt.Errorf("update %s: %w", t.Name(), engine.ErrNotFound)
	}
	if err := cur.c.Update(cur.key, encodeRow(row)); err != nil {
		return fmt.Errorf("update %s: %w", t.Name(), err)
	}
	cur.row = row
	return nil
}

// deleteRow removes the row the cursor is positioned at
func (t *Table) deleteRow(cur *Cursor) error {
	if cur.row == nil {
		return fmt.Errorf("delete from %s: %w", t.Name(), engine.ErrNotFound)
	}
	if err := cur.c.Delete(cur.key); err != nil {
		return fmt.Errorf("delete from %s: %w", t.Name(), err)
	}
	cur.row = nil
	return nil
}

// deletePrefix removes every row whose primary key starts with prefix
func (t *Table) deletePrefix(cur *Cursor, prefix []byte) (int, error) {
	var keys [][]byte
	err := cur.scan(prefix, func(k []byte, _ *Row) bool {
		keys = append(keys, k)
		return true
	})
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := cur.c.Delete(k); err != nil {
			return 0, fmt.Errorf("delete from %s: %w", t.Name(), err)
		}
	}
	cur.row = nil
	return len(keys), nil
}

// Txn is one unit of work, possibly spanning cursors on several tables
type Txn struct {
	tx      engine.Tx
	cursors []engine.Cursor
	done    bool
}

// Begin starts a transaction on db
func Begin(db engine.Engine, writable bool) (*Txn, error) {
	tx, err := db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &Txn{tx: tx}, nil
}

// Open opens a cursor on t within the transaction
func (x *Txn) Open(t *Table) (*Cursor, error) {
	if x.done {
		return nil, engine.ErrTxDone
	}
	c, err := x.tx.Cursor(t.Name())
	if err != nil {
		return nil, fmt.Errorf("open cursor on %s: %w", t.Name(), err)
	}
	x.cursors = append(x.cursors, c)
	return &Cursor{table: t, c: c}, nil
}

func (x *Txn) release() {
	for _, c := range x.cursors {
		c.Close()
	}
	x.cursors = nil
	x.done = true
}

// Commit releases the cursors and commits
func (x *Txn) Commit() error {
	if x.done {
		return engine.ErrTxDone
	}
	x.release()
	return x.tx.Commit()
}

// Rollback releases the cursors and discards every change, it is a no-op once the Txn ended
func (x *Txn) Rollback() {
	if x.done {
		return
	}
	x.release()
	_ = x.tx.Rollback()
}

// Cursor is positioned on one row key of a table
type Cursor struct {
	table *Table
	c     engine.Cursor
	key   []byte
	row   *Row
}

// Row returns the row at the cursor, nil when absent
func (cur *Cursor) Row() *Row {
	return cur.row
}

// seek positions the cursor at key and loads the row stored exactly there
func (cur *Cursor) seek(key []byte) error {
	cur.key = key
	cur.row = nil
	k, v := cur.c.Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil
	}
	row, err := decodeRow(v)
	if err != nil {
		return fmt.Errorf("read %s: %w", cur.table.Name(), err)
	}
	cur.row = row
	return nil
}

// scan visits rows whose key starts with prefix in key order until fn returns false
func (cur *Cursor) scan(prefix []byte, fn func(k []byte, row *Row) bool) error {
	return cur.scanFrom(prefix, prefix, fn)
}

// scanFrom is scan starting at the first key >= from
func (cur *Cursor) scanFrom(prefix, from []byte, fn func(k []byte, row *Row) bool) error {
	for k, v := cur.c.Seek(from); k != nil && bytes.HasPrefix(k, prefix); k, v = cur.c.Next() {
		row, err := decodeRow(v)
		if err != nil {
			return fmt.Errorf("read %s: %w", cur.table.Name(), err)
		}
		if !fn(k, row) {
			break
		}
	}
	return nil
}
