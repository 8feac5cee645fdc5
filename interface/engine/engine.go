// Package engine defines the contract of the embedded transactional table engine.
// Data commands are rebuilt on top of it out of row operations only.
package engine

import "errors"

// ColumnType is the storage type of a column
type ColumnType int

// Column types
const (
	Varchar ColumnType = iota // bounded byte string, Column.Width is the max length
	Blob                      // variable length bytes
	Int64
	Float64
)

func (t ColumnType) String() string {
	switch t {
	case Varchar:
		return "VARCHAR"
	case Blob:
		return "BLOB"
	case Int64:
		return "INT64"
	case Float64:
		return "FLOAT64"
	}
	return "UNKNOWN"
}

// Column describes one column of a table
type Column struct {
	Name    string     `json:"name"`
	Type    ColumnType `json:"type"`
	Width   int        `json:"width,omitempty"`
	NotNull bool       `json:"notNull,omitempty"`
}

// Schema is the row layout of a table, PrimaryKey lists the indexed columns in key order
type Schema struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	PrimaryKey []string `json:"primaryKey"`
}

// ColumnIndex returns the position of the named column, -1 if missing
func (s *Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Engine creates tables and transactions. Implementations must allow concurrent Begin calls,
// writable transactions touching the same rows are serialized by the engine.
type Engine interface {
	CreateTable(schema *Schema) error
	DropTable(name string) error
	Begin(writable bool) (Tx, error)
	Close() error
}

// Tx is a unit of work. It ends with exactly one Commit or Rollback,
// committing a read-only Tx just releases it.
type Tx interface {
	Cursor(table string) (Cursor, error)
	Writable() bool
	Commit() error
	Rollback() error
}

// Cursor is a positioned handle into one table, valid until its Tx ends.
// Positioning methods return nil key when no row qualifies.
// Returned slices are owned by the caller.
type Cursor interface {
	// Seek moves to the first row whose key >= key
	Seek(key []byte) (k []byte, row []byte)
	First() (k []byte, row []byte)
	Last() (k []byte, row []byte)
	Next() (k []byte, row []byte)
	Prev() (k []byte, row []byte)

	// Insert fails with ErrDuplicateKey if key exists
	Insert(key []byte, row []byte) error
	// Update fails with ErrNotFound if key does not exist
	Update(key []byte, row []byte) error
	// Delete fails with ErrNotFound if key does not exist
	Delete(key []byte) error
	Close()
}

var (
	ErrTableNotFound  = errors.New("engine: table not found")
	ErrTableExists    = errors.New("engine: table exists with a different schema")
	ErrSchemaRejected = errors.New("engine: schema rejected")
	ErrDuplicateKey   = errors.New("engine: duplicate key")
	ErrNotFound       = errors.New("engine: row not found")
	ErrTxNotWritable  = errors.New("engine: transaction not writable")
	ErrTxDone         = errors.New("engine: transaction has been committed or rolled back")
	ErrClosed         = errors.New("engine: closed")
)
