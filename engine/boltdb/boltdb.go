// Package boltdb implements engine.Engine on top of an embedded bolt database.
// Every table is a bucket, schemas are kept as json in a reserved bucket.
package boltdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/hdt3213/tabledis/interface/engine"
)

const schemaBucketName = "__schema__"

var schemaBucket = []byte(schemaBucketName)

// Engine stores tables in a bolt file. bolt serializes writable transactions,
// read-only transactions run concurrently on a consistent snapshot.
type Engine struct {
	db *bolt.DB
}

// Open opens or creates the database file at path, waiting at most timeout for the file lock
func Open(path string, timeout time.Duration) (*Engine, error) {
	db, err := bolt.Open(path, os.FileMode(0600), &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(schemaBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Engine{db: db}, nil
}

// CreateTable creates a bucket for schema, an identical existing definition is accepted
func (e *Engine) CreateTable(schema *engine.Schema) error {
	if err := engine.Validate(schema); err != nil {
		return err
	}
	if schema.Name == schemaBucketName {
		return fmt.Errorf("%w: %s is reserved", engine.ErrSchemaRejected, schema.Name)
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	name := []byte(schema.Name)
	return translate(e.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(schemaBucket)
		if old := meta.Get(name); old != nil {
			existing := &engine.Schema{}
			if err := json.Unmarshal(old, existing); err != nil {
				return fmt.Errorf("decode schema of %s: %w", schema.Name, err)
			}
			if !engine.SameSchema(existing, schema) {
				return fmt.Errorf("%w: %s", engine.ErrTableExists, schema.Name)
			}
			_, err := tx.CreateBucketIfNotExists(name)
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
		return meta.Put(name, raw)
	}))
}

// DropTable removes the table with all its rows
func (e *Engine) DropTable(name string) error {
	key := []byte(name)
	return translate(e.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(schemaBucket)
		if meta.Get(key) == nil {
			return fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
		}
		if err := tx.DeleteBucket(key); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		return meta.Delete(key)
	}))
}

// Begin starts a transaction, writable ones block until the previous writer finishes
func (e *Engine) Begin(writable bool) (engine.Tx, error) {
	tx, err := e.db.Begin(writable)
	if err != nil {
		return nil, translate(err)
	}
	return &Tx{tx: tx}, nil
}

// Close closes the database file
func (e *Engine) Close() error {
	return e.db.Close()
}

// Tx wraps bolt.Tx
type Tx struct {
	tx   *bolt.Tx
	done bool
}

// Cursor opens a cursor on the named table
func (t *Tx) Cursor(table string) (engine.Cursor, error) {
	if t.done {
		return nil, engine.ErrTxDone
	}
	if table == schemaBucketName {
		return nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, table)
	}
	bucket := t.tx.Bucket([]byte(table))
	if bucket == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, table)
	}
	return &Cursor{bucket: bucket, writable: t.tx.Writable()}, nil
}

// Writable tells whether the transaction may mutate rows
func (t *Tx) Writable() bool {
	return t.tx.Writable()
}

// Commit persists a writable transaction and releases a read-only one
func (t *Tx) Commit() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if !t.tx.Writable() {
		return translate(t.tx.Rollback())
	}
	// bolt rolls back by itself when commit fails
	return translate(t.tx.Commit())
}

// Rollback discards the transaction, calling it after the end of the transaction does nothing
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return translate(t.tx.Rollback())
}

// Cursor remembers the key it is positioned at and repositions a fresh bolt cursor on every move,
// so moving stays correct after the bucket has been mutated.
type Cursor struct {
	bucket   *bolt.Bucket
	writable bool
	pos      []byte
	closed   bool
}

func (c *Cursor) settle(k, v []byte) ([]byte, []byte) {
	if k == nil {
		c.pos = nil
		return nil, nil
	}
	c.pos = clone(k)
	return clone(k), clone(v)
}

// Seek moves to the first row whose key >= key
func (c *Cursor) Seek(key []byte) ([]byte, []byte) {
	if c.closed {
		return nil, nil
	}
	return c.settle(c.bucket.Cursor().Seek(key))
}

// First moves to the smallest key
func (c *Cursor) First() ([]byte, []byte) {
	if c.closed {
		return nil, nil
	}
	return c.settle(c.bucket.Cursor().First())
}

// Last moves to the greatest key
func (c *Cursor) Last() ([]byte, []byte) {
	if c.closed {
		return nil, nil
	}
	return c.settle(c.bucket.Cursor().Last())
}

// Next moves to the first key after the current one
func (c *Cursor) Next() ([]byte, []byte) {
	if c.closed || c.pos == nil {
		return nil, nil
	}
	bc := c.bucket.Cursor()
	k, v := bc.Seek(c.pos)
	if k != nil && bytes.Equal(k, c.pos) {
		k, v = bc.Next()
	}
	return c.settle(k, v)
}

// Prev moves to the last key before the current one
func (c *Cursor) Prev() ([]byte, []byte) {
	if c.closed || c.pos == nil {
		return nil, nil
	}
	bc := c.bucket.Cursor()
	k, v := bc.Seek(c.pos)
	if k == nil {
		k, v = bc.Last()
	} else {
		k, v = bc.Prev()
	}
	return c.settle(k, v)
}

func (c *Cursor) exists(key []byte) bool {
	k, _ := c.bucket.Cursor().Seek(key)
	return k != nil && bytes.Equal(k, key)
}

func (c *Cursor) checkWrite() error {
	if c.closed {
		return engine.ErrTxDone
	}
	if !c.writable {
		return engine.ErrTxNotWritable
	}
	return nil
}

// Insert adds a new row
func (c *Cursor) Insert(key []byte, row []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	if c.exists(key) {
		return engine.ErrDuplicateKey
	}
	return translate(c.bucket.Put(key, row))
}

// Update replaces an existing row
func (c *Cursor) Update(key []byte, row []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	if !c.exists(key) {
		return engine.ErrNotFound
	}
	return translate(c.bucket.Put(key, row))
}

// Delete removes an existing row
func (c *Cursor) Delete(key []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	if !c.exists(key) {
		return engine.ErrNotFound
	}
	return translate(c.bucket.Delete(key))
}

// Close releases the cursor, the rows stay owned by the transaction
func (c *Cursor) Close() {
	c.closed = true
	c.pos = nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bolt.ErrDatabaseNotOpen):
		return engine.ErrClosed
	case errors.Is(err, bolt.ErrTxNotWritable):
		return engine.ErrTxNotWritable
	case errors.Is(err, bolt.ErrTxClosed):
		return engine.ErrTxDone
	}
	return err
}
