// Package pebbledb implements engine.Engine on top of pebble.
// Tables are key ranges: every row key is prefixed with the encoded table name.
package pebbledb

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/hdt3213/tabledis/interface/engine"
)

const (
	schemaSpace byte = 's'
	rowSpace    byte = 't'

	cacheSize = 64 << 20
)

// Engine keeps all tables in one pebble database. Writable transactions are indexed batches
// taken one at a time, read-only transactions read a snapshot.
type Engine struct {
	db     *pebble.DB
	writer sync.Mutex
	closed atomic.Bool
}

// Open opens or creates a pebble database in dir
func Open(dir string) (*Engine, error) {
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()
	db, err := pebble.Open(dir, &pebble.Options{
		Cache:        cache,
		MemTableSize: 32 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &Engine{db: db}, nil
}

func schemaKey(name string) []byte {
	return append([]byte{schemaSpace}, name...)
}

func tablePrefix(name string) []byte {
	prefix := make([]byte, 1, 1+binary.MaxVarintLen64+len(name))
	prefix[0] = rowSpace
	prefix = binary.AppendUvarint(prefix, uint64(len(name)))
	return append(prefix, name...)
}

// prefixEnd returns the smallest key greater than every key starting with prefix
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func loadSchema(r reader, name string) (*engine.Schema, error) {
	raw, closer, err := r.Get(schemaKey(name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	schema := &engine.Schema{}
	if err := json.Unmarshal(raw, schema); err != nil {
		return nil, fmt.Errorf("decode schema of %s: %w", name, err)
	}
	return schema, nil
}

// CreateTable records schema, an identical existing definition is accepted
func (e *Engine) CreateTable(schema *engine.Schema) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if err := engine.Validate(schema); err != nil {
		return err
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	e.writer.Lock()
	defer e.writer.Unlock()
	existing, err := loadSchema(e.db, schema.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		if !engine.SameSchema(existing, schema) {
			return fmt.Errorf("%w: %s", engine.ErrTableExists, schema.Name)
		}
		return nil
	}
	return e.db.Set(schemaKey(schema.Name), raw, pebble.Sync)
}

// DropTable deletes the schema and the whole key range of the table
func (e *Engine) DropTable(name string) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	e.writer.Lock()
	defer e.writer.Unlock()
	existing, err := loadSchema(e.db, name)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", engine.ErrTableNotFound, name)
	}
	prefix := tablePrefix(name)
	batch := e.db.NewBatch()
	defer batch.Close()
	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return err
	}
	if err := batch.Delete(schemaKey(name), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Begin starts a transaction, writable ones wait for the running writer
func (e *Engine) Begin(writable bool) (engine.Tx, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	if !writable {
		snapshot := e.db.NewSnapshot()
		return &Tx{engine: e, snapshot: snapshot, reader: snapshot}, nil
	}
	e.writer.Lock()
	batch := e.db.NewIndexedBatch()
	return &Tx{engine: e, batch: batch, reader: batch}, nil
}

// Close closes the database, transactions still running are invalid afterwards
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.db.Close()
}

// Tx is either an indexed batch or a snapshot
type Tx struct {
	engine   *Engine
	batch    *pebble.Batch
	snapshot *pebble.Snapshot
	reader   reader
	done     bool
	// first iteration failure, reported by Commit
	err error
}

// Cursor opens a cursor on the named table
func (t *Tx) Cursor(table string) (engine.Cursor, error) {
	if t.done {
		return nil, engine.ErrTxDone
	}
	schema, err := loadSchema(t.reader, table)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrTableNotFound, table)
	}
	prefix := tablePrefix(table)
	return &Cursor{tx: t, prefix: prefix, upper: prefixEnd(prefix)}, nil
}

// Writable tells whether the transaction may mutate rows
func (t *Tx) Writable() bool {
	return t.batch != nil
}

// Commit applies the batch with fsync, a read-only transaction is released
func (t *Tx) Commit() error {
	if t.done {
		return engine.ErrTxDone
	}
	t.done = true
	if t.batch == nil {
		return t.snapshot.Close()
	}
	defer t.engine.writer.Unlock()
	defer t.batch.Close()
	if t.err != nil {
		return t.err
	}
	return t.batch.Commit(pebble.Sync)
}

// Rollback drops the batch, calling it after the end of the transaction does nothing
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.batch == nil {
		return t.snapshot.Close()
	}
	defer t.engine.writer.Unlock()
	return t.batch.Close()
}

// Cursor keeps the key it is positioned at, each move runs on a fresh iterator
// so it observes every mutation made in the batch so far.
type Cursor struct {
	tx     *Tx
	prefix []byte
	upper  []byte
	pos    []byte
	closed bool
}

func (c *Cursor) full(key []byte) []byte {
	k := make([]byte, 0, len(c.prefix)+len(key))
	k = append(k, c.prefix...)
	return append(k, key...)
}

func (c *Cursor) move(position func(it *pebble.Iterator) bool) ([]byte, []byte) {
	if c.closed || c.tx.done {
		return nil, nil
	}
	it, err := c.tx.reader.NewIter(&pebble.IterOptions{
		LowerBound: c.prefix,
		UpperBound: c.upper,
	})
	if err != nil {
		if c.tx.err == nil {
			c.tx.err = err
		}
		c.pos = nil
		return nil, nil
	}
	defer it.Close()
	if !position(it) || !it.Valid() {
		c.pos = nil
		return nil, nil
	}
	key := bytes.Clone(it.Key()[len(c.prefix):])
	value, err := it.ValueAndErr()
	if err != nil {
		if c.tx.err == nil {
			c.tx.err = err
		}
		c.pos = nil
		return nil, nil
	}
	c.pos = key
	return bytes.Clone(key), bytes.Clone(value)
}

// Seek moves to the first row whose key >= key
func (c *Cursor) Seek(key []byte) ([]byte, []byte) {
	target := c.full(key)
	return c.move(func(it *pebble.Iterator) bool {
		return it.SeekGE(target)
	})
}

// First moves to the smallest key
func (c *Cursor) First() ([]byte, []byte) {
	return c.move(func(it *pebble.Iterator) bool {
		return it.First()
	})
}

// Last moves to the greatest key
func (c *Cursor) Last() ([]byte, []byte) {
	return c.move(func(it *pebble.Iterator) bool {
		return it.Last()
	})
}

// Next moves to the first key after the current one
func (c *Cursor) Next() ([]byte, []byte) {
	if c.pos == nil {
		return nil, nil
	}
	current := c.full(c.pos)
	return c.move(func(it *pebble.Iterator) bool {
		if !it.SeekGE(current) {
			return false
		}
		if bytes.Equal(it.Key(), current) {
			return it.Next()
		}
		return true
	})
}

// Prev moves to the last key before the current one
func (c *Cursor) Prev() ([]byte, []byte) {
	if c.pos == nil {
		return nil, nil
	}
	current := c.full(c.pos)
	return c.move(func(it *pebble.Iterator) bool {
		return it.SeekLT(current)
	})
}

func (c *Cursor) exists(key []byte) (bool, error) {
	_, closer, err := c.tx.reader.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (c *Cursor) checkWrite() error {
	if c.closed || c.tx.done {
		return engine.ErrTxDone
	}
	if c.tx.batch == nil {
		return engine.ErrTxNotWritable
	}
	return nil
}

// Insert adds a new row
func (c *Cursor) Insert(key []byte, row []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	full := c.full(key)
	ok, err := c.exists(full)
	if err != nil {
		return err
	}
	if ok {
		return engine.ErrDuplicateKey
	}
	return c.tx.batch.Set(full, row, nil)
}

// Update replaces an existing row
func (c *Cursor) Update(key []byte, row []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	full := c.full(key)
	ok, err := c.exists(full)
	if err != nil {
		return err
	}
	if !ok {
		return engine.ErrNotFound
	}
	return c.tx.batch.Set(full, row, nil)
}

// Delete removes an existing row
func (c *Cursor) Delete(key []byte) error {
	if err := c.checkWrite(); err != nil {
		return err
	}
	full := c.full(key)
	ok, err := c.exists(full)
	if err != nil {
		return err
	}
	if !ok {
		return engine.ErrNotFound
	}
	return c.tx.batch.Delete(full, nil)
}

// Close releases the cursor
func (c *Cursor) Close() {
	c.closed = true
	c.pos = nil
}
