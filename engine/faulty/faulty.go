// Package faulty decorates an engine.Engine with failure injection and transaction accounting.
// It is used by tests to prove that failed operations leave no partial state behind
// and that every transaction is released.
package faulty

import (
	"errors"
	"sync/atomic"

	"github.com/hdt3213/tabledis/interface/engine"
)

// ErrInjected is returned by every injected failure
var ErrInjected = errors.New("faulty: injected failure")

// Engine wraps another engine. Each Fail* call arms exactly one failure of that kind.
type Engine struct {
	inner engine.Engine

	begin  atomic.Int32
	cursor atomic.Int32
	insert atomic.Int32
	update atomic.Int32
	remove atomic.Int32
	commit atomic.Int32

	open atomic.Int64
}

// Wrap decorates inner
func Wrap(inner engine.Engine) *Engine {
	return &Engine{inner: inner}
}

// FailBegin makes the next Begin fail
func (e *Engine) FailBegin() { e.begin.Add(1) }

// FailCursor makes the next Tx.Cursor fail
func (e *Engine) FailCursor() { e.cursor.Add(1) }

// FailInsert makes the next Cursor.Insert fail without writing
func (e *Engine) FailInsert() { e.insert.Add(1) }

// FailUpdate makes the next Cursor.Update fail without writing
func (e *Engine) FailUpdate() { e.update.Add(1) }

// FailDelete makes the next Cursor.Delete fail without writing
func (e *Engine) FailDelete() { e.remove.Add(1) }

// FailCommit makes the next writable Commit roll back and fail
func (e *Engine) FailCommit() { e.commit.Add(1) }

// OpenTransactions returns the number of transactions begun and not yet ended
func (e *Engine) OpenTransactions() int64 {
	return e.open.Load()
}

// take consumes one armed failure of a kind
func take(counter *atomic.Int32) bool {
	for {
		n := counter.Load()
		if n <= 0 {
			return false
		}
		if counter.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// CreateTable delegates to the wrapped engine
func (e *Engine) CreateTable(schema *engine.Schema) error {
	return e.inner.CreateTable(schema)
}

// DropTable delegates to the wrapped engine
func (e *Engine) DropTable(name string) error {
	return e.inner.DropTable(name)
}

// Begin starts a counted transaction
func (e *Engine) Begin(writable bool) (engine.Tx, error) {
	if take(&e.begin) {
		return nil, ErrInjected
	}
	tx, err := e.inner.Begin(writable)
	if err != nil {
		return nil, err
	}
	e.open.Add(1)
	return &Tx{engine: e, inner: tx}, nil
}

// Close delegates to the wrapped engine
func (e *Engine) Close() error {
	return e.inner.Close()
}

// Tx counts its own termination once
type Tx struct {
	engine *Engine
	inner  engine.Tx
	ended  bool
}

func (t *Tx) end() {
	if !t.ended {
		t.ended = true
		t.engine.open.Add(-1)
	}
}

// Cursor opens a cursor on the wrapped transaction
func (t *Tx) Cursor(table string) (engine.Cursor, error) {
	if take(&t.engine.cursor) {
		return nil, ErrInjected
	}
	c, err := t.inner.Cursor(table)
	if err != nil {
		return nil, err
	}
	return &Cursor{Cursor: c, engine: t.engine}, nil
}

// Writable delegates to the wrapped transaction
func (t *Tx) Writable() bool {
	return t.inner.Writable()
}

// Commit commits, or rolls back when a commit failure is armed
func (t *Tx) Commit() error {
	defer t.end()
	if t.inner.Writable() && take(&t.engine.commit) {
		_ = t.inner.Rollback()
		return ErrInjected
	}
	return t.inner.Commit()
}

// Rollback delegates to the wrapped transaction
func (t *Tx) Rollback() error {
	defer t.end()
	return t.inner.Rollback()
}

// Cursor intercepts mutations, positioning is inherited from the wrapped cursor
type Cursor struct {
	engine.Cursor
	engine *Engine
}

// Insert fails when armed
func (c *Cursor) Insert(key []byte, row []byte) error {
	if take(&c.engine.insert) {
		return ErrInjected
	}
	return c.Cursor.Insert(key, row)
}

// Update fails when armed
func (c *Cursor) Update(key []byte, row []byte) error {
	if take(&c.engine.update) {
		return ErrInjected
	}
	return c.Cursor.Update(key, row)
}

// Delete fails when armed
func (c *Cursor) Delete(key []byte) error {
	if take(&c.engine.remove) {
		return ErrInjected
	}
	return c.Cursor.Delete(key)
}
