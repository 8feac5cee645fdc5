package table

import (
	"errors"
	"fmt"

	"github.com/hdt3213/tabledis/interface/engine"
)

// ErrBrokenList means a head row references a node that does not exist
var ErrBrokenList = errors.New("table: list links are broken")

const (
	headKeyCol = iota
	headHeadCol
	headTailCol
	headCountCol
)

const (
	nodeKeyCol = iota
	nodeSeqCol
	nodePrevCol
	nodeNextCol
	nodeValCol
)

// ListHeadTable keeps one descriptor row per list (head id, tail id, count) and one node row per
// element. Node ids are sequence numbers: a push at the front takes head-1, a push at the back
// takes tail+1, so the primary key order of the nodes is the list order. Nodes still carry
// prev/next ids, NULL at both ends.
type ListHeadTable struct {
	*Table
	nodes *Table
}

// NewListHeadTable creates the adapter over two tables: name for heads and nodeName for nodes
func NewListHeadTable(db engine.Engine, name, nodeName string) *ListHeadTable {
	heads := newTable(db, &engine.Schema{
		Name: name,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "head", Type: engine.Int64, NotNull: true},
			{Name: "tail", Type: engine.Int64, NotNull: true},
			{Name: "count", Type: engine.Int64, NotNull: true},
		},
		PrimaryKey: []string{"key"},
	})
	nodes := newTable(db, &engine.Schema{
		Name: nodeName,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "seq", Type: engine.Int64, NotNull: true},
			{Name: "prev", Type: engine.Int64},
			{Name: "next", Type: engine.Int64},
			{Name: "val", Type: engine.Blob, NotNull: true},
		},
		PrimaryKey: []string{"key", "seq"},
	})
	return &ListHeadTable{Table: heads, nodes: nodes}
}

// Nodes returns the table holding list elements
func (t *ListHeadTable) Nodes() *Table {
	return t.nodes
}

func nodeKey(key string, seq int64) []byte {
	return appendInt64(keyPrefix(key), seq)
}

func headRow(key string, head, tail, count int64) *Row {
	return NewRow([]byte(key), Int64Col(head), Int64Col(tail), Int64Col(count))
}

func nodeRow(key string, seq int64, prev, next []byte, val []byte) *Row {
	return NewRow([]byte(key), Int64Col(seq), prev, next, val)
}

// relink rewrites one link column of the node seq
func (t *ListHeadTable) relink(nodes *Cursor, key string, seq int64, col int, link []byte) error {
	if err := nodes.seek(nodeKey(key, seq)); err != nil {
		return err
	}
	node := nodes.Row()
	if node == nil {
		return fmt.Errorf("%w: %s node %d missing", ErrBrokenList, key, seq)
	}
	cols := [][]byte{node.Bytes(nodeKeyCol), node.Bytes(nodeSeqCol), node.Bytes(nodePrevCol), node.Bytes(nodeNextCol), node.Bytes(nodeValCol)}
	cols[col] = link
	return t.nodes.updateRow(nodes, NewRow(cols...))
}

func (t *ListHeadTable) push(key string, val []byte, front bool) (int64, error) {
	if val == nil {
		val = []byte{}
	}
	pk := keyPrefix(key)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return 0, err
	}

	var head, tail, count int64
	if desc := cur.Row(); desc != nil {
		head, tail, count = desc.Int64(headHeadCol), desc.Int64(headTailCol), desc.Int64(headCountCol)
	}
	var seq int64
	var node *Row
	switch {
	case count == 0:
		head, tail = 0, 0
		node = nodeRow(key, seq, nil, nil, val)
	case front:
		seq = head - 1
		if err := t.relink(nodes, key, head, nodePrevCol, Int64Col(seq)); err != nil {
			return 0, err
		}
		node = nodeRow(key, seq, nil, Int64Col(head), val)
		head = seq
	default:
		seq = tail + 1
		if err := t.relink(nodes, key, tail, nodeNextCol, Int64Col(seq)); err != nil {
			return 0, err
		}
		node = nodeRow(key, seq, Int64Col(tail), nil, val)
		tail = seq
	}
	if err := t.nodes.insertRow(nodes, nodeKey(key, seq), node); err != nil {
		return 0, err
	}
	count++
	desc := headRow(key, head, tail, count)
	if cur.Row() == nil {
		err = t.insertRow(cur, pk, desc)
	} else {
		err = t.updateRow(cur, desc)
	}
	if err != nil {
		return 0, err
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// LPush inserts val at the front and returns the new length
func (t *ListHeadTable) LPush(key string, val []byte) (int64, error) {
	return t.push(key, val, true)
}

// RPush appends val at the back and returns the new length
func (t *ListHeadTable) RPush(key string, val []byte) (int64, error) {
	return t.push(key, val, false)
}

func (t *ListHeadTable) pop(key string, front bool) ([]byte, bool, error) {
	pk := keyPrefix(key)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return nil, false, err
	}
	defer txn.Rollback()
	desc := cur.Row()
	if desc == nil {
		return nil, false, nil
	}
	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return nil, false, err
	}
	head, tail, count := desc.Int64(headHeadCol), desc.Int64(headTailCol), desc.Int64(headCountCol)
	seq := tail
	if front {
		seq = head
	}
	if err := nodes.seek(nodeKey(key, seq)); err != nil {
		return nil, false, err
	}
	node := nodes.Row()
	if node == nil {
		return nil, false, fmt.Errorf("%w: %s node %d missing", ErrBrokenList, key, seq)
	}
	val := node.Bytes(nodeValCol)
	if err := t.nodes.deleteRow(nodes); err != nil {
		return nil, false, err
	}

	if count <= 1 {
		err = t.deleteRow(cur)
	} else {
		// the neighbour becomes the new end and loses its link to the popped node
		linkCol, neighbourCol := nodePrevCol, nodeNextCol
		if !front {
			linkCol, neighbourCol = nodeNextCol, nodePrevCol
		}
		if node.Bytes(neighbourCol) == nil {
			return nil, false, fmt.Errorf("%w: %s node %d has no neighbour", ErrBrokenList, key, seq)
		}
		next := node.Int64(neighbourCol)
		if err := t.relink(nodes, key, next, linkCol, nil); err != nil {
			return nil, false, err
		}
		if front {
			head = next
		} else {
			tail = next
		}
		err = t.updateRow(cur, headRow(key, head, tail, count-1))
	}
	if err != nil {
		return nil, false, err
	}
	if err := txn.Commit(); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// LPop removes and returns the first element, ok is false for an empty list
func (t *ListHeadTable) LPop(key string) ([]byte, bool, error) {
	return t.pop(key, true)
}

// RPop removes and returns the last element, ok is false for an empty list
func (t *ListHeadTable) RPop(key string) ([]byte, bool, error) {
	return t.pop(key, false)
}

// LLen returns the length of the list, 0 when absent
func (t *ListHeadTable) LLen(key string) (int64, error) {
	txn, cur, err := t.getCursor(keyPrefix(key), false)
	if err != nil {
		return 0, err
	}
	var count int64
	if desc := cur.Row(); desc != nil {
		count = desc.Int64(headCountCol)
	}
	if err := txn.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// LRange returns elements start..stop inclusive, negative indexes count from the tail.
// Out of range indexes are clamped.
func (t *ListHeadTable) LRange(key string, start, stop int64) ([][]byte, error) {
	txn, cur, err := t.getCursor(keyPrefix(key), false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()
	result := make([][]byte, 0)
	desc := cur.Row()
	if desc == nil {
		return result, txn.Commit()
	}
	head, size := desc.Int64(headHeadCol), desc.Int64(headCountCol)
	begin, end := rangeBounds(start, stop, size)
	if begin >= end {
		return result, txn.Commit()
	}

	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return nil, err
	}
	want := int(end - begin)
	err = nodes.scanFrom(keyPrefix(key), nodeKey(key, head+begin), func(_ []byte, row *Row) bool {
		result = append(result, row.Bytes(nodeValCol))
		return len(result) < want
	})
	if err != nil {
		return nil, err
	}
	if len(result) != want {
		return nil, fmt.Errorf("%w: %s has %d nodes in range, want %d", ErrBrokenList, key, len(result), want)
	}
	return result, txn.Commit()
}

// rangeBounds converts inclusive redis indexes into a half open interval [begin, end) within size
func rangeBounds(start, stop, size int64) (int64, int64) {
	if start < -size {
		start = 0
	} else if start < 0 {
		start = size + start
	} else if start >= size {
		return 0, 0
	}
	if stop < -size {
		stop = 0
	} else if stop < 0 {
		stop = size + stop + 1
	} else if stop < size {
		stop = stop + 1
	} else {
		stop = size
	}
	if stop < start {
		stop = start
	}
	return start, stop
}

// DeleteKey removes the list with all nodes within txn
func (t *ListHeadTable) DeleteKey(txn *Txn, key string) (bool, error) {
	heads, err := txn.Open(t.Table)
	if err != nil {
		return false, err
	}
	if err := heads.seek(keyPrefix(key)); err != nil {
		return false, err
	}
	if heads.Row() == nil {
		return false, nil
	}
	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return false, err
	}
	if _, err := t.nodes.deletePrefix(nodes, keyPrefix(key)); err != nil {
		return false, err
	}
	if err := t.deleteRow(heads); err != nil {
		return false, err
	}
	return true, nil
}

// Load writes values as the list stored at key within txn. The key must hold no list in txn,
// callers run DeleteKey first.
func (t *ListHeadTable) Load(txn *Txn, key string, values [][]byte) error {
	if len(values) == 0 {
		return nil
	}
	heads, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return err
	}
	last := int64(len(values) - 1)
	for i, val := range values {
		if val == nil {
			val = []byte{}
		}
		seq := int64(i)
		var prev, next []byte
		if seq > 0 {
			prev = Int64Col(seq - 1)
		}
		if seq < last {
			next = Int64Col(seq + 1)
		}
		if err := t.nodes.insertRow(nodes, nodeKey(key, seq), nodeRow(key, seq, prev, next, val)); err != nil {
			return err
		}
	}
	return t.insertRow(heads, keyPrefix(key), headRow(key, 0, last, last+1))
}

// ForEach visits every list in head to tail order within txn until fn returns false
func (t *ListHeadTable) ForEach(txn *Txn, fn func(key string, values [][]byte) bool) error {
	heads, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	nodes, err := txn.Open(t.nodes)
	if err != nil {
		return err
	}
	var scanErr error
	err = heads.scan(nil, func(_ []byte, desc *Row) bool {
		key := string(desc.Bytes(headKeyCol))
		values := make([][]byte, 0, desc.Int64(headCountCol))
		scanErr = nodes.scan(keyPrefix(key), func(_ []byte, node *Row) bool {
			values = append(values, node.Bytes(nodeValCol))
			return true
		})
		if scanErr != nil {
			return false
		}
		return fn(key, values)
	})
	if err != nil {
		return err
	}
	return scanErr
}
