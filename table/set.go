package table

import (
	"bytes"

	"github.com/hdt3213/tabledis/interface/engine"
)

const (
	setKeyCol = iota
	setMemberCol
)

// SetTable stores one row per (key, member) pair, so membership is a primary key lookup
type SetTable struct {
	*Table
}

// NewSetTable creates the adapter
func NewSetTable(db engine.Engine, name string) *SetTable {
	return &SetTable{Table: newTable(db, &engine.Schema{
		Name: name,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "member", Type: engine.Blob, NotNull: true},
		},
		PrimaryKey: []string{"key", "member"},
	})}
}

func memberKey(key string, member []byte) []byte {
	return append(keyPrefix(key), member...)
}

// SAdd adds member to the set, added is false when it was already present
func (t *SetTable) SAdd(key string, member []byte) (added bool, err error) {
	if member == nil {
		member = []byte{}
	}
	pk := memberKey(key, member)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()
	if cur.Row() != nil {
		return false, nil
	}
	if err := t.insertRow(cur, pk, NewRow([]byte(key), member)); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// SIsMember tells whether member belongs to the set
func (t *SetTable) SIsMember(key string, member []byte) (bool, error) {
	txn, cur, err := t.getCursor(memberKey(key, member), false)
	if err != nil {
		return false, err
	}
	found := cur.Row() != nil
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return found, nil
}

// SMembers returns all members of the set in bytewise order
func (t *SetTable) SMembers(key string) ([][]byte, error) {
	prefix := keyPrefix(key)
	txn, cur, err := t.getCursor(prefix, false)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()
	members := make([][]byte, 0)
	err = cur.scan(prefix, func(_ []byte, row *Row) bool {
		members = append(members, row.Bytes(setMemberCol))
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return members, nil
}

// SCard returns the number of members
func (t *SetTable) SCard(key string) (int64, error) {
	prefix := keyPrefix(key)
	txn, cur, err := t.getCursor(prefix, false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	var n int64
	err = cur.scan(prefix, func(_ []byte, _ *Row) bool {
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, txn.Commit()
}

// SRem removes member, removed is false when it was not in the set.
// The set disappears with its last member.
func (t *SetTable) SRem(key string, member []byte) (removed bool, err error) {
	txn, cur, err := t.getCursor(memberKey(key, member), true)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()
	if cur.Row() == nil {
		return false, nil
	}
	if err := t.deleteRow(cur); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteKey removes the whole set within txn
func (t *SetTable) DeleteKey(txn *Txn, key string) (bool, error) {
	cur, err := txn.Open(t.Table)
	if err != nil {
		return false, err
	}
	n, err := t.deletePrefix(cur, keyPrefix(key))
	return n > 0, err
}

// Load adds members to the set within txn, repeated members are stored once
func (t *SetTable) Load(txn *Txn, key string, members [][]byte) error {
	cur, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	for _, member := range members {
		if member == nil {
			member = []byte{}
		}
		pk := memberKey(key, member)
		if err := cur.seek(pk); err != nil {
			return err
		}
		if cur.Row() != nil {
			continue
		}
		if err := t.insertRow(cur, pk, NewRow([]byte(key), member)); err != nil {
			return err
		}
	}
	return nil
}

// ForEach visits every set in txn until fn returns false
func (t *SetTable) ForEach(txn *Txn, fn func(key string, members [][]byte) bool) error {
	cur, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	var (
		current []byte
		members [][]byte
		stopped bool
	)
	err = cur.scan(nil, func(_ []byte, row *Row) bool {
		key := row.Bytes(setKeyCol)
		if current != nil && !bytes.Equal(key, current) {
			if !fn(string(current), members) {
				stopped = true
				return false
			}
			members = nil
		}
		current = key
		members = append(members, row.Bytes(setMemberCol))
		return true
	})
	if err != nil {
		return err
	}
	if !stopped && current != nil {
		fn(string(current), members)
	}
	return nil
}
