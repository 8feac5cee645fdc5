// Package store is the facade the command layer talks to: one method per operation,
// each delegating to exactly one table adapter.
package store

import (
	"errors"
	"fmt"
	"os"

	"github.com/hdt3213/tabledis/config"
	"github.com/hdt3213/tabledis/engine/boltdb"
	"github.com/hdt3213/tabledis/engine/pebbledb"
	"github.com/hdt3213/tabledis/interface/engine"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/table"
)

// Table names, also the order of installation
const (
	KVTableName       = "kv"
	SetTableName      = "set"
	ListHeadTableName = "list_head"
	ListNodeTableName = "list_node"
	ZSetTableName     = "zset"
	ZSetScoreName     = "zset_score"
)

// Store holds one adapter per data type over a shared engine
type Store struct {
	db  engine.Engine
	cfg *config.ServerProperties

	kv    *table.KVTable
	sets  *table.SetTable
	lists *table.ListHeadTable
	zsets *table.ZSetHeadTable
}

// Open opens the engine selected by cfg.Engine under cfg.Dir
func Open(cfg *config.ServerProperties) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	var (
		db  engine.Engine
		err error
	)
	switch cfg.Engine {
	case config.EnginePebble:
		db, err = pebbledb.Open(cfg.DataPath())
	default:
		db, err = boltdb.Open(cfg.DataPath(), cfg.LockTimeout())
	}
	if err != nil {
		return nil, err
	}
	logger.Infof("opened %s engine at %s", cfg.Engine, cfg.DataPath())
	return New(db, cfg), nil
}

// New creates a Store over an already opened engine
func New(db engine.Engine, cfg *config.ServerProperties) *Store {
	return &Store{
		db:    db,
		cfg:   cfg,
		kv:    table.NewKVTable(db, KVTableName),
		sets:  table.NewSetTable(db, SetTableName),
		lists: table.NewListHeadTable(db, ListHeadTableName, ListNodeTableName),
		zsets: table.NewZSetHeadTable(db, ZSetTableName, ZSetScoreName),
	}
}

// Config returns the properties the store was opened with
func (s *Store) Config() *config.ServerProperties {
	return s.cfg
}

func (s *Store) tables() []table.Adapter {
	return []table.Adapter{s.kv, s.sets, s.lists, s.lists.Nodes(), s.zsets, s.zsets.Scores()}
}

func (s *Store) deleters() []table.KeyDeleter {
	return []table.KeyDeleter{s.kv, s.sets, s.lists, s.zsets}
}

// Install creates every table, stopping at the first failure. Tables that already exist
// with the same definition are kept.
func (s *Store) Install() error {
	for _, t := range s.tables() {
		if err := t.CreateSchema(); err != nil {
			return err
		}
	}
	return nil
}

// FlushAll drops every table with all rows and installs them again
func (s *Store) FlushAll() error {
	for _, t := range s.tables() {
		if err := t.Drop(); err != nil && !errors.Is(err, engine.ErrTableNotFound) {
			return err
		}
	}
	return s.Install()
}

// Del removes key from every table in one transaction, reporting whether anything existed
func (s *Store) Del(key string) (bool, error) {
	txn, err := table.Begin(s.db, true)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()
	deleted := false
	for _, d := range s.deleters() {
		ok, err := d.DeleteKey(txn, key)
		if err != nil {
			return false, err
		}
		deleted = deleted || ok
	}
	if !deleted {
		return false, nil
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the engine
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the string at key, ok is false when absent
func (s *Store) Get(key string) ([]byte, bool, error) {
	return s.kv.Get(key)
}

// Set stores val at key
func (s *Store) Set(key string, val []byte) error {
	return s.kv.Set(key, val)
}

// Incr adds by to the integer at key and returns the result
func (s *Store) Incr(key string, by int64) (int64, error) {
	return s.kv.Incr(key, by)
}

// Decr subtracts by from the integer at key and returns the result
func (s *Store) Decr(key string, by int64) (int64, error) {
	return s.kv.Decr(key, by)
}

// SAdd adds member to the set at key, reporting whether it was new
func (s *Store) SAdd(key string, member []byte) (bool, error) {
	return s.sets.SAdd(key, member)
}

// SIsMember tells whether member belongs to the set at key
func (s *Store) SIsMember(key string, member []byte) (bool, error) {
	return s.sets.SIsMember(key, member)
}

// SMembers returns the members of the set at key in bytewise order
func (s *Store) SMembers(key string) ([][]byte, error) {
	return s.sets.SMembers(key)
}

// SCard returns the size of the set at key
func (s *Store) SCard(key string) (int64, error) {
	return s.sets.SCard(key)
}

// SRem removes member from the set at key, reporting whether it was present
func (s *Store) SRem(key string, member []byte) (bool, error) {
	return s.sets.SRem(key, member)
}

// LPush inserts val at the front of the list and returns the new length
func (s *Store) LPush(key string, val []byte) (int64, error) {
	return s.lists.LPush(key, val)
}

// RPush appends val to the list and returns the new length
func (s *Store) RPush(key string, val []byte) (int64, error) {
	return s.lists.RPush(key, val)
}

// LPop removes and returns the first element
func (s *Store) LPop(key string) ([]byte, bool, error) {
	return s.lists.LPop(key)
}

// RPop removes and returns the last element
func (s *Store) RPop(key string) ([]byte, bool, error) {
	return s.lists.RPop(key)
}

// LLen returns the length of the list, 0 when absent
func (s *Store) LLen(key string) (int64, error) {
	return s.lists.LLen(key)
}

// LRange returns elements from start to stop inclusive, negative indexes count from the tail
func (s *Store) LRange(key string, start, stop int64) ([][]byte, error) {
	return s.lists.LRange(key, start, stop)
}

// ZAdd sets the score of member, reporting whether the member was new
func (s *Store) ZAdd(key string, score float64, member []byte) (bool, error) {
	return s.zsets.ZAdd(key, score, member)
}

// ZCard returns the number of members of the sorted set
func (s *Store) ZCard(key string) (int64, error) {
	return s.zsets.ZCard(key)
}

// ZRem removes member from the sorted set, reporting whether it was present
func (s *Store) ZRem(key string, member []byte) (bool, error) {
	return s.zsets.ZRem(key, member)
}

// ZScore returns the score of member, found is false when absent
func (s *Store) ZScore(key string, member []byte) (float64, bool, error) {
	return s.zsets.ZScore(key, member)
}

// ZCount returns the number of members scored within [min, max]
func (s *Store) ZCount(key string, min, max float64) (int64, error) {
	return s.zsets.ZCount(key, min, max)
}
