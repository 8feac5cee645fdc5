package store

import (
	"fmt"
	"io"
	"strconv"
	"time"

	rdb "github.com/hdt3213/rdb/encoder"
	"github.com/hdt3213/rdb/model"
	"github.com/hdt3213/rdb/parser"
	"github.com/hdt3213/tabledis/lib/logger"
	"github.com/hdt3213/tabledis/table"
)

// countKeys returns the number of top level objects visible in txn.
// A key holding values of several types counts once per type.
func (s *Store) countKeys(txn *table.Txn) (uint64, error) {
	var n uint64
	if err := s.kv.ForEach(txn, func(string, []byte) bool { n++; return true }); err != nil {
		return 0, err
	}
	if err := s.sets.ForEach(txn, func(string, [][]byte) bool { n++; return true }); err != nil {
		return 0, err
	}
	if err := s.lists.ForEach(txn, func(string, [][]byte) bool { n++; return true }); err != nil {
		return 0, err
	}
	if err := s.zsets.ForEach(txn, func(string, []table.ZEntry) bool { n++; return true }); err != nil {
		return 0, err
	}
	return n, nil
}

// Export writes every key as an RDB snapshot taken in one read transaction
func (s *Store) Export(w io.Writer) error {
	txn, err := table.Begin(s.db, false)
	if err != nil {
		return err
	}
	defer txn.Rollback()
	keyCount, err := s.countKeys(txn)
	if err != nil {
		return err
	}

	encoder := rdb.NewEncoder(w).EnableCompress()
	if err := encoder.WriteHeader(); err != nil {
		return err
	}
	aux := [][2]string{
		{"redis-ver", "6.0.0"},
		{"redis-bits", "64"},
		{"ctime", strconv.FormatInt(time.Now().Unix(), 10)},
	}
	for _, kv := range aux {
		if err := encoder.WriteAux(kv[0], kv[1]); err != nil {
			return err
		}
	}
	if keyCount > 0 {
		if err := encoder.WriteDBHeader(0, keyCount, 0); err != nil {
			return err
		}
		if err := s.writeObjects(txn, encoder); err != nil {
			return err
		}
	}
	if err := encoder.WriteEnd(); err != nil {
		return err
	}
	return txn.Commit()
}

func (s *Store) writeObjects(txn *table.Txn, encoder *rdb.Encoder) error {
	var err error
	visit := func(write func() error) bool {
		err = write()
		return err == nil
	}
	scanErr := s.kv.ForEach(txn, func(key string, val []byte) bool {
		return visit(func() error { return encoder.WriteStringObject(key, val) })
	})
	if scanErr != nil || err != nil {
		return firstErr(scanErr, err)
	}
	scanErr = s.sets.ForEach(txn, func(key string, members [][]byte) bool {
		return visit(func() error { return encoder.WriteSetObject(key, members) })
	})
	if scanErr != nil || err != nil {
		return firstErr(scanErr, err)
	}
	scanErr = s.lists.ForEach(txn, func(key string, values [][]byte) bool {
		return visit(func() error { return encoder.WriteListObject(key, values) })
	})
	if scanErr != nil || err != nil {
		return firstErr(scanErr, err)
	}
	scanErr = s.zsets.ForEach(txn, func(key string, entries []table.ZEntry) bool {
		zEntries := make([]*model.ZSetEntry, len(entries))
		for i, e := range entries {
			zEntries[i] = &model.ZSetEntry{Member: string(e.Member), Score: e.Score}
		}
		return visit(func() error { return encoder.WriteZSetObject(key, zEntries) })
	})
	return firstErr(scanErr, err)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Import loads an RDB file, each object replaces whatever the key held before.
// Only strings, lists, sets and sorted sets are stored, other objects are skipped and the
// key keeps its value. Every object is written in its own transaction.
func (s *Store) Import(r io.Reader) (int, error) {
	decoder := parser.NewDecoder(r)
	var (
		imported int
		err      error
	)
	parseErr := decoder.Parse(func(o parser.RedisObject) bool {
		switch o.(type) {
		case *parser.StringObject, *parser.ListObject, *parser.SetObject, *parser.ZSetObject:
		default:
			logger.Warnf("skip %s %s", o.GetType(), o.GetKey())
			return true
		}
		if err = s.importObject(o); err != nil {
			err = fmt.Errorf("import %s: %w", o.GetKey(), err)
			return false
		}
		imported++
		return true
	})
	if parseErr != nil {
		return imported, parseErr
	}
	return imported, err
}

// importObject replaces key with o in one transaction
func (s *Store) importObject(o parser.RedisObject) error {
	key := o.GetKey()
	txn, err := table.Begin(s.db, true)
	if err != nil {
		return err
	}
	defer txn.Rollback()
	for _, d := range s.deleters() {
		if _, err := d.DeleteKey(txn, key); err != nil {
			return err
		}
	}
	switch obj := o.(type) {
	case *parser.StringObject:
		err = s.kv.Put(txn, key, obj.Value)
	case *parser.ListObject:
		err = s.lists.Load(txn, key, obj.Values)
	case *parser.SetObject:
		err = s.sets.Load(txn, key, obj.Members)
	case *parser.ZSetObject:
		entries := make([]table.ZEntry, len(obj.Entries))
		for i, e := range obj.Entries {
			entries[i] = table.ZEntry{Member: []byte(e.Member), Score: e.Score}
		}
		err = s.zsets.Load(txn, key, entries)
	}
	if err != nil {
		return err
	}
	return txn.Commit()
}
