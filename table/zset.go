package table

import (
	"errors"
	"math"

	"github.com/hdt3213/tabledis/interface/engine"
)

// ErrNaNScore is returned when a score is not a number
var ErrNaNScore = errors.New("table: score is not a number")

const (
	zsetKeyCol = iota
	zsetMemberCol
	zsetScoreCol
)

const (
	scoreKeyCol = iota
	scoreScoreCol
	scoreMemberCol
)

// ZSetHeadTable stores sorted sets in two tables written in the same transaction:
// the member table answers point lookups by (key, member), the score index orders
// entries of a key by (score, member) for range counts.
type ZSetHeadTable struct {
	*Table
	scores *Table
}

// NewZSetHeadTable creates the adapter over the member table name and the index table scoreName
func NewZSetHeadTable(db engine.Engine, name, scoreName string) *ZSetHeadTable {
	members := newTable(db, &engine.Schema{
		Name: name,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "member", Type: engine.Blob, NotNull: true},
			{Name: "score", Type: engine.Float64, NotNull: true},
		},
		PrimaryKey: []string{"key", "member"},
	})
	scores := newTable(db, &engine.Schema{
		Name: scoreName,
		Columns: []engine.Column{
			{Name: "key", Type: engine.Varchar, Width: KeyWidth, NotNull: true},
			{Name: "score", Type: engine.Float64, NotNull: true},
			{Name: "member", Type: engine.Blob, NotNull: true},
		},
		PrimaryKey: []string{"key", "score", "member"},
	})
	return &ZSetHeadTable{Table: members, scores: scores}
}

// Scores returns the score index table
func (t *ZSetHeadTable) Scores() *Table {
	return t.scores
}

func scoreKey(key string, score float64, member []byte) []byte {
	return append(appendFloat64(keyPrefix(key), score), member...)
}

// normalize folds -0 into 0 so equal scores share one index position
func normalize(score float64) (float64, error) {
	if math.IsNaN(score) {
		return 0, ErrNaNScore
	}
	if score == 0 {
		return 0, nil
	}
	return score, nil
}

// ZAdd sets the score of member, added is false when the member existed and only its score changed
func (t *ZSetHeadTable) ZAdd(key string, score float64, member []byte) (added bool, err error) {
	score, err = normalize(score)
	if err != nil {
		return false, err
	}
	if member == nil {
		member = []byte{}
	}
	pk := memberKey(key, member)
	txn, cur, err := t.getCursor(pk, true)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()
	index, err := txn.Open(t.scores)
	if err != nil {
		return false, err
	}

	row := NewRow([]byte(key), member, Float64Col(score))
	if old := cur.Row(); old != nil {
		oldScore := old.Float64(zsetScoreCol)
		if oldScore == score {
			return false, nil
		}
		if err := index.seek(scoreKey(key, oldScore, member)); err != nil {
			return false, err
		}
		if err := t.scores.deleteRow(index); err != nil {
			return false, err
		}
		err = t.updateRow(cur, row)
	} else {
		added = true
		err = t.insertRow(cur, pk, row)
	}
	if err != nil {
		return false, err
	}
	entry := NewRow([]byte(key), Float64Col(score), member)
	if err := t.scores.insertRow(index, scoreKey(key, score, member), entry); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return added, nil
}

// ZCard returns the number of members
func (t *ZSetHeadTable) ZCard(key string) (int64, error) {
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

// ZRem removes member, removed is false when it was absent
func (t *ZSetHeadTable) ZRem(key string, member []byte) (removed bool, err error) {
	txn, cur, err := t.getCursor(memberKey(key, member), true)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()
	old := cur.Row()
	if old == nil {
		return false, nil
	}
	index, err := txn.Open(t.scores)
	if err != nil {
		return false, err
	}
	if err := index.seek(scoreKey(key, old.Float64(zsetScoreCol), member)); err != nil {
		return false, err
	}
	if err := t.scores.deleteRow(index); err != nil {
		return false, err
	}
	if err := t.deleteRow(cur); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ZScore returns the score of member, found is false when it is absent
func (t *ZSetHeadTable) ZScore(key string, member []byte) (score float64, found bool, err error) {
	txn, cur, err := t.getCursor(memberKey(key, member), false)
	if err != nil {
		return 0, false, err
	}
	if row := cur.Row(); row != nil {
		score, found = row.Float64(zsetScoreCol), true
	}
	if err := txn.Commit(); err != nil {
		return 0, false, err
	}
	return score, found, nil
}

// ZCount counts members with min <= score <= max, walking only the matching part of the index
func (t *ZSetHeadTable) ZCount(key string, min, max float64) (int64, error) {
	if math.IsNaN(min) || math.IsNaN(max) {
		return 0, ErrNaNScore
	}
	if min > max {
		return 0, nil
	}
	min, _ = normalize(min)
	prefix := keyPrefix(key)
	txn, err := Begin(t.db, false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()
	index, err := txn.Open(t.scores)
	if err != nil {
		return 0, err
	}
	var n int64
	err = index.scanFrom(prefix, appendFloat64(prefix, min), func(k []byte, _ *Row) bool {
		if decodeFloat64(k[len(prefix):len(prefix)+8]) > max {
			return false
		}
		n++
		return true
	})
	if err != nil {
		return 0, err
	}
	return n, txn.Commit()
}

// DeleteKey removes the sorted set with its index entries within txn
func (t *ZSetHeadTable) DeleteKey(txn *Txn, key string) (bool, error) {
	members, err := txn.Open(t.Table)
	if err != nil {
		return false, err
	}
	n, err := t.deletePrefix(members, keyPrefix(key))
	if err != nil || n == 0 {
		return false, err
	}
	index, err := txn.Open(t.scores)
	if err != nil {
		return false, err
	}
	if _, err := t.scores.deletePrefix(index, keyPrefix(key)); err != nil {
		return false, err
	}
	return true, nil
}

// ZEntry is one member of a sorted set
type ZEntry struct {
	Member []byte
	Score  float64
}

// Load writes entries as the sorted set stored at key within txn. The key must hold no sorted
// set in txn, callers run DeleteKey first. A repeated member keeps its last score.
func (t *ZSetHeadTable) Load(txn *Txn, key string, entries []ZEntry) error {
	members, err := txn.Open(t.Table)
	if err != nil {
		return err
	}
	index, err := txn.Open(t.scores)
	if err != nil {
		return err
	}
	scores := make(map[string]float64, len(entries))
	order := make([][]byte, 0, len(entries))
	for _, e := range entries {
		score, err := normalize(e.Score)
		if err != nil {
			return err
		}
		if _, ok := scores[string(e.Member)]; !ok {
			member := e.Member
			if member == nil {
				member = []byte{}
			}
			order = append(order, member)
		}
		scores[string(e.Member)] = score
	}
	for _, member := range order {
		score := scores[string(member)]
		pk := memberKey(key, member)
		if err := t.insertRow(members, pk, NewRow([]byte(key), member, Float64Col(score))); err != nil {
			return err
		}
		entry := NewRow([]byte(key), Float64Col(score), member)
		if err := t.scores.insertRow(index, scoreKey(key, score, member), entry); err != nil {
			return err
		}
	}
	return nil
}

// ForEach visits every sorted set in score order within txn until fn returns false
func (t *ZSetHeadTable) ForEach(txn *Txn, fn func(key string, entries []ZEntry) bool) error {
	index, err := txn.Open(t.scores)
	if err != nil {
		return err
	}
	var (
		current []byte
		entries []ZEntry
		stopped bool
	)
	err = index.scan(nil, func(_ []byte, row *Row) bool {
		key := row.Bytes(scoreKeyCol)
		if current != nil && string(key) != string(current) {
			if !fn(string(current), entries) {
				stopped = true
				return false
			}
			entries = nil
		}
		current = key
		entries = append(entries, ZEntry{Member: row.Bytes(scoreMemberCol), Score: row.Float64(scoreScoreCol)})
		return true
	})
	if err != nil {
		return err
	}
	if !stopped && current != nil {
		fn(string(current), entries)
	}
	return nil
}
