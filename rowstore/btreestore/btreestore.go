// Package btreestore is an in-memory rowstore.RowStore backed by
// github.com/google/btree, grounded on storage/kvrows/btree.go's
// btreeKV/btreeItem pattern: rows are stored as ordered btree.Item values
// keyed by an auto-incrementing RowID, giving deterministic insertion-order
// scans — which the end-to-end scenarios in spec.md §8 rely on.
package btreestore

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/btree"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/rowstore/lock"
	"github.com/leftmike/quill/sql"
)

type rowID int64

func (id rowID) String() string { return fmt.Sprintf("%d", int64(id)) }

type item struct {
	id     rowID
	values []sql.Value
}

func (it item) Less(other btree.Item) bool {
	return it.id < other.(item).id
}

// Store is a RowStore that keeps every table as an independent in-memory
// B-tree; there is no persistence and no cross-table transaction isolation
// beyond per-table row/table locks (adequate for exercising the executor,
// not a substitute for the MVCC row store §1 places out of scope).
type Store struct {
	mutex  sync.Mutex
	tables map[string]*table
}

func New() *Store {
	return &Store{tables: map[string]*table{}}
}

type txn struct {
	sesid uint64
	st    *Store
}

func (s *Store) Begin(sesid uint64) rowstore.Transaction {
	return &txn{sesid: sesid, st: s}
}

func (t *txn) Commit(ctx context.Context) error { return nil }
func (t *txn) Rollback() error                  { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) OpenTable(ctx context.Context, tx rowstore.Transaction,
	tn sql.TableName) (rowstore.Table, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	key := tn.String()
	tbl, ok := s.tables[key]
	if !ok {
		return nil, sql.NewError(sql.Internal, "btreestore: table %s not registered", tn)
	}
	t := tx.(*txn)
	tbl.holder = fmt.Sprintf("session-%d", t.sesid)
	logger.WithField("table", key).WithField("session", t.sesid).Debug("table opened")
	return tbl, nil
}

// CreateTable registers a table with the given columns; btreestore has no
// DDL of its own (DDL is out of scope, §1) so tests and the CLI populate
// the store directly.
func (s *Store) CreateTable(tn sql.TableName, cols []sql.Identifier,
	colTypes []sql.ColumnType) {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tables[tn.String()] = &table{
		name:     tn,
		cols:     cols,
		colTypes: colTypes,
		tree:     btree.New(16),
	}
	logger.WithField("table", tn.String()).Info("table registered")
}

type table struct {
	name     sql.TableName
	cols     []sql.Identifier
	colTypes []sql.ColumnType

	mutex   sync.Mutex
	tree    *btree.BTree
	nextID  int64
	rowLock lock.RowLocks

	tableLocks lock.TableLocks
	holder     string
}

func (t *table) Columns() []sql.Identifier         { return t.cols }
func (t *table) ColumnTypes() []sql.ColumnType     { return t.colTypes }

func (t *table) LockTable(ctx context.Context, mode rowstore.LockMode) error {
	lm := lock.Read
	if mode == rowstore.WriteLock {
		lm = lock.Write
	}
	if err := t.tableLocks.Lock(ctx, t.holder, t.name.String(), lm); err != nil {
		return sql.NewError(sql.LockTimeout, "table %s: %s", t.name, err)
	}
	return nil
}

func (t *table) UnlockTable() {
	t.tableLocks.Unlock(t.holder, t.name.String())
}

func (t *table) LockRow(ctx context.Context, id rowstore.RowID) error {
	if err := t.rowLock.WLock(ctx, id.String()); err != nil {
		return sql.NewError(sql.LockTimeout, "row %s: %s", id, err)
	}
	return nil
}

func (t *table) UnlockRow(id rowstore.RowID) {
	t.rowLock.Unlock(id.String())
}

func (t *table) ReadRow(ctx context.Context, id rowstore.RowID) ([]sql.Value, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	rid := id.(rowID)
	found := t.tree.Get(item{id: rid})
	if found == nil {
		return nil, rowstore.ErrRowGone
	}
	it := found.(item)
	vals := make([]sql.Value, len(it.values))
	copy(vals, it.values)
	return vals, nil
}

func (t *table) AddRow(ctx context.Context, values []sql.Value) (rowstore.RowID, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.nextID++
	id := rowID(t.nextID)
	vals := make([]sql.Value, len(values))
	copy(vals, values)
	t.tree.ReplaceOrInsert(item{id: id, values: vals})
	return id, nil
}

func (t *table) RemoveRow(ctx context.Context, id rowstore.RowID) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	rid := id.(rowID)
	removed := t.tree.Delete(item{id: rid})
	if removed == nil {
		return rowstore.ErrRowGone
	}
	return nil
}

func (t *table) UpdateRow(ctx context.Context, id rowstore.RowID,
	values []sql.Value) (rowstore.RowID, error) {

	t.mutex.Lock()
	defer t.mutex.Unlock()

	rid := id.(rowID)
	if t.tree.Get(item{id: rid}) == nil {
		return nil, rowstore.ErrRowGone
	}
	vals := make([]sql.Value, len(values))
	copy(vals, values)
	t.tree.ReplaceOrInsert(item{id: rid, values: vals})
	return rid, nil
}

func (t *table) Scan(ctx context.Context) (rowstore.Cursor, error) {
	t.mutex.Lock()
	items := make([]item, 0, t.tree.Len())
	t.tree.Ascend(func(bi btree.Item) bool {
		it := bi.(item)
		vals := make([]sql.Value, len(it.values))
		copy(vals, it.values)
		items = append(items, item{id: it.id, values: vals})
		return true
	})
	t.mutex.Unlock()

	return &cursor{items: items}, nil
}

type cursor struct {
	idx   int
	items []item
}

func (c *cursor) Next(ctx context.Context) (rowstore.RowID, []sql.Value, error) {
	if c.idx >= len(c.items) {
		return nil, nil, io.EOF
	}
	it := c.items[c.idx]
	c.idx++
	return it.id, it.values, nil
}

func (c *cursor) Close() error {
	c.items = nil
	return nil
}

var logger = log.WithField("component", "btreestore")
