// Package boltstore is a durable rowstore.RowStore backed by
// go.etcd.io/bbolt, grounded on storage/keyval/bbolt.go's bucket-per-store,
// cursor-based iteration pattern (including its NoFreelistSync/NoSync
// tuning, which the teacher notes is "dangerous, but about 100x faster" —
// acceptable here since this backend exists to exercise bbolt as a
// concrete RowStore, not to guarantee durability guarantees §1 places out
// of scope).
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/rowstore/lock"
	"github.com/leftmike/quill/sql"
)

func init() {
	gob.Register(sql.BoolValue(false))
	gob.Register(sql.Int64Value(0))
	gob.Register(sql.Float64Value(0))
	gob.Register(sql.StringValue(""))
	gob.Register(sql.BytesValue(nil))
}

type rowID uint64

func (id rowID) String() string { return fmt.Sprintf("%d", uint64(id)) }

func idKey(id rowID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

// Store opens one bbolt database file holding one bucket per table.
type Store struct {
	db *bbolt.DB

	mutex  sync.Mutex
	tables map[string]*table
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %s", path, err)
	}
	db.NoFreelistSync = true
	db.NoSync = true

	logger.WithField("path", path).Info("opened")
	return &Store{db: db, tables: map[string]*table{}}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txn struct {
	sesid uint64
}

func (s *Store) Begin(sesid uint64) rowstore.Transaction {
	return &txn{sesid: sesid}
}

func (t *txn) Commit(ctx context.Context) error { return nil }
func (t *txn) Rollback() error                  { return nil }

// CreateTable ensures the table's bucket exists; bbolt handles the on-disk
// format internally, so no schema is persisted here (DDL/storage format
// are out of scope, §1).
func (s *Store) CreateTable(tn sql.TableName, cols []sql.Identifier,
	colTypes []sql.ColumnType) error {

	bucket := []byte(tn.String())
	err := s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("boltstore: create table %s: %s", tn, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tables[tn.String()] = &table{
		store:    s,
		name:     tn,
		bucket:   bucket,
		cols:     cols,
		colTypes: colTypes,
	}
	return nil
}

func (s *Store) OpenTable(ctx context.Context, tx rowstore.Transaction,
	tn sql.TableName) (rowstore.Table, error) {

	s.mutex.Lock()
	defer s.mutex.Unlock()

	tbl, ok := s.tables[tn.String()]
	if !ok {
		return nil, sql.NewError(sql.Internal, "boltstore: table %s not registered", tn)
	}
	t := tx.(*txn)
	tbl.holder = fmt.Sprintf("session-%d", t.sesid)
	return tbl, nil
}

type table struct {
	store    *Store
	name     sql.TableName
	bucket   []byte
	cols     []sql.Identifier
	colTypes []sql.ColumnType

	rowLock    lock.RowLocks
	tableLocks lock.TableLocks
	holder     string
}

func (t *table) Columns() []sql.Identifier     { return t.cols }
func (t *table) ColumnTypes() []sql.ColumnType { return t.colTypes }

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

func encodeRow(values []sql.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(values); err != nil {
		return nil, fmt.Errorf("boltstore: encode row: %s", err)
	}
	return buf.Bytes(), nil
}

func decodeRow(buf []byte) ([]sql.Value, error) {
	var values []sql.Value
	if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&values); err != nil {
		return nil, fmt.Errorf("boltstore: decode row: %s", err)
	}
	return values, nil
}

func (t *table) ReadRow(ctx context.Context, id rowstore.RowID) ([]sql.Value, error) {
	rid := id.(rowID)
	var values []sql.Value
	err := t.store.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(t.bucket)
		v := bkt.Get(idKey(rid))
		if v == nil {
			return rowstore.ErrRowGone
		}
		row, err := decodeRow(v)
		if err != nil {
			return err
		}
		values = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

func (t *table) AddRow(ctx context.Context, values []sql.Value) (rowstore.RowID, error) {
	var id rowID
	err := t.store.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(t.bucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		id = rowID(seq)
		buf, err := encodeRow(values)
		if err != nil {
			return err
		}
		return bkt.Put(idKey(id), buf)
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

func (t *table) RemoveRow(ctx context.Context, id rowstore.RowID) error {
	rid := id.(rowID)
	return t.store.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(t.bucket)
		key := idKey(rid)
		if bkt.Get(key) == nil {
			return rowstore.ErrRowGone
		}
		return bkt.Delete(key)
	})
}

func (t *table) UpdateRow(ctx context.Context, id rowstore.RowID,
	values []sql.Value) (rowstore.RowID, error) {

	rid := id.(rowID)
	err := t.store.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(t.bucket)
		key := idKey(rid)
		if bkt.Get(key) == nil {
			return rowstore.ErrRowGone
		}
		buf, err := encodeRow(values)
		if err != nil {
			return err
		}
		return bkt.Put(key, buf)
	})
	if err != nil {
		return nil, err
	}
	return rid, nil
}

func (t *table) Scan(ctx context.Context) (rowstore.Cursor, error) {
	var rows []struct {
		id     rowID
		values []sql.Value
	}
	err := t.store.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(t.bucket)
		cr := bkt.Cursor()
		for k, v := cr.First(); k != nil; k, v = cr.Next() {
			values, err := decodeRow(v)
			if err != nil {
				return err
			}
			rows = append(rows, struct {
				id     rowID
				values []sql.Value
			}{rowID(binary.BigEndian.Uint64(k)), values})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cursor{rows: rows}, nil
}

type cursor struct {
	idx  int
	rows []struct {
		id     rowID
		values []sql.Value
	}
}

func (c *cursor) Next(ctx context.Context) (rowstore.RowID, []sql.Value, error) {
	if c.idx >= len(c.rows) {
		return nil, nil, io.EOF
	}
	r := c.rows[c.idx]
	c.idx++
	return r.id, r.values, nil
}

func (c *cursor) Close() error {
	c.rows = nil
	return nil
}

var logger = log.WithField("component", "boltstore")
