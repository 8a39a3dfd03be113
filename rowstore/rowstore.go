// Package rowstore defines the RowStore contract the DML execution core
// consumes (§6) and the Row/identity concepts of the data model (§3). It
// also carries two concrete implementations (btreestore, boltstore) so the
// interface is exercised by real storage libraries rather than left
// abstract — see SPEC_FULL.md §11. The package itself never chooses a
// backend; callers do.
package rowstore

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// RowID is the opaque, stable pointer a backend issues for a row's
// physical existence (§3 "Identity"). Backends are free to choose any
// representation; the executor only compares RowIDs for equality and
// passes them back to the same backend.
type RowID interface {
	String() string
}

// Row is an ordered sequence of typed values of length equal to the
// table's column count (§3), plus the RowID the backend used to produce
// it. A Row is immutable once returned by the backend: the executor
// copies it into a mutable newRow buffer before computing SET-clause
// results (§4.5 step 1).
type Row struct {
	ID     RowID
	Values []sql.Value
}

func (r Row) Clone() Row {
	vals := make([]sql.Value, len(r.Values))
	copy(vals, r.Values)
	return Row{ID: r.ID, Values: vals}
}

// LockMode distinguishes a table lock taken for planning/scanning from one
// taken to mutate (§4.4 steps 1-2).
type LockMode int

const (
	ReadLock LockMode = iota
	WriteLock
)

// ErrRowGone is returned by ReadRow, RemoveRow and UpdateRow when the row has been deleted
// by a concurrent transaction since the scan produced its RowID (§4.3
// step 2). It is not a statement-fatal error: lock-and-recheck treats it
// as "skip this candidate".
var ErrRowGone = &rowGoneError{}

type rowGoneError struct{}

func (*rowGoneError) Error() string { return "rowstore: row no longer exists" }

// Cursor drives a single table scan. It has no notion of fetch limits or
// cancellation — that belongs to the executor's scan driver (§4.2) — a
// Cursor just walks the backend's natural row order.
type Cursor interface {
	// Next returns the next row's RowID and values, or (nil, nil, io.EOF)
	// when the scan is exhausted.
	Next(ctx context.Context) (RowID, []sql.Value, error)
	Close() error
}

// Table is the per-table surface of a RowStore (§6 RowStore: addRow,
// removeRow, updateRow, lockRow, readRow, plus table-level locking).
type Table interface {
	Columns() []sql.Identifier
	ColumnTypes() []sql.ColumnType

	// Scan opens a Cursor over the table's current rows. Backends that
	// maintain a natural ordering (e.g. a primary-key B-tree) should honor
	// it, since the end-to-end scenarios in spec.md §8 depend on scan
	// order being deterministic for a given backend.
	Scan(ctx context.Context) (Cursor, error)

	// LockRow acquires the row's write lock, blocking until acquired or
	// ctx is done (§4.3 step 1). If ctx is done first, it returns a
	// *sql.Error of kind LockTimeout.
	LockRow(ctx context.Context, id RowID) error
	UnlockRow(id RowID)

	// ReadRow re-reads the current values at id (§4.3 step 2); it returns
	// ErrRowGone if the row has been deleted by a concurrent transaction.
	ReadRow(ctx context.Context, id RowID) ([]sql.Value, error)

	AddRow(ctx context.Context, values []sql.Value) (RowID, error)
	RemoveRow(ctx context.Context, id RowID) error
	UpdateRow(ctx context.Context, id RowID, values []sql.Value) (RowID, error)

	// LockTable escalates (or acquires) the table-level lock (§4.4 steps
	// 1-2: READ to plan, WRITE to mutate).
	LockTable(ctx context.Context, mode LockMode) error
	UnlockTable()
}

// RowStore is the top-level contract: open a table by name within a
// transaction (§6).
type RowStore interface {
	Begin(sesid uint64) Transaction
	OpenTable(ctx context.Context, tx Transaction, tn sql.TableName) (Table, error)
	Close() error
}

type Transaction interface {
	Commit(ctx context.Context) error
	Rollback() error
}
