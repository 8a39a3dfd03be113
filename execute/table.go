package execute

import (
	"context"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/sql"
)

// RowTrigger is a BEFORE or AFTER row-level trigger (§3 Table descriptor,
// §4.4 step 5, §4.5 step 6). BEFORE triggers may mutate new (UPDATE and
// INSERT; nil for DELETE) and veto the row by returning
// vetoed == true. AFTER triggers run once the row has actually been
// applied and may not veto.
type RowTrigger interface {
	// Fire runs the trigger for one row. old is nil for INSERT, new is nil
	// for DELETE. Returning vetoed == true on a BEFORE trigger skips the
	// row (§8: "r remains present... yet (DELETE,OLD,r) WAS delivered").
	Fire(ctx context.Context, old, new []sql.Value) (vetoed bool, err error)
}

// StatementTrigger is a BEFORE or AFTER statement-level trigger (§4.4
// steps 1 and 8). A BEFORE statement trigger may veto the entire
// statement, aborting it with count 0.
type StatementTrigger interface {
	Fire(ctx context.Context) (vetoed bool, err error)
}

// Triggers holds the four trigger slots a table may have wired for a given
// action (DELETE, INSERT, or UPDATE); any slot may be nil.
type Triggers struct {
	BeforeStatement StatementTrigger
	AfterStatement  StatementTrigger
	BeforeRow       RowTrigger
	AfterRow        RowTrigger
}

// Descriptor is the "Table descriptor" of §3: columns, primary key,
// identity column, triggers, and the firesRow predicate, layered on top of
// a rowstore.Table. The row store itself knows nothing about triggers or
// identity columns — those are this subsystem's concern, not storage's.
type Descriptor struct {
	Name    sql.TableName
	Table   rowstore.Table
	Columns []sql.Identifier
	Types   []sql.ColumnType

	// PrimaryKey lists the table's primary-key column ordinals, in key
	// order; nil if the table has none.
	PrimaryKey []int

	// IdentityColumn is the column ordinal of the table's identity column,
	// or -1 if it has none (§4.1 LastIdentity eligibility).
	IdentityColumn int

	Delete Triggers
	Insert Triggers
	Update Triggers

	// FiresRow reports whether the table has any row-level trigger wired
	// for the given action; the executor skips the row-trigger step
	// entirely when this is false rather than calling into a nil no-op
	// (§3 "firesRow predicate").
	FiresRow func(action delta.Action) bool
}

// HasIdentity reports whether the table has an identity column, the other
// half of LastIdentity eligibility alongside the session mode flag (§4.1).
func (d *Descriptor) HasIdentity() bool {
	return d.IdentityColumn >= 0
}

func defaultFiresRow(d *Descriptor) func(delta.Action) bool {
	return func(action delta.Action) bool {
		switch action {
		case delta.Delete:
			return d.Delete.BeforeRow != nil || d.Delete.AfterRow != nil
		case delta.Insert:
			return d.Insert.BeforeRow != nil || d.Insert.AfterRow != nil
		case delta.Update:
			return d.Update.BeforeRow != nil || d.Update.AfterRow != nil
		default:
			return false
		}
	}
}

// NewDescriptor builds a Descriptor with no triggers and no identity
// column, FiresRow wired to the default (any non-nil row trigger fires);
// callers set Triggers/IdentityColumn/PrimaryKey afterward.
func NewDescriptor(name sql.TableName, tbl rowstore.Table) *Descriptor {
	d := &Descriptor{
		Name:           name,
		Table:          tbl,
		Columns:        tbl.Columns(),
		Types:          tbl.ColumnTypes(),
		IdentityColumn: -1,
	}
	d.FiresRow = defaultFiresRow(d)
	return d
}
