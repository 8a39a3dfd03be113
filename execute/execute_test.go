package execute_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/rowstore/btreestore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// colExpr reads column idx of the row cursor (the right-hand side of a
// SET clause like "b = a").
type colExpr struct{ idx int }

func (c colExpr) String() string { return fmt.Sprintf("col[%d]", c.idx) }

func (c colExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	return ectx.EvalRef(c.idx), nil
}

// constExpr always evaluates to a fixed value.
type constExpr struct{ v sql.Value }

func (c constExpr) String() string { return fmt.Sprintf("%v", c.v) }

func (c constExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	return c.v, nil
}

// eqExpr is a WHERE predicate: column col equals v.
type eqExpr struct {
	col int
	v   sql.Value
}

func (e eqExpr) String() string { return fmt.Sprintf("col[%d] = %v", e.col, e.v) }

func (e eqExpr) Eval(ctx context.Context, ectx sql.EvalContext) (sql.Value, error) {
	cv := ectx.EvalRef(e.col)
	if cv == nil {
		return sql.BoolValue(false), nil
	}
	cmp, err := cv.Compare(e.v)
	if err != nil {
		return nil, err
	}
	return sql.BoolValue(cmp == 0), nil
}

// failExpr always fails evaluation, to test error propagation.
type failExpr struct{}

func (failExpr) String() string { return "fail" }

func (failExpr) Eval(context.Context, sql.EvalContext) (sql.Value, error) {
	return nil, sql.NewError(sql.Internal, "failExpr: forced failure")
}

func newTestSession() *session.Session {
	return session.New(1, "test", session.AllowAll{})
}

// denyAll is a PermissionChecker that always denies, for AccessDenied tests.
type denyAll struct{}

func (denyAll) CheckRight(string, sql.TableName, session.Right) bool { return false }

// newTestTable creates an in-memory btreestore table pre-populated with
// rows, and a Descriptor wrapping it with no identity column and no
// triggers; tests override those fields as needed.
func newTestTable(t *testing.T, name string, cols []sql.Identifier, types []sql.ColumnType,
	rows [][]sql.Value) (*execute.Descriptor, rowstore.Table) {

	t.Helper()

	store := btreestore.New()
	tn := sql.TableName{Table: sql.ID(name)}
	store.CreateTable(tn, cols, types)

	tbl, err := store.OpenTable(context.Background(), store.Begin(1), tn)
	if err != nil {
		t.Fatalf("OpenTable() failed with %s", err)
	}

	for _, r := range rows {
		if _, err := tbl.AddRow(context.Background(), r); err != nil {
			t.Fatalf("AddRow() failed with %s", err)
		}
	}

	return execute.NewDescriptor(tn, tbl), tbl
}

// failingAddRowTable wraps a rowstore.Table so AddRow always fails with a
// fixed error, for exercising the ON DUPLICATE KEY fallback path without
// needing a real unique index (out of scope per §1).
type failingAddRowTable struct {
	rowstore.Table
	err error
}

func (f failingAddRowTable) AddRow(ctx context.Context, values []sql.Value) (rowstore.RowID,
	error) {
	return nil, f.err
}

func withFailingAddRow(d *execute.Descriptor, err error) *execute.Descriptor {
	nd := execute.NewDescriptor(d.Name, failingAddRowTable{Table: d.Table, err: err})
	nd.IdentityColumn = d.IdentityColumn
	nd.PrimaryKey = d.PrimaryKey
	return nd
}

// scanAll drains tbl's current rows in scan order, for assertions.
func scanAll(t *testing.T, tbl rowstore.Table) [][]sql.Value {
	t.Helper()

	cur, err := tbl.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed with %s", err)
	}
	defer cur.Close()

	var rows [][]sql.Value
	for {
		_, values, err := cur.Next(context.Background())
		if err != nil {
			break
		}
		rows = append(rows, values)
	}
	return rows
}
