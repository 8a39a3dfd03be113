package execute_test

import (
	"context"
	"testing"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/sql"
)

func TestUpdateSetClause(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
		{sql.Int64Value(2), sql.Int64Value(20)},
	})

	ses := newTestSession()
	n, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:  d,
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(99)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 2 {
		t.Errorf("Execute() got %d want 2", n)
	}
	for _, row := range scanAll(t, tbl) {
		if row[1] != sql.Int64Value(99) {
			t.Errorf("row %v: column b not updated", row)
		}
	}
}

func TestUpdateNoOpSkipped(t *testing.T) {
	d, _ := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
	})

	sink := delta.NewSink(idCol())
	ses := newTestSession()
	n, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:  d,
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(10)}}},
		Collector:   delta.DataChangeDeltaTable{Option: delta.New, Sink: sink},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 0 {
		t.Errorf("Execute() got %d want 0 (no-op SET)", n)
	}
	if sink.Len() != 0 {
		t.Errorf("sink.Len() got %d want 0, no-op rows must not be reported", sink.Len())
	}
}

func TestUpdatePredicate(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
		{sql.Int64Value(2), sql.Int64Value(20)},
	})

	ses := newTestSession()
	n, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:  d,
		Predicate:   eqExpr{col: 0, v: sql.Int64Value(2)},
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(99)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 1 {
		t.Errorf("Execute() got %d want 1", n)
	}

	rows := scanAll(t, tbl)
	for _, row := range rows {
		if row[0] == sql.Int64Value(1) && row[1] != sql.Int64Value(10) {
			t.Errorf("row a=1 should be unchanged, got %v", row)
		}
		if row[0] == sql.Int64Value(2) && row[1] != sql.Int64Value(99) {
			t.Errorf("row a=2 should be updated, got %v", row)
		}
	}
}

func TestUpdateSelectivePredicateWithFetchLimit(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
		{sql.Int64Value(2), sql.Int64Value(20)},
		{sql.Int64Value(3), sql.Int64Value(30)},
		{sql.Int64Value(4), sql.Int64Value(40)},
		{sql.Int64Value(5), sql.Int64Value(50)},
	})

	ses := newTestSession()
	n, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:  d,
		Predicate:   eqExpr{col: 0, v: sql.Int64Value(5)},
		Fetch:       execute.FetchClause{Fetch: sql.Int64Value(1), HasFetch: true},
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(99)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 1 {
		t.Errorf("Execute() got %d want 1", n)
	}

	for _, row := range scanAll(t, tbl) {
		if row[0] == sql.Int64Value(5) && row[1] != sql.Int64Value(99) {
			t.Errorf("row a=5 should be updated, got %v", row)
		}
	}
}

func TestUpdateOnDuplicateKeySkipsViolation(t *testing.T) {
	types := []sql.ColumnType{sql.Int64ColType, {Type: sql.IntegerType, Size: 8, NotNull: true}}
	d, _ := newTestTable(t, "t", idCol(), types, [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
	})

	ses := newTestSession()
	n, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:     d,
		Assignments:    []execute.Assignment{{Column: 1, Expr: constExpr{v: nil}}},
		Collector:      delta.Noop{},
		OnDuplicateKey: true,
	})
	if err != nil {
		t.Fatalf("Execute() under OnDuplicateKey should convert violation to skip, got %s", err)
	}
	if n != 0 {
		t.Errorf("Execute() got %d want 0 (row skipped)", n)
	}
}

func TestUpdateWithoutOnDuplicateKeyPropagatesViolation(t *testing.T) {
	types := []sql.ColumnType{sql.Int64ColType, {Type: sql.IntegerType, Size: 8, NotNull: true}}
	d, _ := newTestTable(t, "t", idCol(), types, [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
	})

	ses := newTestSession()
	_, err := execute.NewUpdateExecutor().Execute(context.Background(), ses, execute.UpdateRequest{
		Descriptor:  d,
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: nil}}},
		Collector:   delta.Noop{},
	})
	if err == nil {
		t.Fatalf("Execute() did not fail on NOT NULL violation")
	}
	if kind, ok := sql.KindOf(err); !ok || kind != sql.IntegrityViolation {
		t.Errorf("Execute() got kind %v want IntegrityViolation", kind)
	}
}
