package execute_test

import (
	"context"
	"testing"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/sql"
)

// matchByCol builds a MatchLookup that locks and returns the first row of
// tbl whose column col equals the source row's column col, or nil if
// none does (the lookup itself is a linear scan; real index selection is
// out of scope per §1).
func matchByCol(tbl rowstore.Table, col int) execute.MatchLookup {
	return func(ctx context.Context, src []sql.Value) (*rowstore.Row, error) {
		cur, err := tbl.Scan(ctx)
		if err != nil {
			return nil, err
		}
		defer cur.Close()

		for {
			id, values, err := cur.Next(ctx)
			if err != nil {
				return nil, nil
			}
			cmp, err := values[col].Compare(src[col])
			if err != nil {
				return nil, err
			}
			if cmp == 0 {
				if err := tbl.LockRow(ctx, id); err != nil {
					return nil, err
				}
				return &rowstore.Row{ID: id, Values: values}, nil
			}
		}
	}
}

func TestMergeUpdatesMatchedRows(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
		{sql.Int64Value(2), sql.Int64Value(20)},
	})

	ses := newTestSession()
	n, err := execute.NewMergeExecutor().Execute(context.Background(), ses, execute.MergeRequest{
		Descriptor: d,
		Source: &execute.ValuesSource{Rows: [][]sql.Value{
			{sql.Int64Value(1), sql.Int64Value(999)},
		}},
		Match:       matchByCol(tbl, 0),
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(999)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 1 {
		t.Errorf("Execute() got %d want 1", n)
	}
	for _, row := range scanAll(t, tbl) {
		if row[0] == sql.Int64Value(1) && row[1] != sql.Int64Value(999) {
			t.Errorf("matched row not updated: %v", row)
		}
	}
}

func TestMergeInsertsUnmatchedRows(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
	})

	ses := newTestSession()
	n, err := execute.NewMergeExecutor().Execute(context.Background(), ses, execute.MergeRequest{
		Descriptor: d,
		Source: &execute.ValuesSource{Rows: [][]sql.Value{
			{sql.Int64Value(5), sql.Int64Value(50)},
		}},
		Match:       matchByCol(tbl, 0),
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(999)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 1 {
		t.Errorf("Execute() got %d want 1", n)
	}
	if rows := scanAll(t, tbl); len(rows) != 2 {
		t.Errorf("Execute() left %d rows want 2", len(rows))
	}
}

func TestMergeMixedMatchedAndUnmatched(t *testing.T) {
	d, tbl := newTestTable(t, "t", idCol(), idTypes(), [][]sql.Value{
		{sql.Int64Value(1), sql.Int64Value(10)},
	})

	ses := newTestSession()
	n, err := execute.NewMergeExecutor().Execute(context.Background(), ses, execute.MergeRequest{
		Descriptor: d,
		Source: &execute.ValuesSource{Rows: [][]sql.Value{
			{sql.Int64Value(1), sql.Int64Value(111)},
			{sql.Int64Value(2), sql.Int64Value(222)},
		}},
		Match:       matchByCol(tbl, 0),
		Assignments: []execute.Assignment{{Column: 1, Expr: constExpr{v: sql.Int64Value(111)}}},
		Collector:   delta.Noop{},
	})
	if err != nil {
		t.Fatalf("Execute() failed with %s", err)
	}
	if n != 2 {
		t.Errorf("Execute() got %d want 2", n)
	}
	if rows := scanAll(t, tbl); len(rows) != 2 {
		t.Errorf("Execute() left %d rows want 2", len(rows))
	}
}
