package execute_test

import (
	"context"
	"testing"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

func threeColDescriptor(t *testing.T) *execute.Descriptor {
	cols := []sql.Identifier{sql.ID("id"), sql.ID("pk2"), sql.ID("created")}
	types := []sql.ColumnType{
		sql.Int64ColType,
		sql.Int64ColType,
		{Type: sql.IntegerType, Size: 8, Default: constExpr{v: sql.Int64Value(1)}},
	}
	d, _ := newTestTable(t, "gk", cols, types, nil)
	d.IdentityColumn = 0
	d.PrimaryKey = []int{1}
	return d
}

func TestResolveGeneratedKeysAll(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		All: true,
	})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	want := []int{0, 1, 2}
	if len(idxs) != len(want) {
		t.Fatalf("ResolveGeneratedKeys() got %v want %v", idxs, want)
	}
	for i := range want {
		if idxs[i] != want[i] {
			t.Errorf("ResolveGeneratedKeys()[%d] got %d want %d", i, idxs[i], want[i])
		}
	}
}

func TestResolveGeneratedKeysAllSkipsColumnWithoutDefault(t *testing.T) {
	cols := []sql.Identifier{sql.ID("a"), sql.ID("b")}
	types := []sql.ColumnType{
		sql.Int64ColType,
		{Type: sql.IntegerType, Size: 8, Default: nil}, // no default, not "interesting"
	}
	d, _ := newTestTable(t, "gk2", cols, types, nil)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		All: true,
	})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	if len(idxs) != 0 {
		t.Errorf("ResolveGeneratedKeys() got %v want empty (no identity/PK/default)", idxs)
	}
}

func TestResolveGeneratedKeysByIndex(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		Indexes: []int{2, 1},
	})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	if len(idxs) != 2 || idxs[0] != 1 || idxs[1] != 0 {
		t.Errorf("ResolveGeneratedKeys() got %v want [1 0]", idxs)
	}
}

func TestResolveGeneratedKeysByIndexOutOfRange(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	_, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		Indexes: []int{99},
	})
	if err == nil {
		t.Fatalf("ResolveGeneratedKeys() with out-of-range index did not fail")
	}
	if kind, ok := sql.KindOf(err); !ok || kind != sql.ColumnNotFound {
		t.Errorf("ResolveGeneratedKeys() got kind %v want ColumnNotFound", kind)
	}
}

func TestResolveGeneratedKeysByName(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		Names: []string{"created", "id"},
	})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	if len(idxs) != 2 || idxs[0] != 2 || idxs[1] != 0 {
		t.Errorf("ResolveGeneratedKeys() got %v want [2 0]", idxs)
	}
}

func TestResolveGeneratedKeysByNameCaseInsensitiveFallback(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		Names: []string{"ID"},
	})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	if len(idxs) != 1 || idxs[0] != 0 {
		t.Errorf("ResolveGeneratedKeys() got %v want [0]", idxs)
	}
}

func TestResolveGeneratedKeysByNameNotFound(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	_, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{
		Names: []string{"nope"},
	})
	if err == nil {
		t.Fatalf("ResolveGeneratedKeys() with unknown name did not fail")
	}
	if kind, ok := sql.KindOf(err); !ok || kind != sql.ColumnNotFound {
		t.Errorf("ResolveGeneratedKeys() got kind %v want ColumnNotFound", kind)
	}
}

func TestResolveGeneratedKeysEmptyRequest(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()

	idxs, err := execute.ResolveGeneratedKeys(d, eng, session.Mode{}, execute.GeneratedKeysRequest{})
	if err != nil {
		t.Fatalf("ResolveGeneratedKeys() failed with %s", err)
	}
	if len(idxs) != 0 {
		t.Errorf("ResolveGeneratedKeys() got %v want empty", idxs)
	}
}

func TestBuildGeneratedKeysCollectorEmptyIsNoop(t *testing.T) {
	cols := []sql.Identifier{sql.ID("a")}
	types := []sql.ColumnType{sql.Int64ColType}
	d, _ := newTestTable(t, "gk3", cols, types, nil)
	eng := execute.DefaultExpressionEngine()
	ses := newTestSession()

	obs, err := execute.BuildGeneratedKeysCollector(d, eng, ses, session.Mode{},
		delta.Eligibility{}, execute.GeneratedKeysRequest{}, delta.NewSink(nil))
	if err != nil {
		t.Fatalf("BuildGeneratedKeysCollector() failed with %s", err)
	}
	if _, ok := obs.(delta.Noop); !ok {
		t.Errorf("BuildGeneratedKeysCollector() with empty request got %T want delta.Noop", obs)
	}
}

func TestBuildGeneratedKeysCollectorProjects(t *testing.T) {
	d := threeColDescriptor(t)
	eng := execute.DefaultExpressionEngine()
	ses := newTestSession()
	sink := delta.NewSink([]sql.Identifier{sql.ID("id")})

	obs, err := execute.BuildGeneratedKeysCollector(d, eng, ses, session.Mode{},
		delta.Eligibility{}, execute.GeneratedKeysRequest{Indexes: []int{1}}, sink)
	if err != nil {
		t.Fatalf("BuildGeneratedKeysCollector() failed with %s", err)
	}

	if err := obs.Trigger(context.Background(), delta.Insert, delta.Final,
		[]sql.Value{sql.Int64Value(1), sql.Int64Value(2), sql.Int64Value(3)}); err != nil {
		t.Fatalf("Trigger() failed with %s", err)
	}
	if sink.Len() != 1 {
		t.Errorf("sink.Len() got %d want 1", sink.Len())
	}
}
