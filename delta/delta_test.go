package delta_test

import (
	"context"
	"testing"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/sql"
)

type fakeSession struct {
	last sql.Value
}

func (fs *fakeSession) SetLastIdentity(v sql.Value) { fs.last = v }

func TestLastIdentityComposition(t *testing.T) {
	ses := &fakeSession{}
	sink := delta.NewSink([]sql.Identifier{sql.ID("id")})
	obs := delta.BuildGeneratedKeys(ses, delta.Eligibility{TakeInsertedIdentity: true,
		IdentityColumn: 0}, []int{0}, sink)

	err := obs.Trigger(context.Background(), delta.Insert, delta.Final,
		[]sql.Value{sql.Int64Value(7)})
	if err != nil {
		t.Fatalf("Trigger() failed with %s", err)
	}
	if ses.last != sql.Int64Value(7) {
		t.Errorf("SetLastIdentity got %v want %v", ses.last, sql.Int64Value(7))
	}
	if sink.Len() != 1 {
		t.Errorf("sink.Len() got %d want 1", sink.Len())
	}
}

func TestLastIdentityNotEligible(t *testing.T) {
	ses := &fakeSession{}
	sink := delta.NewSink(nil)
	obs := delta.BuildGeneratedKeys(ses, delta.Eligibility{TakeInsertedIdentity: false,
		IdentityColumn: 0}, nil, sink)

	err := obs.Trigger(context.Background(), delta.Insert, delta.Final,
		[]sql.Value{sql.Int64Value(7)})
	if err != nil {
		t.Fatalf("Trigger() failed with %s", err)
	}
	if ses.last != nil {
		t.Errorf("SetLastIdentity got %v want nil (not eligible)", ses.last)
	}
}

func TestDataChangeDeltaTableFiltersOption(t *testing.T) {
	sink := delta.NewSink([]sql.Identifier{sql.ID("a")})
	obs := delta.DataChangeDeltaTable{Option: delta.New, Sink: sink}

	_ = obs.Trigger(context.Background(), delta.Update, delta.Old, []sql.Value{sql.Int64Value(1)})
	if sink.Len() != 0 {
		t.Fatalf("OLD event should not be recorded by a NEW-only collector")
	}
	_ = obs.Trigger(context.Background(), delta.Update, delta.New, []sql.Value{sql.Int64Value(2)})
	if sink.Len() != 1 {
		t.Fatalf("NEW event should be recorded")
	}
}

type countObserver struct {
	calls *int
}

func (c countObserver) Trigger(context.Context, delta.Action, delta.Option, []sql.Value) error {
	*c.calls++
	return nil
}

func TestCompositeNoShortCircuit(t *testing.T) {
	var n int
	comp := delta.Composite{countObserver{&n}, countObserver{&n}, countObserver{&n}}
	err := comp.Trigger(context.Background(), delta.Delete, delta.Old, nil)
	if err != nil {
		t.Fatalf("Trigger() failed with %s", err)
	}
	if n != 3 {
		t.Errorf("every child should observe the event, got %d calls want 3", n)
	}
}

func TestReturningOnlyFiresConfiguredEvents(t *testing.T) {
	sink := delta.NewSink([]sql.Identifier{sql.ID("a")})
	obs := delta.Returning{Exprs: nil, Sink: sink}

	_ = obs.Trigger(context.Background(), delta.Update, delta.Old, nil)
	if sink.Len() != 0 {
		t.Fatalf("UPDATE,OLD should not be recorded by Returning")
	}
	_ = obs.Trigger(context.Background(), delta.Update, delta.Final, nil)
	if sink.Len() != 1 {
		t.Fatalf("UPDATE,FINAL should be recorded by Returning")
	}
	_ = obs.Trigger(context.Background(), delta.Delete, delta.Old, nil)
	if sink.Len() != 2 {
		t.Fatalf("DELETE,OLD should be recorded by Returning")
	}
}
