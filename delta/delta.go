// Package delta implements the Delta Observer (C2): the pluggable variant
// family notified of every (Action, ResultOption, Row) event a DML
// statement produces, per spec.md §3/§4.1. Observers are composable and
// side-effect-free with respect to the executor — they only ever read
// values, never mutate it (§3 invariant 2).
package delta

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// Action names which DML statement produced the event.
type Action int

const (
	Delete Action = iota
	Insert
	Update
)

func (a Action) String() string {
	switch a {
	case Delete:
		return "DELETE"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// Option names the row lifecycle snapshot an event carries (§3 GLOSSARY).
type Option int

const (
	Old Option = iota
	New
	Final
)

func (o Option) String() string {
	switch o {
	case Old:
		return "OLD"
	case New:
		return "NEW"
	case Final:
		return "FINAL"
	default:
		return "UNKNOWN"
	}
}

// Observer is the single operation every collector variant implements
// (§3 DeltaChangeCollector). Implementations must not retain values past
// the call, since the executor may reuse the backing array for the same
// row's later lifecycle events (§3 invariant 2).
type Observer interface {
	Trigger(ctx context.Context, action Action, option Option, values []sql.Value) error
}

// Noop ignores every event. It is the base case the other factories fall
// back to when a collector isn't eligible for composition (§4.1).
type Noop struct{}

func (Noop) Trigger(context.Context, Action, Option, []sql.Value) error { return nil }

// Composite is a deterministic fan-out to an ordered list of child
// collectors; dispatch order equals construction order and there is no
// short-circuiting — every child observes every event regardless of
// whether an earlier child returned an error (§4.1 "Composite dispatch
// order equals construction order; no short-circuit").
type Composite []Observer

func (c Composite) Trigger(ctx context.Context, action Action, option Option,
	values []sql.Value) error {

	var first error
	for _, child := range c {
		if err := child.Trigger(ctx, action, option, values); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// IdentitySetter is the slice of session.Session that LastIdentity needs:
// recording the identity value of the last FINAL row of an eligible
// INSERT (§4.1, §8 testable property).
type IdentitySetter interface {
	SetLastIdentity(v sql.Value)
}
