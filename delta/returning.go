package delta

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// rowContext adapts a row's values to sql.EvalContext so a RETURNING
// expression list can reference columns of the row currently being
// reported, without delta depending on the execute package's own cursor
// type (avoiding an import cycle between the two).
type rowContext []sql.Value

func (rc rowContext) EvalRef(idx int) sql.Value {
	if idx < 0 || idx >= len(rc) {
		return nil
	}
	return rc[idx]
}

// Returning records a row derived from evaluating a fixed list of
// expressions against the current row, only on (DELETE, OLD) or
// (INSERT|UPDATE, FINAL) — the snapshot at which the affected row's final
// shape for reporting purposes is known (§3).
type Returning struct {
	Exprs []sql.CExpr
	Sink  *Sink
}

func (r Returning) Trigger(ctx context.Context, action Action, option Option,
	values []sql.Value) error {

	switch {
	case action == Delete && option == Old:
	case (action == Insert || action == Update) && option == Final:
	default:
		return nil
	}

	row := make([]sql.Value, len(r.Exprs))
	ectx := rowContext(values)
	for i, expr := range r.Exprs {
		v, err := expr.Eval(ctx, ectx)
		if err != nil {
			return err
		}
		row[i] = v
	}
	r.Sink.append(row)
	return nil
}
