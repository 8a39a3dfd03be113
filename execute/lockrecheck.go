package execute

import (
	"context"

	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// lockAndRecheck implements §4.3: given a candidate RowID produced by the
// scan driver, acquire its write lock, re-read its current values, and
// re-evaluate the predicate against them. It returns a nil Row — not an
// error — for two distinct outcomes the caller must tell apart (§4.3 steps
// 2-3, §12 retry budget):
//
//   - invalidated = true: the row was concurrently deleted between the
//     scan and the lock. This is the genuine "lock set changed underneath
//     us" case and counts toward the caller's MaxRecheckRetries budget.
//   - invalidated = false: the row still exists but its current values
//     fail req.Predicate. The scan driver (scan.go) runs an unfiltered
//     Table.Scan and has no predicate of its own, so every row reaches
//     here regardless of whether it matches; this is a plain, uncounted
//     skip, not a retry signal.
//
// On a non-nil Row, the caller now holds the row's write lock and is
// responsible for releasing it (via UnlockRow) once done with the row,
// whether that means mutating it or deciding not to.
func lockAndRecheck(ctx context.Context, ses *session.Session, tbl rowstore.Table,
	id rowstore.RowID, predicate sql.CExpr, engine ExpressionEngine) (row *rowstore.Row,
	invalidated bool, err error) {

	lctx, cancel := ses.WithTimeout(ctx)
	defer cancel()

	if err := tbl.LockRow(lctx, id); err != nil {
		return nil, false, err
	}

	values, err := tbl.ReadRow(ctx, id)
	if err == rowstore.ErrRowGone {
		tbl.UnlockRow(id)
		return nil, true, nil
	} else if err != nil {
		tbl.UnlockRow(id)
		return nil, false, err
	}

	if predicate != nil {
		v, err := engine.Evaluate(ctx, predicate, valuesCursor(values))
		if err != nil {
			tbl.UnlockRow(id)
			return nil, false, err
		}
		if !truthy(v) {
			tbl.UnlockRow(id)
			return nil, false, nil
		}
	}

	return &rowstore.Row{ID: id, Values: values}, false, nil
}

func truthy(v sql.Value) bool {
	b, ok := v.(sql.BoolValue)
	return ok && bool(b)
}
