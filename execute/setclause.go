package execute

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// Assignment is one SET clause entry: write the evaluated expression into
// Column of the new-row buffer (§4.5 step 2).
type Assignment struct {
	Column int
	Expr   sql.CExpr
}

// ApplySetClause computes newRow from old per §4.5 steps 1-3: copy old,
// evaluate each assignment's right-hand expression (which may reference
// OLD columns via the row cursor), write it to the corresponding column,
// and enforce the column's NOT NULL/type constraints via ColumnType.
// ConvertValue. A constraint violation surfaces as *sql.Error of kind
// IntegrityViolation; the UPDATE executor decides whether to propagate it
// or, under ON DUPLICATE KEY INSERT fallback, convert it into a per-row
// skip (§4.5 step 3(b)).
func ApplySetClause(ctx context.Context, engine ExpressionEngine, cols []sql.Identifier,
	types []sql.ColumnType, old []sql.Value, assigns []Assignment) ([]sql.Value, error) {

	newRow := make([]sql.Value, len(old))
	copy(newRow, old)

	cursor := valuesCursor(old)
	for _, a := range assigns {
		v, err := engine.Evaluate(ctx, a.Expr, cursor)
		if err != nil {
			return nil, err
		}
		cv, err := types[a.Column].ConvertValue(cols[a.Column], v)
		if err != nil {
			return nil, sql.NewError(sql.IntegrityViolation, "%s", err)
		}
		newRow[a.Column] = cv
	}
	return newRow, nil
}

// rowsEqual implements the column-wise no-op comparison §12 supplements:
// the original compares column by column via each column's own equality,
// short-circuiting on the first difference, rather than a single bitwise
// compare — which matters for NULL-vs-NULL (treated equal here) and for
// values whose Value.Compare disagrees with a byte-for-byte comparison.
func rowsEqual(a, b []sql.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] == nil && b[i] == nil {
			continue
		}
		if a[i] == nil || b[i] == nil {
			return false
		}
		cmp, err := a[i].Compare(b[i])
		if err != nil || cmp != 0 {
			return false
		}
	}
	return true
}
