// Package execute is the DML execution core: the scan driver (§4.2),
// lock-and-recheck (§4.3), the DELETE/UPDATE/INSERT/MERGE executors
// (§4.4-§4.6) and the generated-keys projector (§4.7). It consumes
// rowstore.RowStore and session.Session, and the two small interfaces
// below that stand in for the expression engine and planner §6 lists as
// external collaborators (out of scope per §1: no expression tree, no
// optimizer).
package execute

import (
	"context"

	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/sql"
)

// RowCursor lets a SET-clause right-hand expression or a WHERE predicate
// refer to columns of the row currently under consideration (§4.5 step 2:
// "possibly referring to OLD columns via the row cursor"). Index is the
// table's column ordinal.
type RowCursor interface {
	sql.EvalContext
}

// valuesCursor is the concrete RowCursor used throughout: a fixed slice of
// column values, read-only (§3 invariant 2: collectors and cursors never
// mutate values).
type valuesCursor []sql.Value

func (vc valuesCursor) EvalRef(idx int) sql.Value {
	if idx < 0 || idx >= len(vc) {
		return nil
	}
	return vc[idx]
}

// ExpressionEngine evaluates a prepared expression against a row cursor
// (§6: "evaluate(expr, rowCursor) -> Value; isConstant(expr)"). The SQL
// expression tree and optimizer that produce sql.CExpr values are out of
// scope (§1); this subsystem only calls Evaluate/IsConstant on whatever
// the caller already compiled.
type ExpressionEngine interface {
	Evaluate(ctx context.Context, expr sql.CExpr, cursor RowCursor) (sql.Value, error)
	IsConstant(expr sql.CExpr) bool
}

// defaultEngine evaluates sql.CExpr directly; it is the engine used
// whenever a caller doesn't supply its own (tests, the cmd CLI).
type defaultEngine struct{}

func (defaultEngine) Evaluate(ctx context.Context, expr sql.CExpr, cursor RowCursor) (sql.Value,
	error) {

	if expr == nil {
		return nil, nil
	}
	return expr.Eval(ctx, cursor)
}

func (defaultEngine) IsConstant(expr sql.CExpr) bool {
	return expr == nil
}

// DefaultExpressionEngine returns the ExpressionEngine used when a caller
// has no planner-supplied one of its own.
func DefaultExpressionEngine() ExpressionEngine {
	return defaultEngine{}
}

// PlanItem is the target table's chosen access path (§6 Planner): which
// table, and the WHERE predicate already resolved against it. Index
// selection itself is out of scope (§1); PlanItem only carries what the
// executor needs once a path has been chosen.
type PlanItem interface {
	Table() rowstore.Table
	Predicate() sql.CExpr
}

// Planner resolves a target table name to a PlanItem (§6). Out-of-process
// callers implement this against their own optimizer; NewPlanItem builds a
// PlanItem without one.
type Planner interface {
	Plan(ctx context.Context, tn sql.TableName) (PlanItem, error)
}

type planItem struct {
	table     rowstore.Table
	predicate sql.CExpr
}

func (pi planItem) Table() rowstore.Table   { return pi.table }
func (pi planItem) Predicate() sql.CExpr    { return pi.predicate }

// NewPlanItem builds a PlanItem directly from a table and predicate,
// bypassing a real Planner, for callers that have already resolved the
// access path themselves.
func NewPlanItem(tbl rowstore.Table, predicate sql.CExpr) PlanItem {
	return planItem{table: tbl, predicate: predicate}
}
