package execute

import (
	"context"
	"io"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// MatchLookup resolves one MERGE source row to the row it matches in the
// target table, if any, already locked for write when matched (§4.6
// sketch: "MERGE INTO T USING ... ON a=?"). Index selection to do that
// lookup is out of scope per §1; the lookup and its locking are the
// caller's job, the same way PlanItem supplies an already-resolved
// predicate to DELETE/UPDATE.
type MatchLookup func(ctx context.Context, sourceRow []sql.Value) (*rowstore.Row, error)

// MergeRequest is everything a MERGE statement supplies: a source of
// candidate rows, a way to find the matching (and already locked) target
// row for each one, and the assignments/identity generator to use on the
// matched (UPDATE) path versus the unmatched (INSERT) path. Both paths
// share one Collector, consistent with §4.6: "collectors see either
// {UPDATE,OLD/NEW/FINAL} or {INSERT,NEW/FINAL} per source row."
type MergeRequest struct {
	Descriptor  *Descriptor
	Source      RowSource
	Match       MatchLookup
	Assignments []Assignment
	Identity    IdentityGenerator
	Collector   delta.Observer
	Engine      ExpressionEngine // nil uses DefaultExpressionEngine
}

// MergeExecutor runs the per-row MERGE dispatch of §4.6: a matched source
// row goes through the UPDATE shell, an unmatched one through the INSERT
// shell, reusing the same SET-clause engine, trigger firing, and delta
// events those executors use for each (no separate scan/lock-and-recheck
// pass of its own — MatchLookup already did that per source row).
type MergeExecutor struct {
	Options Options
}

func NewMergeExecutor() *MergeExecutor {
	return &MergeExecutor{Options: DefaultOptions()}
}

// Execute runs req against ses, returning the number of rows the MERGE
// statement affected (matched rows whose UPDATE turned out to be a no-op,
// §4.5 step 4, are not counted, mirroring plain UPDATE).
func (e *MergeExecutor) Execute(ctx context.Context, ses *session.Session,
	req MergeRequest) (int64, error) {

	eng := req.Engine
	if eng == nil {
		eng = DefaultExpressionEngine()
	}
	d := req.Descriptor

	if err := ses.CheckRight(d.Name, session.InsertRight); err != nil {
		return 0, err
	}
	if err := ses.CheckRight(d.Name, session.UpdateRight); err != nil {
		return 0, err
	}

	if err := d.Table.LockTable(ctx, rowstore.WriteLock); err != nil {
		return 0, err
	}
	defer d.Table.UnlockTable()

	var count int64
	var seen int
	for {
		seen++
		if seen%e.Options.ScanPollInterval == 0 {
			if err := ses.CheckCanceled(); err != nil {
				return count, err
			}
		}

		src, err := req.Source.Next(ctx)
		if err == io.EOF {
			break
		} else if err != nil {
			return count, err
		}

		matched, err := req.Match(ctx, src)
		if err != nil {
			return count, err
		}

		var counted bool
		if matched != nil {
			counted, err = e.mergeUpdate(ctx, d, eng, matched, req.Assignments, req.Collector)
		} else {
			counted, err = e.mergeInsert(ctx, eng, d, req.Identity, req.Collector, src)
		}
		if err != nil {
			return count, err
		}
		if counted {
			count++
		}
	}

	return count, nil
}

func (e *MergeExecutor) mergeUpdate(ctx context.Context, d *Descriptor, eng ExpressionEngine,
	row *rowstore.Row, assigns []Assignment, collector delta.Observer) (bool, error) {

	defer d.Table.UnlockRow(row.ID)

	newRow, err := ApplySetClause(ctx, eng, d.Columns, d.Types, row.Values, assigns)
	if err != nil {
		return false, err
	}
	if rowsEqual(row.Values, newRow) {
		return false, nil
	}

	if err := collector.Trigger(ctx, delta.Update, delta.Old, row.Values); err != nil {
		return false, err
	}
	if err := collector.Trigger(ctx, delta.Update, delta.New, newRow); err != nil {
		return false, err
	}

	if d.FiresRow(delta.Update) && d.Update.BeforeRow != nil {
		vetoed, err := d.Update.BeforeRow.Fire(ctx, row.Values, newRow)
		if err != nil {
			return false, err
		}
		if vetoed {
			return false, nil
		}
	}

	newID, err := d.Table.UpdateRow(ctx, row.ID, newRow)
	if err != nil {
		return false, err
	}
	row.ID = newID

	if err := collector.Trigger(ctx, delta.Update, delta.Final, newRow); err != nil {
		return false, err
	}

	if d.FiresRow(delta.Update) && d.Update.AfterRow != nil {
		if _, err := d.Update.AfterRow.Fire(ctx, row.Values, newRow); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (e *MergeExecutor) mergeInsert(ctx context.Context, eng ExpressionEngine, d *Descriptor,
	idgen IdentityGenerator, collector delta.Observer, src []sql.Value) (bool, error) {

	ie := &InsertExecutor{Options: e.Options}
	row, err := ie.prepareRow(ctx, eng, d, idgen, src)
	if err != nil {
		return false, err
	}

	if err := collector.Trigger(ctx, delta.Insert, delta.New, row); err != nil {
		return false, err
	}

	if d.FiresRow(delta.Insert) && d.Insert.BeforeRow != nil {
		vetoed, err := d.Insert.BeforeRow.Fire(ctx, nil, row)
		if err != nil {
			return false, err
		}
		if vetoed {
			return false, nil
		}
	}

	if _, err := d.Table.AddRow(ctx, row); err != nil {
		return false, err
	}

	if err := collector.Trigger(ctx, delta.Insert, delta.Final, row); err != nil {
		return false, err
	}

	if d.FiresRow(delta.Insert) && d.Insert.AfterRow != nil {
		if _, err := d.Insert.AfterRow.Fire(ctx, nil, row); err != nil {
			return false, err
		}
	}
	return true, nil
}
