package execute

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// DeleteRequest is everything a DELETE statement supplies the executor:
// the target table, the WHERE predicate (already resolved by the
// planner, §6), the FETCH clause, and the collector built by one of the
// delta package's factories from the caller's projection request.
type DeleteRequest struct {
	Descriptor *Descriptor
	Predicate  sql.CExpr
	Fetch      FetchClause
	Collector  delta.Observer
	Engine     ExpressionEngine // nil uses DefaultExpressionEngine
}

// DeleteExecutor runs the end-to-end DELETE pipeline of §4.4: scan ->
// observe OLD -> row trigger (BEFORE) -> buffer -> delete -> trigger
// (AFTER) -> table trigger.
type DeleteExecutor struct {
	Options Options
}

func NewDeleteExecutor() *DeleteExecutor {
	return &DeleteExecutor{Options: DefaultOptions()}
}

type victim struct {
	id     rowstore.RowID
	values []sql.Value
}

// Execute runs req against ses, returning the number of rows deleted.
func (e *DeleteExecutor) Execute(ctx context.Context, ses *session.Session,
	req DeleteRequest) (int64, error) {

	eng := req.Engine
	if eng == nil {
		eng = DefaultExpressionEngine()
	}
	d := req.Descriptor

	// Precondition: permission check before any scan (§4.4 precondition).
	if err := ses.CheckRight(d.Name, session.DeleteRight); err != nil {
		return 0, err
	}

	// Step 1: statement-level BEFORE trigger.
	if d.Delete.BeforeStatement != nil {
		vetoed, err := d.Delete.BeforeStatement.Fire(ctx)
		if err != nil {
			return 0, err
		}
		if vetoed {
			return 0, nil
		}
	}

	// Step 2: escalate to table WRITE lock.
	if err := d.Table.LockTable(ctx, rowstore.WriteLock); err != nil {
		return 0, err
	}
	defer d.Table.UnlockTable()

	// Step 3: resolve FETCH.
	limit, err := ResolveFetchLimit(req.Fetch)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		return 0, e.fireAfterStatement(ctx, d)
	}

	// Step 4: open scan.
	cur, err := d.Table.Scan(ctx)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	sd := newScanDriver(cur, ses, e.Options.ScanPollInterval)

	var buffer []victim
	var count int64
	var misses int

	// Step 5: scan loop.
	for {
		id, _, ok, err := sd.next(ctx, limit, count)
		if err != nil {
			return count, err
		}
		if !ok {
			break
		}

		row, invalidated, err := lockAndRecheck(ctx, ses, d.Table, id, req.Predicate, eng)
		if err != nil {
			return count, err
		}
		if row == nil {
			if !invalidated {
				continue
			}
			misses++
			if limit >= 0 && misses > e.Options.MaxRecheckRetries {
				return count, sql.NewError(sql.LockSetChanged,
					"delete: table %s: lock set changed after %d retries", d.Name, misses)
			}
			continue
		}
		misses = 0

		if err := req.Collector.Trigger(ctx, delta.Delete, delta.Old, row.Values); err != nil {
			d.Table.UnlockRow(id)
			return count, err
		}

		if d.FiresRow(delta.Delete) && d.Delete.BeforeRow != nil {
			vetoed, err := d.Delete.BeforeRow.Fire(ctx, row.Values, nil)
			if err != nil {
				d.Table.UnlockRow(id)
				return count, err
			}
			if vetoed {
				logger.WithField("table", d.Name.String()).Debug("delete: row vetoed")
				d.Table.UnlockRow(id)
				continue
			}
		}

		buffer = append(buffer, victim{id: id, values: row.Values})
		count++
	}

	// Step 6: apply deletes from the buffer.
	for i, v := range buffer {
		if i > 0 && i%e.Options.PostScanPollInterval == 0 {
			if err := ses.CheckCanceled(); err != nil {
				return count, err
			}
		}
		if err := d.Table.RemoveRow(ctx, v.id); err != nil {
			d.Table.UnlockRow(v.id)
			return count, err
		}
		d.Table.UnlockRow(v.id)
	}

	// Step 7: AFTER row triggers.
	if d.FiresRow(delta.Delete) && d.Delete.AfterRow != nil {
		for i, v := range buffer {
			if i > 0 && i%e.Options.PostScanPollInterval == 0 {
				if err := ses.CheckCanceled(); err != nil {
					return count, err
				}
			}
			if _, err := d.Delete.AfterRow.Fire(ctx, v.values, nil); err != nil {
				return count, err
			}
		}
	}

	// Step 8: statement-level AFTER trigger.
	if err := e.fireAfterStatement(ctx, d); err != nil {
		return count, err
	}

	// Step 9: return count.
	return count, nil
}

func (e *DeleteExecutor) fireAfterStatement(ctx context.Context, d *Descriptor) error {
	if d.Delete.AfterStatement == nil {
		return nil
	}
	_, err := d.Delete.AfterStatement.Fire(ctx)
	return err
}

var logger = log.WithField("component", "execute")
