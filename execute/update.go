package execute

import (
	"context"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// UpdateRequest is everything an UPDATE statement supplies the executor:
// the target table, the WHERE predicate, the FETCH clause, the SET-clause
// assignments (§4.5), and the collector built from the caller's
// projection request. OnDuplicateKey marks this UPDATE as the fallback
// path of an ON DUPLICATE KEY INSERT (§4.5 "ON DUPLICATE KEY INSERT
// interaction"): constraint violations during SET evaluation convert to a
// per-row skip instead of aborting the statement.
type UpdateRequest struct {
	Descriptor     *Descriptor
	Predicate      sql.CExpr
	Fetch          FetchClause
	Assignments    []Assignment
	Collector      delta.Observer
	Engine         ExpressionEngine // nil uses DefaultExpressionEngine
	OnDuplicateKey bool
}

// UpdateExecutor runs the end-to-end UPDATE pipeline of §4.5: scan ->
// compute newRow -> observe OLD/NEW -> row trigger (BEFORE) -> buffer ->
// updateRow -> observe FINAL -> trigger (AFTER) -> table trigger.
type UpdateExecutor struct {
	Options Options
}

func NewUpdateExecutor() *UpdateExecutor {
	return &UpdateExecutor{Options: DefaultOptions()}
}

type updatePair struct {
	id     rowstore.RowID
	old    []sql.Value
	newRow []sql.Value
}

// Execute runs req against ses, returning the number of rows updated. A
// row whose computed newRow is column-wise equal to the old row (§4.5
// step 4, §8 scenario 4 "no-op optimization") is neither counted nor
// reported to any collector.
func (e *UpdateExecutor) Execute(ctx context.Context, ses *session.Session,
	req UpdateRequest) (int64, error) {

	eng := req.Engine
	if eng == nil {
		eng = DefaultExpressionEngine()
	}
	d := req.Descriptor

	if err := ses.CheckRight(d.Name, session.UpdateRight); err != nil {
		return 0, err
	}

	if d.Update.BeforeStatement != nil {
		vetoed, err := d.Update.BeforeStatement.Fire(ctx)
		if err != nil {
			return 0, err
		}
		if vetoed {
			return 0, nil
		}
	}

	if err := d.Table.LockTable(ctx, rowstore.WriteLock); err != nil {
		return 0, err
	}
	defer d.Table.UnlockTable()

	limit, err := ResolveFetchLimit(req.Fetch)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		return 0, e.fireAfterStatement(ctx, d)
	}

	cur, err := d.Table.Scan(ctx)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	sd := newScanDriver(cur, ses, e.Options.ScanPollInterval)

	var buffer []updatePair
	var count int64
	var misses int

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
					"update: table %s: lock set changed after %d retries", d.Name, misses)
			}
			continue
		}
		misses = 0

		newRow, skip, err := e.applySet(ctx, eng, d, row.Values, req.Assignments,
			req.OnDuplicateKey)
		if err != nil {
			d.Table.UnlockRow(id)
			return count, err
		}
		if skip {
			logger.WithField("table", d.Name.String()).Debug(
				"update: row skipped (on duplicate key)")
			d.Table.UnlockRow(id)
			continue
		}

		if rowsEqual(row.Values, newRow) {
			d.Table.UnlockRow(id)
			continue
		}

		if err := req.Collector.Trigger(ctx, delta.Update, delta.Old, row.Values); err != nil {
			d.Table.UnlockRow(id)
			return count, err
		}
		if err := req.Collector.Trigger(ctx, delta.Update, delta.New, newRow); err != nil {
			d.Table.UnlockRow(id)
			return count, err
		}

		if d.FiresRow(delta.Update) && d.Update.BeforeRow != nil {
			vetoed, err := d.Update.BeforeRow.Fire(ctx, row.Values, newRow)
			if err != nil {
				d.Table.UnlockRow(id)
				return count, err
			}
			if vetoed {
				logger.WithField("table", d.Name.String()).Debug("update: row vetoed")
				d.Table.UnlockRow(id)
				continue
			}
		}

		buffer = append(buffer, updatePair{id: id, old: row.Values, newRow: newRow})
		count++
	}

	for i := range buffer {
		if i > 0 && i%e.Options.PostScanPollInterval == 0 {
			if err := ses.CheckCanceled(); err != nil {
				return count, err
			}
		}
		p := &buffer[i]
		newID, err := d.Table.UpdateRow(ctx, p.id, p.newRow)
		if err != nil {
			d.Table.UnlockRow(p.id)
			return count, err
		}
		d.Table.UnlockRow(p.id)
		p.id = newID

		if err := req.Collector.Trigger(ctx, delta.Update, delta.Final, p.newRow); err != nil {
			return count, err
		}
	}

	if d.FiresRow(delta.Update) && d.Update.AfterRow != nil {
		for i, p := range buffer {
			if i > 0 && i%e.Options.PostScanPollInterval == 0 {
				if err := ses.CheckCanceled(); err != nil {
					return count, err
				}
			}
			if _, err := d.Update.AfterRow.Fire(ctx, p.old, p.newRow); err != nil {
				return count, err
			}
		}
	}

	if err := e.fireAfterStatement(ctx, d); err != nil {
		return count, err
	}

	return count, nil
}

// applySet computes newRow from the SET clause (§4.5 steps 1-3) and
// decides whether the row should be skipped instead of failing the whole
// statement: under ON DUPLICATE KEY fallback, a constraint violation
// raised by ApplySetClause converts into skip == true rather than
// propagating (§4.5 step 3(b), §7 "ON DUPLICATE KEY is the only case in
// which an integrity violation is caught").
func (e *UpdateExecutor) applySet(ctx context.Context, eng ExpressionEngine, d *Descriptor,
	old []sql.Value, assigns []Assignment, onDuplicateKey bool) (newRow []sql.Value, skip bool,
	err error) {

	newRow, err = ApplySetClause(ctx, eng, d.Columns, d.Types, old, assigns)
	if err != nil {
		if onDuplicateKey {
			if kind, ok := sql.KindOf(err); ok && kind == sql.IntegrityViolation {
				return nil, true, nil
			}
		}
		return nil, false, err
	}
	return newRow, false, nil
}

func (e *UpdateExecutor) fireAfterStatement(ctx context.Context, d *Descriptor) error {
	if d.Update.AfterStatement == nil {
		return nil
	}
	_, err := d.Update.AfterStatement.Fire(ctx)
	return err
}
