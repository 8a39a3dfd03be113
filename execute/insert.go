package execute

import (
	"context"
	"io"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// RowSource produces the rows an INSERT statement writes, either eagerly
// from a VALUES list or streamed from a sub-query (§4.6: "Source rows
// come either from a VALUES list (eager) or from a sub-query
// (streamed)"). A nil value at a column position means "not supplied by
// this source row" and is a candidate for default expansion.
type RowSource interface {
	// Next returns the next source row, or (nil, io.EOF) once exhausted.
	Next(ctx context.Context) ([]sql.Value, error)
}

// ValuesSource is the eager RowSource backing a literal VALUES list.
type ValuesSource struct {
	Rows [][]sql.Value
	idx  int
}

func (vs *ValuesSource) Next(ctx context.Context) ([]sql.Value, error) {
	if vs.idx >= len(vs.Rows) {
		return nil, io.EOF
	}
	row := vs.Rows[vs.idx]
	vs.idx++
	return row, nil
}

// IdentityGenerator produces successive identity-column values (§4.6 step
// 1: "assign identity (from sequence) for identity columns left unset").
// Sequence allocation itself is an external collaborator (§1: no storage
// format owned here).
type IdentityGenerator interface {
	Next(ctx context.Context) (sql.Value, error)
}

// DuplicateKeyFallback is invoked when rowStore.AddRow reports a unique-
// constraint violation for a MERGE / ON DUPLICATE KEY INSERT statement
// (§4.6 step 4: "delegate to UPDATE (C6) for the matching row"). Locating
// the conflicting row is an index lookup, out of scope per §1; the
// fallback is expected to do that lookup itself and run UpdateExecutor. It
// returns how many rows that UPDATE counted as affected (0 if UPDATE's
// own no-op detection, §4.5 step 4, skipped it).
type DuplicateKeyFallback func(ctx context.Context, newRow []sql.Value) (int64, error)

// InsertRequest is everything an INSERT statement supplies the executor.
type InsertRequest struct {
	Descriptor *Descriptor
	Source     RowSource
	Identity   IdentityGenerator // nil if the table has no identity column
	Collector  delta.Observer
	Engine     ExpressionEngine // nil uses DefaultExpressionEngine

	// OnDuplicateKey routes a unique-constraint violation from AddRow to
	// Fallback instead of raising IntegrityViolation (§4.6 step 4).
	OnDuplicateKey bool
	Fallback       DuplicateKeyFallback
}

// InsertExecutor runs the end-to-end INSERT pipeline of §4.6: expand
// defaults -> assign identity -> observe NEW -> row trigger (BEFORE) ->
// addRow -> observe FINAL -> row trigger (AFTER).
type InsertExecutor struct {
	Options Options
}

func NewInsertExecutor() *InsertExecutor {
	return &InsertExecutor{Options: DefaultOptions()}
}

// Execute runs req against ses, returning the number of rows inserted
// (rows routed to the ON DUPLICATE KEY fallback count as whatever the
// fallback itself reports, per DuplicateKeyFallback's contract).
func (e *InsertExecutor) Execute(ctx context.Context, ses *session.Session,
	req InsertRequest) (int64, error) {

	eng := req.Engine
	if eng == nil {
		eng = DefaultExpressionEngine()
	}
	d := req.Descriptor

	if err := ses.CheckRight(d.Name, session.InsertRight); err != nil {
		return 0, err
	}

	if d.Insert.BeforeStatement != nil {
		vetoed, err := d.Insert.BeforeStatement.Fire(ctx)
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

		row, err := e.prepareRow(ctx, eng, d, req.Identity, src)
		if err != nil {
			return count, err
		}

		if err := req.Collector.Trigger(ctx, delta.Insert, delta.New, row); err != nil {
			return count, err
		}

		var vetoed bool
		if d.FiresRow(delta.Insert) && d.Insert.BeforeRow != nil {
			vetoed, err = d.Insert.BeforeRow.Fire(ctx, nil, row)
			if err != nil {
				return count, err
			}
		}
		if vetoed {
			logger.WithField("table", d.Name.String()).Debug("insert: row vetoed")
			continue
		}

		_, err = d.Table.AddRow(ctx, row)
		if err != nil {
			if req.OnDuplicateKey && isIntegrityViolation(err) && req.Fallback != nil {
				n, ferr := req.Fallback(ctx, row)
				if ferr != nil {
					return count, ferr
				}
				count += n
				continue
			}
			return count, err
		}

		if err := req.Collector.Trigger(ctx, delta.Insert, delta.Final, row); err != nil {
			return count, err
		}

		if d.FiresRow(delta.Insert) && d.Insert.AfterRow != nil {
			if _, err := d.Insert.AfterRow.Fire(ctx, nil, row); err != nil {
				return count, err
			}
		}

		count++
	}

	if err := e.fireAfterStatement(ctx, d); err != nil {
		return count, err
	}

	return count, nil
}

// prepareRow expands defaults and assigns an identity value for an
// identity column left unset by the source (§4.6 step 1). src is not
// mutated; a fresh row is returned.
func (e *InsertExecutor) prepareRow(ctx context.Context, eng ExpressionEngine, d *Descriptor,
	idgen IdentityGenerator, src []sql.Value) ([]sql.Value, error) {

	row := make([]sql.Value, len(d.Types))
	copy(row, src)

	if d.HasIdentity() && row[d.IdentityColumn] == nil {
		if idgen == nil {
			return nil, sql.NewError(sql.Internal,
				"insert: table %s: identity column with no generator", d.Name)
		}
		v, err := idgen.Next(ctx)
		if err != nil {
			return nil, err
		}
		cv, err := d.Types[d.IdentityColumn].ConvertValue(d.Columns[d.IdentityColumn], v)
		if err != nil {
			return nil, sql.NewError(sql.IntegrityViolation, "%s", err)
		}
		row[d.IdentityColumn] = cv
	}

	for i, ct := range d.Types {
		if row[i] != nil || i == d.IdentityColumn || ct.Default == nil {
			continue
		}
		v, err := eng.Evaluate(ctx, ct.Default, valuesCursor(row))
		if err != nil {
			return nil, err
		}
		cv, err := ct.ConvertValue(d.Columns[i], v)
		if err != nil {
			return nil, sql.NewError(sql.IntegrityViolation, "%s", err)
		}
		row[i] = cv
	}
	return row, nil
}

func isIntegrityViolation(err error) bool {
	kind, ok := sql.KindOf(err)
	return ok && kind == sql.IntegrityViolation
}

func (e *InsertExecutor) fireAfterStatement(ctx context.Context, d *Descriptor) error {
	if d.Insert.AfterStatement == nil {
		return nil
	}
	_, err := d.Insert.AfterStatement.Fire(ctx)
	return err
}
