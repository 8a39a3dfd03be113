package delta

import (
	"context"
	"io"

	"github.com/leftmike/quill/sql"
)

// Sink is the result buffer a statement-owned collector projects rows
// into (§3 "result sink"); GeneratedKeys, DataChangeDeltaTable, and
// Returning all write through one. It is not shared across sessions or
// statements (§5 "owned by the current statement").
type Sink struct {
	cols []sql.Identifier
	rows [][]sql.Value
}

// NewSink creates an empty sink with the given result columns. An empty
// cols slice is valid (§3 invariant 4: "still produce an empty
// (zero-column) result rather than failing").
func NewSink(cols []sql.Identifier) *Sink {
	return &Sink{cols: cols}
}

func (s *Sink) append(values []sql.Value) {
	row := make([]sql.Value, len(values))
	copy(row, values)
	s.rows = append(s.rows, row)
}

// Len reports how many rows have been projected so far.
func (s *Sink) Len() int { return len(s.rows) }

// Rows returns a read-only, one-shot sql.Rows over the sink's contents;
// reading it does not affect the sink's accumulation.
func (s *Sink) Rows() sql.Rows {
	return &sinkRows{cols: s.cols, rows: s.rows}
}

type sinkRows struct {
	cols []sql.Identifier
	rows [][]sql.Value
	idx  int
}

func (r *sinkRows) Columns() []sql.Identifier { return r.cols }

func (r *sinkRows) Close() error {
	r.rows = nil
	return nil
}

func (r *sinkRows) Next(ctx context.Context, dest []sql.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
