package sql

import (
	"context"
)

// Rows is a read-only result set: the shape returned to a caller by
// RETURNING, generated-keys, and data-change-delta-table projections (§3).
// Unlike the row store's scan cursor, Rows never mutates the table it came
// from.
type Rows interface {
	Columns() []Identifier
	Close() error
	Next(ctx context.Context, dest []Value) error
}
