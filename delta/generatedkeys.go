package delta

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// GeneratedKeys projects values through an index vector into a result
// sink on every FINAL event, regardless of action (§3, and §12's
// supplemented "generated keys from UPDATE" — C8's factory takes no
// action parameter, so any of DELETE/INSERT/UPDATE's FINAL events may
// feed it; DELETE never emits FINAL, so in practice only INSERT/UPDATE
// produce rows here).
type GeneratedKeys struct {
	Indexes []int
	Sink    *Sink
}

func (gk GeneratedKeys) Trigger(ctx context.Context, action Action, option Option,
	values []sql.Value) error {

	if option != Final {
		return nil
	}
	row := make([]sql.Value, len(gk.Indexes))
	for i, idx := range gk.Indexes {
		if idx >= 0 && idx < len(values) {
			row[i] = values[idx]
		}
	}
	gk.Sink.append(row)
	return nil
}
