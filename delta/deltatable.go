package delta

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// DataChangeDeltaTable records values into a result sink only when option
// matches a statically configured option (OLD | NEW | FINAL), per §3. One
// instance only ever watches one option; a caller wanting more than one
// (e.g. both OLD and FINAL) composes several via Composite.
type DataChangeDeltaTable struct {
	Option Option
	Sink   *Sink
}

func (dt DataChangeDeltaTable) Trigger(ctx context.Context, action Action, option Option,
	values []sql.Value) error {

	if option != dt.Option {
		return nil
	}
	dt.Sink.append(values)
	return nil
}
