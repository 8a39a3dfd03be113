package delta

import (
	"context"

	"github.com/leftmike/quill/sql"
)

// LastIdentity copies values[IdentityColumn] into the session's last-
// inserted-identity slot on (INSERT, FINAL) events, per §3/§4.1. It is
// composed in front of any caller-supplied collector (§3 invariant 3) so
// that the session's lastIdentity is already updated by the time a user
// sink observes the same FINAL event (§9 open question, pinned to "yes").
type LastIdentity struct {
	Session        IdentitySetter
	IdentityColumn int
}

func (li LastIdentity) Trigger(ctx context.Context, action Action, option Option,
	values []sql.Value) error {

	if action == Insert && option == Final {
		if li.IdentityColumn >= 0 && li.IdentityColumn < len(values) {
			li.Session.SetLastIdentity(values[li.IdentityColumn])
		}
	}
	return nil
}

// WithLastIdentity prepends a LastIdentity wrapper around inner when
// eligible is true, per the composition rule every §4.1 factory shares:
// "LastIdentity ∘ <inner>" if eligible, else inner alone.
func WithLastIdentity(eligible bool, ses IdentitySetter, identityCol int,
	inner Observer) Observer {

	if !eligible {
		return inner
	}
	return Composite{LastIdentity{Session: ses, IdentityColumn: identityCol}, inner}
}
