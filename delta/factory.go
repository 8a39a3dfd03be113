package delta

import "github.com/leftmike/quill/sql"

// Eligibility is the pair of facts every §4.1 factory consults to decide
// whether to wrap its collector in LastIdentity: the session mode's
// takeInsertedIdentity flag, and whether the target table has an identity
// column.
type Eligibility struct {
	TakeInsertedIdentity bool
	IdentityColumn       int // -1 if the table has none
}

func (e Eligibility) eligible() bool {
	return e.TakeInsertedIdentity && e.IdentityColumn >= 0
}

// Default builds the collector used when a statement has no caller-
// supplied collector of its own: "LastIdentity ∘ Noop if eligible, else
// Noop" (§4.1).
func Default(ses IdentitySetter, elig Eligibility) Observer {
	return WithLastIdentity(elig.eligible(), ses, elig.IdentityColumn, Noop{})
}

// BuildDataChangeDeltaTable builds "LastIdentity ∘ DataChangeDeltaTable"
// if eligible, else the inner collector alone (§4.1).
func BuildDataChangeDeltaTable(ses IdentitySetter, elig Eligibility, option Option,
	sink *Sink) Observer {

	inner := DataChangeDeltaTable{Option: option, Sink: sink}
	return WithLastIdentity(elig.eligible(), ses, elig.IdentityColumn, inner)
}

// BuildGeneratedKeys builds "LastIdentity ∘ GeneratedKeys" if eligible,
// else GeneratedKeys alone (§4.1).
func BuildGeneratedKeys(ses IdentitySetter, elig Eligibility, indexes []int,
	sink *Sink) Observer {

	inner := GeneratedKeys{Indexes: indexes, Sink: sink}
	return WithLastIdentity(elig.eligible(), ses, elig.IdentityColumn, inner)
}

// BuildReturning builds "LastIdentity ∘ Returning" if eligible, else
// Returning alone (§4.1).
func BuildReturning(ses IdentitySetter, elig Eligibility, exprs []sql.CExpr,
	sink *Sink) Observer {

	inner := Returning{Exprs: exprs, Sink: sink}
	return WithLastIdentity(elig.eligible(), ses, elig.IdentityColumn, inner)
}
