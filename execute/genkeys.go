package execute

import (
	"strings"

	"github.com/leftmike/quill/delta"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
	"github.com/leftmike/quill/strutil"
)

// BuildGeneratedKeysCollector resolves req against d and wires the result
// into a delta.Observer: a Noop collector if the resolved set is empty
// (§4.7), otherwise delta.BuildGeneratedKeys's usual "LastIdentity ∘
// GeneratedKeys" composition (§4.1).
func BuildGeneratedKeysCollector(d *Descriptor, eng ExpressionEngine, ses delta.IdentitySetter,
	mode session.Mode, elig delta.Eligibility, req GeneratedKeysRequest,
	sink *delta.Sink) (delta.Observer, error) {

	idxs, err := ResolveGeneratedKeys(d, eng, mode, req)
	if err != nil {
		return nil, err
	}
	if len(idxs) == 0 {
		return delta.Noop{}, nil
	}
	return delta.BuildGeneratedKeys(ses, elig, idxs, sink), nil
}

// GeneratedKeysRequest is the request shape a caller hands the projector
// (C8, §4.7): exactly one of the three forms below. The zero value (all
// fields unset) requests nothing, resolving to an empty set.
type GeneratedKeysRequest struct {
	// All requests "all interesting columns": the identity column, every
	// primary-key member, and every column with a non-constant default.
	All bool

	// Indexes requests an explicit, caller-supplied vector of 1-based
	// column ordinals, as a generated-keys API typically hands them.
	Indexes []int

	// Names requests resolution by column name, tried case-sensitively
	// first, then against the DB's configured upper/lower folding, then
	// case-insensitively.
	Names []string
}

// ResolveGeneratedKeys resolves req against d into a 0-based column index
// vector suitable for delta.GeneratedKeys.Indexes (§4.7). An empty
// resolved set is not an error: callers are expected to build a Noop
// collector for it instead of delta.GeneratedKeys (§4.7 "an empty
// resolved set yields an empty result and a Noop generated-keys
// collector").
func ResolveGeneratedKeys(d *Descriptor, eng ExpressionEngine, mode session.Mode,
	req GeneratedKeysRequest) ([]int, error) {

	switch {
	case req.All:
		return allInterestingColumns(d, eng), nil
	case len(req.Indexes) > 0:
		return resolveGeneratedKeyIndexes(d, req.Indexes)
	case len(req.Names) > 0:
		return resolveGeneratedKeyNames(d, mode, req.Names)
	default:
		return nil, nil
	}
}

func allInterestingColumns(d *Descriptor, eng ExpressionEngine) []int {
	var idxs []int
	seen := make([]bool, len(d.Types))

	add := func(i int) {
		if i >= 0 && i < len(seen) && !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}

	if d.HasIdentity() {
		add(d.IdentityColumn)
	}
	for _, i := range d.PrimaryKey {
		add(i)
	}
	for i, ct := range d.Types {
		if ct.Default != nil && !eng.IsConstant(ct.Default) {
			add(i)
		}
	}
	return idxs
}

func resolveGeneratedKeyIndexes(d *Descriptor, indexes []int) ([]int, error) {
	out := make([]int, len(indexes))
	for i, idx := range indexes {
		if idx < 1 || idx > len(d.Types) {
			return nil, sql.NewError(sql.ColumnNotFound,
				"generated keys: column index %d out of range [1, %d]", idx, len(d.Types))
		}
		out[i] = idx - 1
	}
	return out, nil
}

func resolveGeneratedKeyNames(d *Descriptor, mode session.Mode, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		idx, err := resolveGeneratedKeyName(d, mode, name)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// resolveGeneratedKeyName resolves one name against d.Columns, per §4.7:
// case-sensitively first, then against the DB's configured upper/lower
// folding, then case-insensitively; unresolved is ColumnNotFound.
func resolveGeneratedKeyName(d *Descriptor, mode session.Mode, name string) (int, error) {
	if i := findColumn(d, name, func(a, b string) bool { return a == b }); i >= 0 {
		return i, nil
	}

	switch {
	case mode.DatabaseToUpper:
		folded := strutil.ToUpperEnglish(name)
		if i := findColumn(d, folded, func(a, b string) bool { return a == b }); i >= 0 {
			return i, nil
		}
	case mode.DatabaseToLower:
		folded := strutil.ToLowerEnglish(name)
		if i := findColumn(d, folded, func(a, b string) bool { return a == b }); i >= 0 {
			return i, nil
		}
	}

	if i := findColumn(d, name, strings.EqualFold); i >= 0 {
		return i, nil
	}

	return 0, sql.NewError(sql.ColumnNotFound, "generated keys: column %q not found", name)
}

func findColumn(d *Descriptor, name string, eq func(a, b string) bool) int {
	for i, col := range d.Columns {
		if eq(col.String(), name) {
			return i
		}
	}
	return -1
}
