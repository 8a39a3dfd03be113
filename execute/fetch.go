package execute

import "github.com/leftmike/quill/sql"

// FetchClause carries a resolved FETCH FIRST n ROWS ONLY value (or its
// MySQL-compatible LIMIT alias, per §12's supplemented feature). The
// caller has already parsed and evaluated the clause down to a sql.Value;
// this subsystem only interprets the resolved integer (§4.4 step 3).
type FetchClause struct {
	Fetch    sql.Value
	HasFetch bool

	Limit    sql.Value
	HasLimit bool
}

// ResolveFetchLimit turns a FetchClause into the limit the scan driver
// expects: -1 for "unlimited", an error of kind InvalidValue for a NULL
// or negative row count, otherwise the non-negative row count (§4.4 step
// 3). When both FETCH and LIMIT are present, FETCH takes precedence.
func ResolveFetchLimit(fc FetchClause) (int64, error) {
	v, has := fc.Fetch, fc.HasFetch
	if !has {
		v, has = fc.Limit, fc.HasLimit
	}
	if !has {
		return -1, nil
	}
	if v == nil {
		return 0, sql.NewError(sql.InvalidValue, "FETCH FIRST row count must not be NULL")
	}

	var n int64
	switch iv := v.(type) {
	case sql.Int64Value:
		n = int64(iv)
	case sql.Float64Value:
		n = int64(iv)
	default:
		return 0, sql.NewError(sql.InvalidValue, "FETCH FIRST row count must be an integer: %v", v)
	}
	if n < 0 {
		return 0, sql.NewError(sql.InvalidValue, "FETCH FIRST row count must not be negative: %d",
			n)
	}
	return n, nil
}
