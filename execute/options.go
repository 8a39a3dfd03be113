package execute

// Options carries the executor's tunables: cancellation poll intervals
// (§5: "every 127 rows" during scan, "every 128 rows" during post-scan
// iteration) and the bounded retry count §12 adds for a filtered scan
// whose lock set keeps changing underneath lock-and-recheck. These are the
// values the config package's DML params (SPEC_FULL.md §10) feed in at
// startup; callers that don't wire config get DefaultOptions.
type Options struct {
	// ScanPollInterval is how many candidate rows the scan driver (§4.2)
	// examines between cancellation checks.
	ScanPollInterval int

	// PostScanPollInterval is how many buffered rows the post-scan apply
	// and AFTER-row-trigger passes (§4.4 steps 6-7, §5) process between
	// cancellation checks.
	PostScanPollInterval int

	// MaxRecheckRetries bounds how many consecutive lock-and-recheck
	// misses in which the row was deleted between scan and lock (§4.3 step
	// 2) a filtered scan with a FETCH limit tolerates before giving up with
	// a *sql.Error of kind sql.LockSetChanged (§12). A row that no longer
	// matches the predicate is skipped without counting, and every row
	// that passes the recheck resets the count.
	MaxRecheckRetries int
}

func DefaultOptions() Options {
	return Options{
		ScanPollInterval:     127,
		PostScanPollInterval: 128,
		MaxRecheckRetries:    3,
	}
}
