package execute

import (
	"context"
	"io"

	"github.com/leftmike/quill/rowstore"
	"github.com/leftmike/quill/session"
	"github.com/leftmike/quill/sql"
)

// scanDriver drives a target table's row source with a fetch limit and
// cancellation, per §4.2. It halts when the source is exhausted or when
// limit >= 0 && countSoFar >= limit, and polls the session's cancellation
// flag every pollEvery rows.
type scanDriver struct {
	cur       rowstore.Cursor
	ses       *session.Session
	pollEvery int
	seen      int
}

func newScanDriver(cur rowstore.Cursor, ses *session.Session, pollEvery int) *scanDriver {
	return &scanDriver{cur: cur, ses: ses, pollEvery: pollEvery}
}

// next returns the scan's next candidate; ok == false once the source is
// exhausted or the limit has been reached (neither is an error). A
// negative limit means unbounded (§4.4 step 3).
func (sd *scanDriver) next(ctx context.Context, limit, countSoFar int64) (rowstore.RowID,
	[]sql.Value, bool, error) {

	if limit >= 0 && countSoFar >= limit {
		return nil, nil, false, nil
	}

	sd.seen++
	if sd.pollEvery > 0 && sd.seen%sd.pollEvery == 0 {
		if err := sd.ses.CheckCanceled(); err != nil {
			return nil, nil, false, err
		}
	}

	id, values, err := sd.cur.Next(ctx)
	if err == io.EOF {
		return nil, nil, false, nil
	} else if err != nil {
		return nil, nil, false, err
	}
	return id, values, true, nil
}
