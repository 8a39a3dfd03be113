// Package session implements the Session contract the DML execution core
// consumes from its caller (§6): cancellation, lock-wait timeout, identity
// capture, and permission checks. Grounded on evaluate/session.go's
// *Session type, generalized with the mode flags and cancellation flag
// §5/§6 require and that the teacher's session never needed.
package session

import (
	"context"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/quill/sql"
)

// Right is a permission bit checked before a statement may mutate a table.
type Right int

const (
	DeleteRight Right = iota
	InsertRight
	UpdateRight
	SelectRight
)

func (r Right) String() string {
	switch r {
	case DeleteRight:
		return "DELETE"
	case InsertRight:
		return "INSERT"
	case UpdateRight:
		return "UPDATE"
	case SelectRight:
		return "SELECT"
	default:
		return "UNKNOWN"
	}
}

// PermissionChecker is consulted by every executor before it scans or
// mutates a table (§4.4 precondition, §7 AccessDenied).
type PermissionChecker interface {
	CheckRight(user string, tn sql.TableName, right Right) bool
}

// AllowAll is a PermissionChecker that never denies; useful for embedding
// and for tests that aren't exercising access control.
type AllowAll struct{}

func (AllowAll) CheckRight(string, sql.TableName, Right) bool { return true }

// Mode carries the session flags §6 lists: whether INSERT should capture
// the last generated identity, and how unquoted identifiers not resolved
// exactly should be case-folded when the generated-keys projector falls
// back to a case-insensitive lookup (§4.7).
type Mode struct {
	TakeInsertedIdentity bool
	DatabaseToUpper      bool
	DatabaseToLower      bool
}

// DefaultMode matches the teacher's convention of defaulting to whatever
// makes identity capture "just work" for a single-statement INSERT.
func DefaultMode() Mode {
	return Mode{TakeInsertedIdentity: true}
}

// Session is the per-connection state the executor reads and updates while
// running one statement. A Session executes at most one statement at a
// time (§5); it is not safe for concurrent use by two statements.
type Session struct {
	User    string
	Mode    Mode
	Checker PermissionChecker

	sesid       uint64
	canceled    atomic.Bool
	timeout     time.Duration
	lastIdentMu chan struct{} // binary semaphore guarding lastIdentity
	lastIdent   sql.Value
}

func New(sesid uint64, user string, checker PermissionChecker) *Session {
	if checker == nil {
		checker = AllowAll{}
	}
	ses := &Session{
		User:        user,
		Mode:        DefaultMode(),
		Checker:     checker,
		sesid:       sesid,
		timeout:     5 * time.Second,
		lastIdentMu: make(chan struct{}, 1),
	}
	ses.lastIdentMu <- struct{}{}
	return ses
}

func (ses *Session) String() string {
	return "session"
}

// SetTimeout sets the lock-wait timeout (§4.3, §5) used by lock-and-recheck.
func (ses *Session) SetTimeout(d time.Duration) {
	ses.timeout = d
}

func (ses *Session) Timeout() time.Duration {
	return ses.timeout
}

// Cancel marks the session's in-flight statement as canceled (§5). Safe to
// call from a different goroutine than the one running the statement.
func (ses *Session) Cancel() {
	ses.canceled.Store(true)
}

// ResetCancel clears the cancellation flag at the start of a new statement.
func (ses *Session) ResetCancel() {
	ses.canceled.Store(false)
}

// Canceled reports whether the current statement has been asked to stop.
func (ses *Session) Canceled() bool {
	return ses.canceled.Load()
}

// CheckCanceled returns a *sql.Error of kind Canceled if the session has
// been canceled, nil otherwise. Callers poll this at row-scan granularity.
func (ses *Session) CheckCanceled() error {
	if ses.canceled.Load() {
		ses.logCanceled()
		return sql.NewError(sql.Canceled, "statement canceled")
	}
	return nil
}

// SetLastIdentity records the identity value of the last FINAL row of an
// eligible INSERT (§4.1 LastIdentity, §8 testable property).
func (ses *Session) SetLastIdentity(v sql.Value) {
	<-ses.lastIdentMu
	ses.lastIdent = v
	ses.lastIdentMu <- struct{}{}
}

func (ses *Session) LastIdentity() sql.Value {
	<-ses.lastIdentMu
	v := ses.lastIdent
	ses.lastIdentMu <- struct{}{}
	return v
}

// CheckRight fails the statement with AccessDenied before any scan occurs
// if the session's user lacks the requested right on tn (§4.4 precondition).
func (ses *Session) CheckRight(tn sql.TableName, right Right) error {
	if !ses.Checker.CheckRight(ses.User, tn, right) {
		return sql.NewError(sql.AccessDenied, "user %s: %s on table %s", ses.User, right, tn)
	}
	return nil
}

// WithTimeout derives a context that is canceled either by ctx's own
// deadline or by ses.timeout, whichever comes first; used around blocking
// row-lock acquisition in lock-and-recheck (§4.3).
func (ses *Session) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ses.timeout)
}

var logger = log.WithField("component", "session")

func (ses *Session) logCanceled() {
	logger.WithField("session", ses.sesid).Warn("statement canceled")
}
