package sql

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure raised by the DML execution core, per the
// error handling design (§7). All of them are fatal to the current
// statement except that IntegrityViolation may be caught and converted into
// a per-row skip by the ON DUPLICATE KEY INSERT fallback (§4.5, §7).
type ErrorKind int

const (
	AccessDenied ErrorKind = iota + 1
	InvalidValue
	ColumnNotFound
	IntegrityViolation
	LockTimeout
	Canceled
	FormatError
	Internal

	// LockSetChanged is not named by spec.md §7 directly; it is the
	// distinct error kind SPEC_FULL.md §12 introduces for a bounded
	// filtered scan (DELETE/UPDATE with a FETCH limit) whose candidate
	// set keeps changing out from under lock-and-recheck, surfaced
	// separately from an outright LockTimeout.
	LockSetChanged
)

func (k ErrorKind) String() string {
	switch k {
	case AccessDenied:
		return "access denied"
	case InvalidValue:
		return "invalid value"
	case ColumnNotFound:
		return "column not found"
	case IntegrityViolation:
		return "integrity violation"
	case LockTimeout:
		return "lock timeout"
	case Canceled:
		return "canceled"
	case FormatError:
		return "format error"
	case Internal:
		return "internal error"
	case LockSetChanged:
		return "lock set changed"
	default:
		return "error"
	}
}

// Error is a single user-visible failure: a kind, a message, and —
// where applicable — a position marker in the offending text (§7).
type Error struct {
	Kind    ErrorKind
	Message string

	// Text and Pos are set by the §6 string-helper decoders (hex, quoted
	// literal) to report a FormatError with the fault position marked.
	Text string
	Pos  int
}

func (e *Error) Error() string {
	if e.Text == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.markedText())
}

// markedText inserts "[*]" at e.Pos in e.Text, per §7's FormatError contract.
func (e *Error) markedText() string {
	if e.Pos < 0 || e.Pos > len(e.Text) {
		return e.Text
	}
	return e.Text[:e.Pos] + "[*]" + e.Text[e.Pos:]
}

func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewFormatError(text string, pos int, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    FormatError,
		Message: fmt.Sprintf(format, args...),
		Text:    text,
		Pos:     pos,
	}
}

// KindOf reports the ErrorKind of err if it (or something it wraps) is a
// *sql.Error, and false otherwise.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
