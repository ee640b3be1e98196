package expand

import (
	"errors"
	"strconv"

	"mvdan.cc/sh/v3/syntax"
)

// Reason identifies why an expansion was refused or failed. The set is
// closed; callers can switch on it to decide how to treat the
// offending command region.
type Reason int

const (
	// ProcessSubstitution marks a word containing <(...) or >(...).
	ProcessSubstitution Reason = iota
	// Assignment marks a name=value command prefix.
	Assignment
	// UnresolvedTilde marks a ~user reference or a bare tilde with no
	// HOME binding in the snapshot.
	UnresolvedTilde
	// UnsetVariableError mirrors the shell's unset-variable-is-error
	// semantics when that option is active.
	UnsetVariableError
	// SubprocessFailure is an operational failure of the live shell
	// exchange, or a Delegate construct with no session to consult.
	SubprocessFailure
	// DelimiterExhausted means no reply delimiter candidate was absent
	// from every context value.
	DelimiterExhausted
	// MalformedReply means the shell's reply could not be parsed back
	// into fields.
	MalformedReply
)

// String returns the string representation of a Reason.
func (r Reason) String() string {
	switch r {
	case ProcessSubstitution:
		return "process substitution"
	case Assignment:
		return "assignment"
	case UnresolvedTilde:
		return "unresolved tilde"
	case UnsetVariableError:
		return "unset variable"
	case SubprocessFailure:
		return "subprocess failure"
	case DelimiterExhausted:
		return "delimiter exhausted"
	case MalformedReply:
		return "malformed reply"
	default:
		return "unknown"
	}
}

// Error reports the construct that stopped an expansion. The walk is
// fail-fast: the first offending node ends it and no partial results
// accompany the error.
type Error struct {
	Reason Reason
	Node   syntax.Node // offending word or construct; may be nil
	Word   string      // flat source text of the offending word
	Err    error       // underlying cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := "expand: " + e.Reason.String()
	if e.Word != "" {
		msg += ": " + strconv.Quote(e.Word)
	}
	if e.Node != nil && e.Node.Pos().IsValid() {
		msg += " at " + e.Node.Pos().String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the expansion reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Reason, true
	}
	return 0, false
}
