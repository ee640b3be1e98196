// Package classify decides whether a shell word construct can be
// resolved from a static variable snapshot, needs a live shell, or
// must not be resolved at all.
package classify

import "github.com/sh-tools/shexpand/pkg/word"

// Class is the safety classification of a construct.
type Class int

const (
	// Inline means the construct resolves from the variable snapshot
	// alone, with no subprocess and no filesystem access.
	Inline Class = iota
	// Delegate means only a live shell session can resolve the
	// construct (it needs command execution or filesystem state).
	Delegate
	// Reject means resolving the construct statically is unsafe and
	// the whole word must be reported instead of expanded.
	Reject
)

// String returns the string representation of a Class.
func (c Class) String() string {
	switch c {
	case Inline:
		return "inline"
	case Delegate:
		return "delegate"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Classify maps a construct in its quoting context to a safety class.
// It is pure and total: every (kind, quoting) pair has exactly one
// class, and the same input always yields the same output.
func Classify(c word.Construct) Class {
	switch c.Kind {
	case word.Literal:
		return Inline
	case word.Tilde:
		// Inside quotes a tilde never reaches the analyzer as its own
		// construct; reject if one ever does.
		if c.Quoting == word.Unquoted {
			return Inline
		}
		return Reject
	case word.TildeUser:
		// No local user database to consult.
		return Reject
	case word.Param, word.ParamOp:
		return Inline
	case word.Arith, word.CmdSubst:
		return Delegate
	case word.ProcSubst:
		// Expanding a process substitution means running a subshell
		// with a live file-descriptor handle.
		return Reject
	case word.Glob:
		if c.Quoting == word.Unquoted {
			return Delegate
		}
		return Inline // inert inside quotes
	case word.Assign:
		// Assignment words signal shared-state mutation and must not
		// be treated as plain schedulable arguments.
		return Reject
	default:
		// Unmodeled constructs get exact semantics from a live shell.
		return Delegate
	}
}

// Word returns the class governing a whole word: the most restrictive
// class among its constructs (Reject > Delegate > Inline). An empty
// construct list classifies Inline.
func Word(cs []word.Construct) Class {
	class := Inline
	for _, c := range cs {
		if k := Classify(c); k > class {
			class = k
		}
	}
	return class
}
