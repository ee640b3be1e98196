package expand

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/sh-tools/shexpand/pkg/session"
	"github.com/sh-tools/shexpand/pkg/word"
)

// defaultTriggerChars is the pre-check character set: a pure-literal
// word without any of these cannot need an expansion. Deliberately a
// superset of what strictly triggers one.
const defaultTriggerChars = "$`~*?["

// delimiterCandidates is the bounded alphabet searched for a reply
// delimiter absent from every context value.
const delimiterCandidates = 8

// Options tunes the delegating expander. The zero value selects the
// documented defaults.
type Options struct {
	// TriggerChars is the set of characters whose presence makes a
	// word eligible for delegation. The set is intentionally
	// over-approximate: a false positive costs one shell round trip,
	// a false negative would silently skip a needed expansion, so
	// tune it only toward more characters.
	TriggerChars string

	// Delimiters are the reply delimiter candidates tried in order.
	Delimiters []string
}

func (o Options) triggerChars() string {
	if o.TriggerChars == "" {
		return defaultTriggerChars
	}
	return o.TriggerChars
}

func (o Options) delimiters() []string {
	if len(o.Delimiters) > 0 {
		return o.Delimiters
	}
	ds := make([]string, 0, delimiterCandidates)
	for i := range delimiterCandidates {
		ds = append(ds, fmt.Sprintf("__SHEXPAND_%d__", i))
	}
	return ds
}

// Delegate asks the live shell session to expand w. The snapshot is
// replayed as an escaped assignment preamble, the word is emitted
// between a delimiter pair absent from every context value, and the
// reply is parsed back into fields. Words that cannot possibly need
// expansion skip the round trip and return themselves as one field.
//
// Context values are never placed in executable position: they enter
// the request only on the right-hand side of an assignment, quoted so
// that every shell-active metacharacter is neutralized.
func Delegate(ctx context.Context, w *syntax.Word, env *Context, sess session.Session, opts Options) ([]string, error) {
	flat := word.Flatten(w)
	if literalOnly(w) && !strings.ContainsAny(flat, opts.triggerChars()) {
		return []string{flat}, nil
	}
	if sess == nil {
		return nil, &Error{Reason: SubprocessFailure, Node: w, Word: flat, Err: errNoSession}
	}

	preamble, err := assignmentPreamble(env)
	if err != nil {
		return nil, &Error{Reason: SubprocessFailure, Node: w, Word: flat, Err: err}
	}
	delim, ok := chooseDelimiter(env, flat, opts.delimiters())
	if !ok {
		return nil, &Error{Reason: DelimiterExhausted, Node: w, Word: flat}
	}

	var req strings.Builder
	if preamble != "" {
		req.WriteString(preamble)
		req.WriteString("; ")
	}
	req.WriteString("printf '%s\\n' ")
	req.WriteString(delim)
	req.WriteString(" ")
	req.WriteString(flat)
	req.WriteString(" ")
	req.WriteString(delim)

	reply, err := sess.Run(ctx, req.String())
	if err != nil {
		return nil, &Error{Reason: SubprocessFailure, Node: w, Word: flat, Err: err}
	}
	fields, err := parseReply(reply, delim)
	if err != nil {
		return nil, &Error{Reason: MalformedReply, Node: w, Word: flat, Err: err}
	}
	return fields, nil
}

// literalOnly reports whether every construct of w is plain literal
// text. Structured constructs (extended globs, unmodeled parameter
// operators) can expand no matter which characters their source form
// contains, so the character pre-check may only short-circuit pure
// literals.
func literalOnly(w *syntax.Word) bool {
	for _, c := range word.Analyze(w) {
		if c.Kind != word.Literal {
			return false
		}
	}
	return true
}

// assignmentPreamble serializes the snapshot as escaped assignments,
// sorted by name for a deterministic request line.
func assignmentPreamble(env *Context) (string, error) {
	if len(env.Vars) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(env.Vars))
	for name := range env.Vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for i, name := range names {
		if !validName(name) {
			return "", fmt.Errorf("invalid variable name %q", name)
		}
		val, _ := env.Lookup(name)
		quoted, err := syntax.Quote(val, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("quote value of %s: %w", name, err)
		}
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(name)
		sb.WriteString("=")
		sb.WriteString(quoted)
	}
	return sb.String(), nil
}

// validName reports whether name is a portable shell variable name.
// Anything else could escape assignment position and must not reach
// the request line.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// chooseDelimiter picks the first candidate absent from every context
// value and from the word itself. Values containing a newline cannot
// be framed line-per-field at all, and a value or word containing the
// session's end-of-reply marker would counterfeit the frame, so either
// exhausts the search.
func chooseDelimiter(env *Context, flat string, candidates []string) (string, bool) {
	if strings.Contains(flat, session.DoneMarker) {
		return "", false
	}
	for _, vals := range env.Vars {
		for _, v := range vals {
			if strings.Contains(v, "\n") || strings.Contains(v, session.DoneMarker) {
				return "", false
			}
		}
	}
next:
	for _, cand := range candidates {
		if strings.Contains(flat, cand) {
			continue
		}
		for _, vals := range env.Vars {
			for _, v := range vals {
				if strings.Contains(v, cand) {
					continue next
				}
			}
		}
		return cand, true
	}
	return "", false
}

// parseReply strips the reply to the lines between the delimiter pair;
// each line is one field.
func parseReply(reply, delim string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	start := slices.Index(lines, delim)
	if start < 0 {
		return nil, errors.New("missing opening delimiter")
	}
	rest := lines[start+1:]
	end := slices.Index(rest, delim)
	if end < 0 {
		return nil, errors.New("missing closing delimiter")
	}
	return rest[:end], nil
}
