package expand

import (
	"errors"
	"strconv"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/sh-tools/shexpand/pkg/word"
)

// errNoSession reports a construct that only a live shell can resolve.
var errNoSession = errors.New("construct requires a live shell session")

// segment is a resolved run of output text. Quoted segments are immune
// to field splitting and glob expansion.
type segment struct {
	text   string
	quoted bool
}

// Inline resolves every construct of w against the snapshot without
// touching any subprocess, the filesystem or the network, then splits
// the unquoted parts into fields. Constructs classified Delegate or
// Reject yield an *Error. Expanding the same word against the same
// snapshot always yields the same result.
func Inline(w *syntax.Word, env *Context) ([]string, error) {
	segs, err := inlineSegments(w, env)
	if err != nil {
		return nil, err
	}
	return splitFields(segs, env.Separators()), nil
}

// InlineOne is Inline without field splitting, for word positions that
// POSIX does not split (redirection targets, case selectors).
func InlineOne(w *syntax.Word, env *Context) (string, error) {
	segs, err := inlineSegments(w, env)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.text)
	}
	return sb.String(), nil
}

func inlineSegments(w *syntax.Word, env *Context) ([]segment, error) {
	var segs []segment
	for _, c := range word.Analyze(w) {
		out, err := resolveConstruct(c, env, w)
		if err != nil {
			return nil, err
		}
		segs = append(segs, out...)
	}
	return segs, nil
}

func resolveConstruct(c word.Construct, env *Context, w *syntax.Word) ([]segment, error) {
	switch c.Kind {
	case word.Literal, word.Glob:
		if c.Quoting == word.Unquoted {
			if c.Kind == word.Glob {
				// Unquoted globs need filesystem state; the driver
				// routes them to the delegating expander, never here.
				return nil, needsSession(c, w)
			}
			return unescapeLiteral(c.Text), nil
		}
		text := c.Text
		if c.Quoting == word.DoubleQuoted {
			text = unescapeDoubleQuoted(text)
		}
		return []segment{{text: text, quoted: true}}, nil
	case word.Tilde:
		home, ok := env.Lookup("HOME")
		if !ok {
			return nil, &Error{Reason: UnresolvedTilde, Node: c.Part, Word: word.Flatten(w)}
		}
		// Tilde results are never field-split.
		return []segment{{text: home, quoted: true}}, nil
	case word.TildeUser:
		// No user database to consult for ~name.
		return nil, &Error{Reason: UnresolvedTilde, Node: c.Part, Word: word.Flatten(w)}
	case word.Param, word.ParamOp:
		return resolveParam(c, env, w)
	case word.ProcSubst:
		return nil, &Error{Reason: ProcessSubstitution, Node: c.Part, Word: word.Flatten(w)}
	case word.Assign:
		return nil, &Error{Reason: Assignment, Node: c.Part, Word: word.Flatten(w)}
	default:
		return nil, needsSession(c, w)
	}
}

func needsSession(c word.Construct, w *syntax.Word) error {
	return &Error{Reason: SubprocessFailure, Node: c.Part, Word: word.Flatten(w), Err: errNoSession}
}

func resolveParam(c word.Construct, env *Context, w *syntax.Word) ([]segment, error) {
	pe, ok := c.Part.(*syntax.ParamExp)
	if !ok || pe.Param == nil {
		return nil, needsSession(c, w)
	}
	name := pe.Param.Value
	val, set := env.Lookup(name)
	quoted := c.Quoting != word.Unquoted

	if pe.Length {
		if !set && env.NounsetError {
			return nil, unsetErr(pe, w, name)
		}
		return []segment{{text: strconv.Itoa(len(val)), quoted: quoted}}, nil
	}
	if pe.Exp != nil {
		return resolveParamOp(pe, c, env, w, name, val, set)
	}
	if !set {
		if env.NounsetError {
			return nil, unsetErr(pe, w, name)
		}
		return nil, nil
	}
	return []segment{{text: val, quoted: quoted}}, nil
}

func resolveParamOp(pe *syntax.ParamExp, c word.Construct, env *Context, w *syntax.Word, name, val string, set bool) ([]segment, error) {
	quoted := c.Quoting != word.Unquoted
	value := []segment{{text: val, quoted: quoted}}
	operand := func() ([]segment, error) {
		return operandSegments(pe.Exp.Word, c.Quoting, env)
	}

	switch pe.Exp.Op {
	case syntax.DefaultUnset:
		if set {
			return value, nil
		}
		return operand()
	case syntax.DefaultUnsetOrNull:
		if set && val != "" {
			return value, nil
		}
		return operand()
	case syntax.AlternateUnset:
		if set {
			return operand()
		}
		return nil, nil
	case syntax.AlternateUnsetOrNull:
		if set && val != "" {
			return operand()
		}
		return nil, nil
	case syntax.ErrorUnset:
		if !set {
			return nil, unsetErr(pe, w, name)
		}
		return value, nil
	case syntax.ErrorUnsetOrNull:
		if !set || val == "" {
			return nil, unsetErr(pe, w, name)
		}
		return value, nil
	default:
		return nil, needsSession(c, w)
	}
}

// operandSegments resolves a default/alternate operand word. The
// operand inherits the surrounding quoting: inside "${x:-a b}" the
// default is not split.
func operandSegments(opWord *syntax.Word, q word.Quoting, env *Context) ([]segment, error) {
	if opWord == nil {
		return nil, nil
	}
	var segs []segment
	for _, c := range word.Analyze(opWord) {
		if q != word.Unquoted && c.Quoting == word.Unquoted {
			c.Quoting = q
		}
		out, err := resolveConstruct(c, env, opWord)
		if err != nil {
			return nil, err
		}
		segs = append(segs, out...)
	}
	return segs, nil
}

func unsetErr(pe *syntax.ParamExp, w *syntax.Word, name string) error {
	return &Error{Reason: UnsetVariableError, Node: pe, Word: word.Flatten(w),
		Err: errors.New(name + ": unbound variable")}
}

// unescapeLiteral resolves backslash escapes in an unquoted literal:
// the escaped character becomes a quoted single-character segment so
// field splitting cannot break on it.
func unescapeLiteral(s string) []segment {
	if !strings.Contains(s, "\\") {
		return []segment{{text: s}}
	}
	var segs []segment
	var cur strings.Builder
	esc := false
	for _, r := range s {
		if esc {
			if cur.Len() > 0 {
				segs = append(segs, segment{text: cur.String()})
				cur.Reset()
			}
			segs = append(segs, segment{text: string(r), quoted: true})
			esc = false
			continue
		}
		if r == '\\' {
			esc = true
			continue
		}
		cur.WriteRune(r)
	}
	if esc {
		cur.WriteByte('\\') // trailing backslash stays literal
	}
	if cur.Len() > 0 {
		segs = append(segs, segment{text: cur.String()})
	}
	return segs
}

// unescapeDoubleQuoted resolves the escapes that stay active inside
// double quotes; any other backslash is literal there.
func unescapeDoubleQuoted(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	esc := false
	for _, r := range s {
		if esc {
			switch r {
			case '$', '`', '"', '\\':
				sb.WriteRune(r)
			default:
				sb.WriteByte('\\')
				sb.WriteRune(r)
			}
			esc = false
			continue
		}
		if r == '\\' {
			esc = true
			continue
		}
		sb.WriteRune(r)
	}
	if esc {
		sb.WriteByte('\\')
	}
	return sb.String()
}

// unescapeHeredoc resolves the escapes active in an unquoted-delimiter
// heredoc body: backslash before $, backquote or backslash, plus
// backslash-newline as a line continuation. Every other backslash is
// literal.
func unescapeHeredoc(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var sb strings.Builder
	esc := false
	for _, r := range s {
		if esc {
			switch r {
			case '$', '`', '\\':
				sb.WriteRune(r)
			case '\n':
				// line continuation
			default:
				sb.WriteByte('\\')
				sb.WriteRune(r)
			}
			esc = false
			continue
		}
		if r == '\\' {
			esc = true
			continue
		}
		sb.WriteRune(r)
	}
	if esc {
		sb.WriteByte('\\')
	}
	return sb.String()
}

// splitFields applies POSIX field splitting to the unquoted segments:
// runs of whitespace separators collapse, a non-whitespace separator
// delimits a field and absorbs adjacent whitespace, and leading or
// trailing whitespace produces no field. Quoted segments always land
// in exactly one field.
func splitFields(segs []segment, ifs string) []string {
	var fields []string
	var cur strings.Builder
	open := false      // a field is in progress, possibly empty
	pendingWS := false // whitespace separators seen since the field opened

	emit := func() {
		fields = append(fields, cur.String())
		cur.Reset()
		open = false
		pendingWS = false
	}
	content := func(s string) {
		if pendingWS && open {
			emit()
		}
		pendingWS = false
		cur.WriteString(s)
		open = true
	}

	for _, seg := range segs {
		if seg.quoted {
			content(seg.text)
			continue
		}
		for _, r := range seg.text {
			switch {
			case !strings.ContainsRune(ifs, r):
				content(string(r))
			case isIFSWhitespace(r):
				if open {
					pendingWS = true
				}
			default:
				// Non-whitespace separator: delimits the field before
				// it, even an empty one.
				if open {
					emit()
				} else {
					fields = append(fields, "")
				}
			}
		}
	}
	if open {
		emit()
	}
	return fields
}
