// Package word models a parsed shell word as an ordered sequence of
// constructs, each carrying its quoting context. Words are produced by
// the mvdan.cc/sh parser and consumed read-only; analysis never mutates
// the syntax tree.
package word

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Kind identifies the construct variants that can appear inside a word.
type Kind int

const (
	// Literal is plain text with no expansion behavior.
	Literal Kind = iota
	// Tilde is a bare, word-initial ~ (optionally followed by a path).
	Tilde
	// TildeUser is a word-initial ~name referencing a user's home.
	TildeUser
	// Param is a simple parameter expansion: $x or ${x}.
	Param
	// ParamOp is a parameter expansion with a default, alternate,
	// error-if-unset or length operator: ${x:-d}, ${x:+a}, ${x?}, ${#x}.
	ParamOp
	// Arith is an arithmetic expansion: $((...)).
	Arith
	// CmdSubst is a command substitution: $(...) or backquotes.
	CmdSubst
	// ProcSubst is a process substitution: <(...) or >(...).
	ProcSubst
	// Glob is literal text containing unescaped glob metacharacters.
	Glob
	// Assign marks a name=value command prefix.
	Assign
	// Other covers constructs the analyzer does not model, such as
	// extended globs or pattern-stripping parameter operators.
	Other
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Tilde:
		return "tilde"
	case TildeUser:
		return "tilde-user"
	case Param:
		return "param"
	case ParamOp:
		return "param-op"
	case Arith:
		return "arith"
	case CmdSubst:
		return "cmd-subst"
	case ProcSubst:
		return "proc-subst"
	case Glob:
		return "glob"
	case Assign:
		return "assign"
	default:
		return "other"
	}
}

// Quoting is the quoting context a construct appears in.
type Quoting int

const (
	Unquoted Quoting = iota
	SingleQuoted
	DoubleQuoted
)

// String returns the string representation of a Quoting.
func (q Quoting) String() string {
	switch q {
	case SingleQuoted:
		return "single-quoted"
	case DoubleQuoted:
		return "double-quoted"
	default:
		return "unquoted"
	}
}

// Construct is one analyzed sub-expansion of a word.
type Construct struct {
	Kind    Kind
	Quoting Quoting
	Text    string          // flat source text of the construct
	Part    syntax.WordPart // originating node; nil for Assign
}

// Analyze flattens a word into its ordered construct sequence,
// recursing into double quotes. Character order is preserved:
// constructs appear exactly in source order and never overlap.
func Analyze(w *syntax.Word) []Construct {
	if w == nil {
		return nil
	}
	var cs []Construct
	for i, part := range w.Parts {
		cs = analyzePart(cs, part, Unquoted, i == 0)
	}
	return cs
}

func analyzePart(cs []Construct, part syntax.WordPart, q Quoting, wordInitial bool) []Construct {
	switch p := part.(type) {
	case *syntax.Lit:
		return analyzeLit(cs, p, q, wordInitial)
	case *syntax.SglQuoted:
		return append(cs, Construct{Kind: Literal, Quoting: SingleQuoted, Text: p.Value, Part: p})
	case *syntax.DblQuoted:
		if len(p.Parts) == 0 {
			// An empty "" still contributes a field.
			return append(cs, Construct{Kind: Literal, Quoting: DoubleQuoted, Part: p})
		}
		for _, sub := range p.Parts {
			cs = analyzePart(cs, sub, DoubleQuoted, false)
		}
		return cs
	case *syntax.ParamExp:
		return append(cs, Construct{Kind: paramKind(p), Quoting: q, Text: partText(p), Part: p})
	case *syntax.ArithmExp:
		return append(cs, Construct{Kind: Arith, Quoting: q, Text: partText(p), Part: p})
	case *syntax.CmdSubst:
		return append(cs, Construct{Kind: CmdSubst, Quoting: q, Text: partText(p), Part: p})
	case *syntax.ProcSubst:
		return append(cs, Construct{Kind: ProcSubst, Quoting: q, Text: partText(p), Part: p})
	default:
		return append(cs, Construct{Kind: Other, Quoting: q, Text: partText(part), Part: part})
	}
}

// analyzeLit splits a word-initial tilde prefix off an unquoted literal
// and marks literals containing glob metacharacters.
func analyzeLit(cs []Construct, p *syntax.Lit, q Quoting, wordInitial bool) []Construct {
	value := p.Value
	if q == Unquoted && wordInitial && strings.HasPrefix(value, "~") {
		name, rest := splitTilde(value)
		kind := Tilde
		if name != "~" {
			kind = TildeUser
		}
		cs = append(cs, Construct{Kind: kind, Quoting: q, Text: name, Part: p})
		if rest == "" {
			return cs
		}
		value = rest
	}
	kind := Literal
	if q != SingleQuoted && strings.ContainsAny(value, "*?[") {
		kind = Glob
	}
	return append(cs, Construct{Kind: kind, Quoting: q, Text: value, Part: p})
}

// splitTilde divides "~user/rest" into its tilde prefix and remainder.
func splitTilde(value string) (prefix, rest string) {
	if i := strings.IndexByte(value, '/'); i >= 0 {
		return value[:i], value[i:]
	}
	return value, ""
}

// paramKind distinguishes the parameter expansion forms this system
// models. Operators outside the default/alternate/error/length set
// (pattern stripping, substring, replacement, indirection) map to
// Other, which a live shell resolves exactly.
func paramKind(p *syntax.ParamExp) Kind {
	if p.Excl || p.Width || p.Index != nil || p.Slice != nil || p.Repl != nil || p.Names != 0 {
		return Other
	}
	if p.Length {
		return ParamOp
	}
	if p.Exp == nil {
		return Param
	}
	switch p.Exp.Op {
	case syntax.DefaultUnset, syntax.DefaultUnsetOrNull,
		syntax.AlternateUnset, syntax.AlternateUnsetOrNull,
		syntax.ErrorUnset, syntax.ErrorUnsetOrNull:
		return ParamOp
	default:
		return Other
	}
}

// Flatten returns the source text of a word.
func Flatten(w *syntax.Word) string {
	if w == nil {
		return ""
	}
	var sb strings.Builder
	printer := syntax.NewPrinter()
	if err := printer.Print(&sb, w); err != nil {
		return ""
	}
	return sb.String()
}

// partText returns the source text of a single word part.
func partText(part syntax.WordPart) string {
	return Flatten(&syntax.Word{Parts: []syntax.WordPart{part}})
}

// AssignText returns the source form of an assignment prefix.
func AssignText(a *syntax.Assign) string {
	if a == nil || a.Name == nil {
		return ""
	}
	if a.Naked {
		return a.Name.Value
	}
	return a.Name.Value + "=" + Flatten(a.Value)
}
