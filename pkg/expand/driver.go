package expand

import (
	"context"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/sh-tools/shexpand/pkg/classify"
	"github.com/sh-tools/shexpand/pkg/session"
	"github.com/sh-tools/shexpand/pkg/word"
)

// ExpandCommand walks the command tree depth-first, left to right,
// replacing every expandable word with its literal fields. Structural
// nodes keep their shape; only words change. The first Reject
// construct or failed delegation aborts the walk with an *Error and no
// partial result. A nil session is allowed; Delegate-class words then
// fail with SubprocessFailure.
func ExpandCommand(ctx context.Context, f *syntax.File, env *Context, sess session.Session, opts Options) (*syntax.File, error) {
	d := &driver{ctx: ctx, env: env, sess: sess, opts: opts}
	for _, st := range f.Stmts {
		if err := d.stmt(st); err != nil {
			return nil, err
		}
	}
	return f, nil
}

type driver struct {
	ctx  context.Context
	env  *Context
	sess session.Session
	opts Options
}

func (d *driver) stmts(sts []*syntax.Stmt) error {
	for _, st := range sts {
		if err := d.stmt(st); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) stmt(st *syntax.Stmt) error {
	if st == nil {
		return nil
	}
	if st.Cmd != nil {
		if err := d.command(st.Cmd); err != nil {
			return err
		}
	}
	for _, r := range st.Redirs {
		if err := d.redirect(r); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) command(cmd syntax.Command) error {
	switch c := cmd.(type) {
	case *syntax.CallExpr:
		return d.callExpr(c)
	case *syntax.BinaryCmd:
		if err := d.stmt(c.X); err != nil {
			return err
		}
		return d.stmt(c.Y)
	case *syntax.Block:
		return d.stmts(c.Stmts)
	case *syntax.Subshell:
		return d.stmts(c.Stmts)
	case *syntax.IfClause:
		return d.ifClause(c)
	case *syntax.WhileClause:
		if err := d.stmts(c.Cond); err != nil {
			return err
		}
		return d.stmts(c.Do)
	case *syntax.ForClause:
		return d.forClause(c)
	case *syntax.CaseClause:
		return d.caseClause(c)
	case *syntax.FuncDecl:
		return d.stmt(c.Body)
	case *syntax.TimeClause:
		return d.stmt(c.Stmt)
	case *syntax.CoprocClause:
		return d.stmt(c.Stmt)
	case *syntax.TestClause:
		return d.testExpr(c.X)
	case *syntax.DeclClause:
		if len(c.Args) > 0 {
			return d.rejectAssign(c.Args[0])
		}
		return nil
	default:
		// Arithmetic and let clauses carry no plain words; they keep
		// their source form.
		return nil
	}
}

func (d *driver) callExpr(c *syntax.CallExpr) error {
	if len(c.Assigns) > 0 {
		return d.rejectAssign(c.Assigns[0])
	}
	args, err := d.wordList(c.Args)
	if err != nil {
		return err
	}
	c.Args = args
	return nil
}

// rejectAssign runs an assignment prefix through the policy table; an
// assignment word signals shared-state mutation and is never expanded.
func (d *driver) rejectAssign(a *syntax.Assign) error {
	c := word.Construct{Kind: word.Assign, Text: word.AssignText(a)}
	if classify.Classify(c) == classify.Reject {
		return &Error{Reason: Assignment, Node: a, Word: c.Text}
	}
	return nil
}

func (d *driver) ifClause(c *syntax.IfClause) error {
	if err := d.stmts(c.Cond); err != nil {
		return err
	}
	if err := d.stmts(c.Then); err != nil {
		return err
	}
	if c.Else != nil {
		return d.ifClause(c.Else)
	}
	return nil
}

func (d *driver) forClause(c *syntax.ForClause) error {
	if it, ok := c.Loop.(*syntax.WordIter); ok {
		items, err := d.wordList(it.Items)
		if err != nil {
			return err
		}
		it.Items = items
	}
	return d.stmts(c.Do)
}

func (d *driver) caseClause(c *syntax.CaseClause) error {
	if err := d.rewriteOne(c.Word); err != nil {
		return err
	}
	for _, item := range c.Items {
		for _, p := range item.Patterns {
			if err := d.pattern(p); err != nil {
				return err
			}
		}
		if err := d.stmts(item.Stmts); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) testExpr(x syntax.TestExpr) error {
	switch t := x.(type) {
	case *syntax.BinaryTest:
		if err := d.testExpr(t.X); err != nil {
			return err
		}
		switch t.Op {
		case syntax.TsMatch, syntax.TsNoMatch, syntax.TsReMatch:
			// The right operand is a match pattern; a live shell would
			// pathname-expand its metacharacters against the cwd.
			if w, ok := t.Y.(*syntax.Word); ok {
				return d.pattern(w)
			}
		}
		return d.testExpr(t.Y)
	case *syntax.UnaryTest:
		return d.testExpr(t.X)
	case *syntax.ParenTest:
		return d.testExpr(t.X)
	case *syntax.Word:
		return d.rewriteOne(t)
	default:
		return nil
	}
}

func (d *driver) redirect(r *syntax.Redirect) error {
	if r.Hdoc != nil {
		// The word of a heredoc redirect is the delimiter; the shell
		// applies only quote removal to it, never expansion.
		return d.heredoc(r)
	}
	return d.rewriteOne(r.Word)
}

// heredoc expands a heredoc body in place. The body behaves like a
// double-quoted string without the quotes: substitutions resolve, but
// there is no tilde expansion and no field splitting, and a backslash
// escapes only $, backquote and backslash. A quoted delimiter makes
// the body fully literal.
func (d *driver) heredoc(r *syntax.Redirect) error {
	if r.Hdoc == nil || hdocDelimQuoted(r.Word) {
		return nil
	}
	var sb strings.Builder
	for _, part := range r.Hdoc.Parts {
		if lit, ok := part.(*syntax.Lit); ok {
			sb.WriteString(unescapeHeredoc(lit.Value))
			continue
		}
		s, err := d.hdocPart(part)
		if err != nil {
			return err
		}
		sb.WriteString(s)
	}
	r.Hdoc.Parts = []syntax.WordPart{&syntax.Lit{Value: sb.String()}}
	return nil
}

// hdocPart resolves one substitution of a heredoc body to text.
func (d *driver) hdocPart(part syntax.WordPart) (string, error) {
	w := &syntax.Word{Parts: []syntax.WordPart{part}}
	cs := word.Analyze(w)
	switch classify.Word(cs) {
	case classify.Reject:
		return "", rejectError(w, cs)
	case classify.Inline:
		return InlineOne(w, d.env)
	default:
		fields, err := Delegate(d.ctx, w, d.env, d.sess, d.opts)
		if err != nil {
			return "", err
		}
		return strings.Join(fields, " "), nil
	}
}

// hdocDelimQuoted reports whether any part of a heredoc delimiter is
// quoted or escaped.
func hdocDelimQuoted(w *syntax.Word) bool {
	if w == nil {
		return true
	}
	for _, p := range w.Parts {
		lit, ok := p.(*syntax.Lit)
		if !ok || strings.Contains(lit.Value, "\\") {
			return true
		}
	}
	return false
}

// wordList expands each word of a list context and splices the fields
// back as separate literal words.
func (d *driver) wordList(ws []*syntax.Word) ([]*syntax.Word, error) {
	out := make([]*syntax.Word, 0, len(ws))
	for _, w := range ws {
		fields, err := d.expandWord(w)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			out = append(out, literalWord(f))
		}
	}
	return out, nil
}

func (d *driver) expandWord(w *syntax.Word) ([]string, error) {
	cs := word.Analyze(w)
	switch classify.Word(cs) {
	case classify.Reject:
		return nil, rejectError(w, cs)
	case classify.Inline:
		return Inline(w, d.env)
	default:
		return Delegate(d.ctx, w, d.env, d.sess, d.opts)
	}
}

// rewriteOne expands a word in a single-word position in place. Such
// positions are not field-split; a multi-field delegation result is
// folded back into one word.
func (d *driver) rewriteOne(w *syntax.Word) error {
	if w == nil {
		return nil
	}
	cs := word.Analyze(w)
	switch classify.Word(cs) {
	case classify.Reject:
		return rejectError(w, cs)
	case classify.Inline:
		s, err := InlineOne(w, d.env)
		if err != nil {
			return err
		}
		w.Parts = literalWord(s).Parts
		return nil
	default:
		fields, err := Delegate(d.ctx, w, d.env, d.sess, d.opts)
		if err != nil {
			return err
		}
		w.Parts = literalWord(strings.Join(fields, " ")).Parts
		return nil
	}
}

// pattern handles case patterns: their glob metacharacters are
// matching syntax, not pathname expansion, so Delegate-class patterns
// keep their source form. Reject constructs still abort the walk.
func (d *driver) pattern(w *syntax.Word) error {
	cs := word.Analyze(w)
	switch classify.Word(cs) {
	case classify.Reject:
		return rejectError(w, cs)
	case classify.Inline:
		s, err := InlineOne(w, d.env)
		if err != nil {
			return err
		}
		w.Parts = literalWord(s).Parts
		return nil
	default:
		return nil
	}
}

// rejectError maps the first Reject construct of a word to its reason.
func rejectError(w *syntax.Word, cs []word.Construct) error {
	for _, c := range cs {
		if classify.Classify(c) != classify.Reject {
			continue
		}
		reason := ProcessSubstitution
		switch c.Kind {
		case word.Tilde, word.TildeUser:
			reason = UnresolvedTilde
		case word.Assign:
			reason = Assignment
		}
		var node syntax.Node = w
		if c.Part != nil {
			node = c.Part
		}
		return &Error{Reason: reason, Node: node, Word: word.Flatten(w)}
	}
	return nil
}

// literalWord builds a literal word holding one expanded field. Fields
// containing shell-active characters come back quoted so the resulting
// tree prints as a valid script.
func literalWord(field string) *syntax.Word {
	switch {
	case field == "" || strings.ContainsAny(field, " \t\n'\"$`\\*?[](){};&|<>~#"):
		if !strings.Contains(field, "'") {
			return &syntax.Word{Parts: []syntax.WordPart{&syntax.SglQuoted{Value: field}}}
		}
		return &syntax.Word{Parts: []syntax.WordPart{&syntax.DblQuoted{
			Parts: []syntax.WordPart{&syntax.Lit{Value: escapeDouble(field)}},
		}}}
	default:
		return &syntax.Word{Parts: []syntax.WordPart{&syntax.Lit{Value: field}}}
	}
}

// escapeDouble neutralizes the characters that stay active inside
// double quotes.
func escapeDouble(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `$`, `\$`, "`", "\\`", `"`, `\"`)
	return r.Replace(s)
}
