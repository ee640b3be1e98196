package expand

import (
	"context"
	"strings"
	"testing"

	"mvdan.cc/sh/v3/syntax"

	"github.com/sh-tools/shexpand/pkg/word"
)

func parseScript(t *testing.T, src string) *syntax.File {
	t.Helper()
	f, err := syntax.NewParser().Parse(strings.NewReader(src), "")
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return f
}

func printScript(t *testing.T, f *syntax.File) string {
	t.Helper()
	var sb strings.Builder
	if err := syntax.NewPrinter().Print(&sb, f); err != nil {
		t.Fatalf("print: %v", err)
	}
	return sb.String()
}

func TestExpandCommand(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"literal only", "echo hello", "echo hello\n"},
		{"unquoted var splits into args", "echo $X", "echo a b\n"},
		{"quoted var stays one arg", `echo "$X"`, "echo 'a b'\n"},
		{"multi-value var", "echo $ARR", "echo a b\n"},
		{"empty var vanishes from args", "echo $E end", "echo end\n"},
		{"empty quoted word keeps its arg", `echo "" end`, "echo '' end\n"},
		{"default operator", "echo ${U:-def}", "echo def\n"},
		{"tilde", "echo ~/docs", "echo /home/u/docs\n"},
		{"pipeline", `echo $X | grep "$X"`, "echo a b | grep 'a b'\n"},
		{"and list", `echo $X && echo "$X"`, "echo a b && echo 'a b'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseScript(t, tt.src)
			out, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{})
			if err != nil {
				t.Fatalf("ExpandCommand(%q): %v", tt.src, err)
			}
			if got := printScript(t, out); got != tt.want {
				t.Errorf("ExpandCommand(%q) = %q, want %q", tt.src, got, tt.want)
			}
		})
	}
}

func TestExpandCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Reason
	}{
		{"process substitution", "echo <(ls)", ProcessSubstitution},
		{"assignment prefix", "FOO=bar cmd", Assignment},
		{"bare assignment", "FOO=bar", Assignment},
		{"declaration", "export FOO=bar", Assignment},
		{"tilde user", "echo ~foo", UnresolvedTilde},
		{"delegation without session", "echo $(date)", SubprocessFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseScript(t, tt.src)
			_, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{})
			if err == nil {
				t.Fatalf("ExpandCommand(%q) succeeded, want %v", tt.src, tt.want)
			}
			reason, ok := ReasonOf(err)
			if !ok || reason != tt.want {
				t.Errorf("ExpandCommand(%q) reason = %v (%v), want %v", tt.src, reason, err, tt.want)
			}
		})
	}
}

func TestExpandCommandFailFastOrder(t *testing.T) {
	// Words are visited left to right; the first failure wins.
	tests := []struct {
		name string
		src  string
		want Reason
	}{
		{"delegate before reject", "echo $(date) <(ls)", SubprocessFailure},
		{"reject before delegate", "echo <(ls) $(date)", ProcessSubstitution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseScript(t, tt.src)
			_, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{})
			reason, ok := ReasonOf(err)
			if !ok || reason != tt.want {
				t.Errorf("reason = %v (%v), want %v", reason, err, tt.want)
			}
		})
	}
}

func TestExpandCommandForLoop(t *testing.T) {
	f := parseScript(t, "for i in $X c; do true; done")
	if _, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	loop := f.Stmts[0].Cmd.(*syntax.ForClause).Loop.(*syntax.WordIter)
	got := make([]string, 0, len(loop.Items))
	for _, it := range loop.Items {
		got = append(got, word.Flatten(it))
	}
	if !equalFields(got, []string{"a", "b", "c"}) {
		t.Errorf("loop items = %q, want [a b c]", got)
	}
}

func TestExpandCommandCaseClause(t *testing.T) {
	f := parseScript(t, "case $X in a*) true ;; esac")
	if _, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	cc := f.Stmts[0].Cmd.(*syntax.CaseClause)
	// The selector is a single-word position: expanded, not split.
	if got := word.Flatten(cc.Word); got != "'a b'" {
		t.Errorf("selector = %q, want %q", got, "'a b'")
	}
	// Glob metacharacters in a pattern are matching syntax and keep
	// their source form.
	if got := word.Flatten(cc.Items[0].Patterns[0]); got != "a*" {
		t.Errorf("pattern = %q, want %q", got, "a*")
	}
}

func TestExpandCommandRedirect(t *testing.T) {
	env := &Context{Vars: map[string][]string{"F": {"out.txt"}}}
	f := parseScript(t, "cmd >$F")
	if _, err := ExpandCommand(context.Background(), f, env, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := word.Flatten(f.Stmts[0].Redirs[0].Word); got != "out.txt" {
		t.Errorf("redirect target = %q, want %q", got, "out.txt")
	}
}

func TestExpandCommandHeredoc(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		// Substitutions resolve, spliced in without requoting.
		{"substitution", "cat <<EOF\nvalue: $X\nEOF\n", "cat <<EOF\nvalue: a b\nEOF\n"},
		// No tilde expansion, and a backslash before an ordinary
		// character stays literal.
		{"literal text untouched", "cat <<EOF\n~/docs a\\b and $X\nEOF\n", "cat <<EOF\n~/docs a\\b and a b\nEOF\n"},
		// Backslash does escape $ in a heredoc body.
		{"escaped dollar", "cat <<EOF\ncost \\$5\nEOF\n", "cat <<EOF\ncost $5\nEOF\n"},
		// A quoted delimiter suppresses all expansion, in the body and
		// in the printed delimiter itself.
		{"quoted delimiter", "cat <<'EOF'\n$X ~\nEOF\n", "cat <<'EOF'\n$X ~\nEOF\n"},
		{"double-quoted delimiter", "cat <<\"EOF\"\n$X\nEOF\n", "cat <<\"EOF\"\n$X\nEOF\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := parseScript(t, tt.src)
			if _, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{}); err != nil {
				t.Fatal(err)
			}
			if got := printScript(t, f); got != tt.want {
				t.Errorf("heredoc output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExpandCommandTestClause(t *testing.T) {
	f := parseScript(t, `[[ $X == "a b" ]]`)
	if _, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	bt := f.Stmts[0].Cmd.(*syntax.TestClause).X.(*syntax.BinaryTest)
	if got := word.Flatten(bt.X.(*syntax.Word)); got != "'a b'" {
		t.Errorf("test operand = %q, want %q", got, "'a b'")
	}
}

func TestExpandCommandTestClausePattern(t *testing.T) {
	// The right operand of == is a match pattern: its glob
	// metacharacters keep their source form instead of being
	// pathname-expanded, so no session is needed.
	f := parseScript(t, "[[ $X == a* ]]")
	if _, err := ExpandCommand(context.Background(), f, testEnv(), nil, Options{}); err != nil {
		t.Fatal(err)
	}
	bt := f.Stmts[0].Cmd.(*syntax.TestClause).X.(*syntax.BinaryTest)
	if got := word.Flatten(bt.X.(*syntax.Word)); got != "'a b'" {
		t.Errorf("left operand = %q, want %q", got, "'a b'")
	}
	if got := word.Flatten(bt.Y.(*syntax.Word)); got != "a*" {
		t.Errorf("pattern operand = %q, want %q", got, "a*")
	}
}

func TestExpandCommandDelegates(t *testing.T) {
	sess := &fakeSession{reply: framed("Linux")}
	f := parseScript(t, "echo $(uname)")
	if _, err := ExpandCommand(context.Background(), f, testEnv(), sess, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := printScript(t, f); got != "echo Linux\n" {
		t.Errorf("output = %q, want %q", got, "echo Linux\n")
	}
	if sess.calls != 1 {
		t.Errorf("session consulted %d times, want 1", sess.calls)
	}
}

func TestExpandCommandDelegatedGlobSplices(t *testing.T) {
	sess := &fakeSession{reply: framed("a.c", "b.c")}
	f := parseScript(t, "ls *.c")
	if _, err := ExpandCommand(context.Background(), f, testEnv(), sess, Options{}); err != nil {
		t.Fatal(err)
	}
	if got := printScript(t, f); got != "ls a.c b.c\n" {
		t.Errorf("output = %q, want %q", got, "ls a.c b.c\n")
	}
}

func TestExpandCommandIdempotent(t *testing.T) {
	env := testEnv()
	first := parseScript(t, `echo "$X" $ARR`)
	if _, err := ExpandCommand(context.Background(), first, env, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	once := printScript(t, first)

	second := parseScript(t, once)
	if _, err := ExpandCommand(context.Background(), second, env, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if twice := printScript(t, second); twice != once {
		t.Errorf("second expansion changed output: %q then %q", once, twice)
	}
}

func TestExpandCommandKeepsContext(t *testing.T) {
	env := testEnv()
	f := parseScript(t, `echo $X "$ARR" ${U:-d}`)
	if _, err := ExpandCommand(context.Background(), f, env, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	want := testEnv()
	if len(env.Vars) != len(want.Vars) {
		t.Fatalf("context gained or lost variables: %v", env.Vars)
	}
	for name, vals := range want.Vars {
		if !equalFields(env.Vars[name], vals) {
			t.Errorf("context value of %s changed: %q", name, env.Vars[name])
		}
	}
}
