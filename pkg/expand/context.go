// Package expand resolves word-level shell constructs against a static
// variable snapshot, delegating to a live shell session for constructs
// that need one and refusing the ones that are unsafe to resolve.
package expand

import "strings"

// defaultIFS is the POSIX default field separator set.
const defaultIFS = " \t\n"

// Context is an immutable per-call snapshot of variable and option
// state. This package never mutates it.
type Context struct {
	// Vars maps a variable name to its ordered values. A multi-value
	// entry behaves like the scalar join of its values on the first
	// whitespace separator.
	Vars map[string][]string

	// IFS holds the field separator characters; empty selects the
	// default of space, tab and newline.
	IFS string

	// NounsetError makes referencing an unset variable a hard error,
	// mirroring `set -u`.
	NounsetError bool
}

// Separators returns the active field separator set.
func (c *Context) Separators() string {
	if c.IFS == "" {
		return defaultIFS
	}
	return c.IFS
}

// Lookup returns the scalar value of name and whether it is set.
func (c *Context) Lookup(name string) (string, bool) {
	vals, ok := c.Vars[name]
	if !ok {
		return "", false
	}
	return strings.Join(vals, c.joinSeparator()), true
}

// joinSeparator is the character multi-value variables fold on: the
// first whitespace separator, or a space when the set has none.
func (c *Context) joinSeparator() string {
	for _, r := range c.Separators() {
		if isIFSWhitespace(r) {
			return string(r)
		}
	}
	return " "
}

func isIFSWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}
