package classify

import (
	"testing"

	"github.com/sh-tools/shexpand/pkg/word"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		c    word.Construct
		want Class
	}{
		{"literal unquoted", word.Construct{Kind: word.Literal}, Inline},
		{"literal quoted", word.Construct{Kind: word.Literal, Quoting: word.SingleQuoted}, Inline},
		{"bare tilde", word.Construct{Kind: word.Tilde}, Inline},
		{"quoted tilde", word.Construct{Kind: word.Tilde, Quoting: word.DoubleQuoted}, Reject},
		{"tilde user", word.Construct{Kind: word.TildeUser}, Reject},
		{"simple param", word.Construct{Kind: word.Param}, Inline},
		{"quoted param", word.Construct{Kind: word.Param, Quoting: word.DoubleQuoted}, Inline},
		{"param operator", word.Construct{Kind: word.ParamOp}, Inline},
		{"arithmetic", word.Construct{Kind: word.Arith}, Delegate},
		{"quoted arithmetic", word.Construct{Kind: word.Arith, Quoting: word.DoubleQuoted}, Delegate},
		{"command substitution", word.Construct{Kind: word.CmdSubst}, Delegate},
		{"quoted command substitution", word.Construct{Kind: word.CmdSubst, Quoting: word.DoubleQuoted}, Delegate},
		{"process substitution", word.Construct{Kind: word.ProcSubst}, Reject},
		{"glob unquoted", word.Construct{Kind: word.Glob}, Delegate},
		{"glob quoted", word.Construct{Kind: word.Glob, Quoting: word.DoubleQuoted}, Inline},
		{"assignment", word.Construct{Kind: word.Assign}, Reject},
		{"unmodeled construct", word.Construct{Kind: word.Other}, Delegate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.c); got != tt.want {
				t.Errorf("Classify(%v, %v) = %v, want %v", tt.c.Kind, tt.c.Quoting, got, tt.want)
			}
			// Classification is deterministic.
			if again := Classify(tt.c); again != tt.want {
				t.Errorf("repeated Classify(%v) = %v, want %v", tt.c.Kind, again, tt.want)
			}
		})
	}
}

func TestWord(t *testing.T) {
	tests := []struct {
		name string
		cs   []word.Construct
		want Class
	}{
		{"empty", nil, Inline},
		{"all inline", []word.Construct{{Kind: word.Literal}, {Kind: word.Param}}, Inline},
		{"delegate wins over inline", []word.Construct{{Kind: word.Literal}, {Kind: word.CmdSubst}}, Delegate},
		{"reject wins over delegate", []word.Construct{{Kind: word.CmdSubst}, {Kind: word.ProcSubst}}, Reject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Word(tt.cs); got != tt.want {
				t.Errorf("Word() = %v, want %v", got, tt.want)
			}
		})
	}
}
