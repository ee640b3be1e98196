// Package main provides the shexpand CLI: it expands the words of a
// shell script against a variable snapshot without running the script,
// consulting a live bash for the constructs that need one.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/sh-tools/shexpand/internal/config"
	"github.com/sh-tools/shexpand/pkg/expand"
	"github.com/sh-tools/shexpand/pkg/session"
)

func main() {
	cmd := &cli.Command{
		Name:      "shexpand",
		Usage:     "expand shell script words against a variable snapshot",
		ArgsUsage: "[script]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "vars",
				Usage: "YAML file with variables and expansion options",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 5 * time.Second,
				Usage: "overall expansion deadline",
			},
			&cli.BoolFlag{
				Name:  "no-delegate",
				Usage: "fail instead of consulting a live shell",
			},
		},
		Action: run,
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "shexpand:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	var src io.Reader = os.Stdin
	name := "stdin"
	if path := cmd.Args().First(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
		name = path
	}
	file, err := syntax.NewParser().Parse(src, name)
	if err != nil {
		return fmt.Errorf("parse script: %w", err)
	}

	cfg := &config.Config{}
	if path := cmd.String("vars"); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return err
		}
	}
	env := &expand.Context{
		Vars:         cfg.Vars,
		IFS:          cfg.IFS,
		NounsetError: cfg.NounsetError,
	}
	opts := expand.Options{TriggerChars: cfg.TriggerChars}

	var sess session.Session
	if !cmd.Bool("no-delegate") {
		bash := session.NewBashSession(nil)
		if err := bash.Open(); err != nil {
			return err
		}
		defer bash.Close()
		sess = bash
	}

	runCtx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()
	expanded, err := expand.ExpandCommand(runCtx, file, env, sess, opts)
	if err != nil {
		return err
	}
	return syntax.NewPrinter().Print(os.Stdout, expanded)
}
