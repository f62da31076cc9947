// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command perfmon counts hardware and software performance events.
//
// Usage:
//
//	perfmon run [flags] -- command [args...]
//	perfmon demo [--size N] [--repeat N]
//	perfmon probe
//	perfmon kinds
//
// "run" counts events in a command and every process it starts and prints
// the counts to stderr when the command exits. "demo" measures a matrix
// multiplication in a few different ways. "probe" reports which events this
// system can count, and exits with status 1 if it can count none.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/go-perfmon/perfmon/perfmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	flagFormatName        = "format"
	flagKindsName         = "kinds"
	flagExcludeKernelName = "exclude-kernel"
	flagVerboseName       = "verbose"
)

// globalFlags holds the flags shared by every subcommand.
type globalFlags struct {
	format        string
	kinds         string
	excludeKernel bool
	verbose       bool

	// Set by validate.
	log      *logrus.Logger
	kindList []perfmon.Kind
}

func (g *globalFlags) validate(cmd *cobra.Command) error {
	if !validFormat(g.format) {
		return fmt.Errorf("invalid format %q, valid options are: %s", g.format, strings.Join(formatOptions, ", "))
	}
	if g.kinds != "" {
		ks, err := perfmon.ParseKinds(g.kinds)
		if err != nil {
			return err
		}
		if len(ks) == 0 {
			return fmt.Errorf("--%s lists no kinds", flagKindsName)
		}
		g.kindList = ks
	}

	g.log = logrus.New()
	g.log.SetOutput(cmd.ErrOrStderr())
	g.log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	g.log.SetLevel(logrus.WarnLevel)
	if g.verbose {
		g.log.SetLevel(logrus.DebugLevel)
	}
	return nil
}

func (g *globalFlags) sessionOptions() []perfmon.Option {
	opts := []perfmon.Option{perfmon.WithLogger(g.log)}
	if g.excludeKernel {
		opts = append(opts, perfmon.WithExcludeKernel())
	}
	if g.kindList != nil {
		opts = append(opts, perfmon.WithKinds(g.kindList...))
	}
	return opts
}

func (g *globalFlags) renderer(w io.Writer) *renderer {
	return &renderer{format: g.format, w: w}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "perfmon",
		Short:         "Count hardware and software performance events",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.validate(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.format, flagFormatName, formatTable, "output format: "+strings.Join(formatOptions, ", "))
	pf.StringVar(&g.kinds, flagKindsName, "", "comma-separated kinds to count (default all)")
	pf.BoolVar(&g.excludeKernel, flagExcludeKernelName, false, "count user-space events only")
	pf.BoolVarP(&g.verbose, flagVerboseName, "v", false, "log counter diagnostics")

	root.AddCommand(
		newRunCmd(g),
		newDemoCmd(g),
		newProbeCmd(g),
		newKindsCmd(g),
	)
	return root
}

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() > 0 {
		os.Exit(exitErr.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
