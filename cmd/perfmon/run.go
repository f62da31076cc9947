// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/go-perfmon/perfmon/perfmon"
	"github.com/spf13/cobra"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Count events in a command and its children",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, g, args)
		},
	}
}

func runCommand(cmd *cobra.Command, g *globalFlags, args []string) error {
	s := perfmon.Open(g.sessionOptions()...)
	defer s.Close()

	child := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()

	// The child inherits the counters when it forks from this thread.
	if err := s.Start(); err != nil {
		return err
	}
	runErr := child.Run()
	snap, err := s.Stop()
	if err != nil {
		return err
	}
	if _, ok := runErr.(*exec.ExitError); runErr != nil && !ok {
		// The command never started.
		return runErr
	}

	title := fmt.Sprintf("Performance counter stats for '%s'", strings.Join(args, " "))
	if err := g.renderer(cmd.ErrOrStderr()).snapshot(title, snap, s.Enabled); err != nil {
		return err
	}
	return runErr
}
