// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"

	"github.com/go-perfmon/perfmon/perfmon"
	"github.com/spf13/cobra"
)

var errNotSupported = errors.New("performance monitoring is not supported on this system")

// probeHints are the usual reasons a system cannot count events.
var probeHints = []string{
	"running in a container without CAP_PERFMON or CAP_SYS_ADMIN",
	"/proc/sys/kernel/perf_event_paranoid is too restrictive (try --exclude-kernel)",
	"hardware performance counters are not available",
}

func newProbeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Report which kinds this system can count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			supported := perfmon.IsSupported()
			res := perfmon.Probe(g.sessionOptions()...)
			if err := g.renderer(cmd.OutOrStdout()).probe(supported, res); err != nil {
				return err
			}
			if !supported {
				return errNotSupported
			}
			return nil
		},
	}
}

func newKindsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the kinds of events perfmon counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := g.kindList
			if ks == nil {
				ks = perfmon.Kinds()
			}
			return g.renderer(cmd.OutOrStdout()).kinds(ks)
		},
	}
}
