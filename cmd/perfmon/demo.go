// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/go-perfmon/perfmon/perfmon"
	"github.com/spf13/cobra"
)

const (
	flagSizeName   = "size"
	flagRepeatName = "repeat"
)

type demoFlags struct {
	size   int
	repeat int
}

func newDemoCmd(g *globalFlags) *cobra.Command {
	d := &demoFlags{}
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Measure a matrix multiplication",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if d.size < 1 {
				return fmt.Errorf("--%s must be positive", flagSizeName)
			}
			if d.repeat < 1 {
				return fmt.Errorf("--%s must be positive", flagRepeatName)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.OutOrStdout(), g, d)
		},
	}
	cmd.Flags().IntVar(&d.size, flagSizeName, 500, "matrix dimension")
	cmd.Flags().IntVar(&d.repeat, flagRepeatName, 3, "number of measurements of growing size")
	return cmd
}

var matrixSink float64

// matrixMultiply multiplies two size×size matrices and returns the sum of the
// product's elements.
func matrixMultiply(size int) float64 {
	a := make([][]float64, size)
	b := make([][]float64, size)
	c := make([][]float64, size)
	for i := range size {
		a[i] = make([]float64, size)
		b[i] = make([]float64, size)
		c[i] = make([]float64, size)
		for j := range size {
			a[i][j] = float64(i + j)
			b[i][j] = float64(i - j)
		}
	}

	for i := range size {
		for j := range size {
			for k := range size {
				c[i][j] += a[i][k] * b[k][j]
			}
		}
	}

	var sum float64
	for i := range size {
		for j := range size {
			sum += c[i][j]
		}
	}
	return sum
}

// measure counts one call of matrixMultiply(size).
func measure(s *perfmon.Session, size int) (perfmon.Snapshot, error) {
	if err := s.Start(); err != nil {
		return perfmon.Snapshot{}, err
	}
	matrixSink = matrixMultiply(size)
	return s.Stop()
}

func runDemo(w io.Writer, g *globalFlags, d *demoFlags) error {
	if !perfmon.IsSupported() {
		return errNotSupported
	}
	r := g.renderer(w)
	s := perfmon.Open(g.sessionOptions()...)
	defer s.Close()

	// A single measurement.
	snap, err := measure(s, d.size)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Basic monitoring: matrix %dx%d", d.size, d.size)
	if err := r.snapshot(title, snap, s.Enabled); err != nil {
		return err
	}

	// The same session measures workloads of growing size.
	var rows []labeledSnapshot
	for i := 1; i <= d.repeat; i++ {
		n := max(1, d.size*2*i/5)
		snap, err := measure(s, n)
		if err != nil {
			return err
		}
		rows = append(rows, labeledSnapshot{fmt.Sprintf("%dx%d", n, n), snap})
	}
	if err := r.compare("Multiple measurements", rows); err != nil {
		return err
	}

	// Only the core counters.
	for _, k := range perfmon.Kinds() {
		if k != perfmon.Cycles && k != perfmon.Instructions {
			s.Disable(k)
		}
	}
	snap, err = measure(s, d.size)
	if err != nil {
		return err
	}
	title = fmt.Sprintf("Selective counters: matrix %dx%d", d.size, d.size)
	return r.snapshot(title, snap, s.Enabled)
}
