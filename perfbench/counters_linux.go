// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfbench

import (
	"fmt"
	"sync"
	"testing"

	"github.com/go-perfmon/perfmon/perfmon"
)

var defaultKinds = []perfmon.Kind{
	perfmon.Cycles,
	perfmon.Instructions,
	perfmon.CacheMisses,
	perfmon.CacheReferences,
}

const ipcUnit = "insn-per-cycle"

type countersOS struct {
	b  testingB
	bN int

	s     *perfmon.Session
	avail [perfmon.NumKinds]bool

	// totals accumulates the counts of every completed interval since the
	// last reset.
	totals [perfmon.NumKinds]uint64
}

var printUnits = sync.OnceFunc(func() {
	// Print unit metadata.
	for _, k := range defaultKinds {
		fmt.Printf("Unit %s/op better=lower\n", k)
	}
	fmt.Printf("Unit %s better=higher\n", ipcUnit)
	fmt.Printf("\n")
})

// testingB is the *testing.B interface needed by Counters. Used for testing.
type testingB interface {
	ReportMetric(n float64, unit string)
	Logf(format string, args ...any)
	Cleanup(func())
}

var openErrors sync.Map

func openOS(b *testing.B) *Counters {
	printUnits()
	return open(b, b.N)
}

func open(b testingB, bN int, opts ...perfmon.Option) *Counters {
	opts = append([]perfmon.Option{perfmon.WithKinds(defaultKinds...)}, opts...)
	cs := &Counters{countersOS{
		b:  b,
		bN: bN,
		s:  perfmon.Open(opts...),
	}}

	for _, k := range defaultKinds {
		cs.avail[k] = cs.s.Available(k)
		if err := cs.s.Err(k); err != nil {
			// Only report each error once, to avoid flooding benchmark log.
			msg := fmt.Sprintf("error opening counter %s: %v", k, err)
			if _, prev := openErrors.Swap(msg, true); !prev {
				b.Logf("%s", msg)
			}
		}
	}

	b.Cleanup(cs.close)

	// Start all of the counters.
	cs.Start()

	return cs
}

func (cs *Counters) startOS() {
	if cs.s == nil || cs.s.Running() {
		return
	}
	if err := cs.s.Start(); err != nil {
		cs.b.Logf("error starting counters: %v", err)
	}
}

func (cs *Counters) stopOS() {
	if cs.s == nil || !cs.s.Running() {
		return
	}
	snap, err := cs.s.Stop()
	if err != nil {
		cs.b.Logf("error stopping counters: %v", err)
		return
	}
	for k, v := range snap.Counts {
		cs.totals[k] += v
	}
}

func (cs *Counters) resetOS() {
	cs.totals = [perfmon.NumKinds]uint64{}
	if cs.s != nil && cs.s.Running() {
		cs.s.Reset()
	}
}

func (cs *Counters) totalOS(name string) (float64, bool) {
	k, err := perfmon.ParseKind(name)
	if err != nil || !cs.avail[k] {
		return 0, false
	}
	return float64(cs.totals[k]), true
}

func (cs *Counters) close() {
	if cs.b == nil {
		return
	}

	cs.Stop()
	for _, k := range defaultKinds {
		if cs.avail[k] {
			cs.b.ReportMetric(float64(cs.totals[k])/float64(cs.bN), k.String()+"/op")
		}
	}
	if cs.avail[perfmon.Cycles] && cs.avail[perfmon.Instructions] {
		snap := perfmon.NewSnapshot(cs.totals, 0)
		cs.b.ReportMetric(snap.InstructionsPerCycle, ipcUnit)
	}
	if err := cs.s.Close(); err != nil {
		cs.b.Logf("error closing counters: %v", err)
	}
	cs.b = nil
}
