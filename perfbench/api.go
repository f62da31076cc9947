// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perfbench reports performance counters as Go benchmark metrics.
package perfbench

import "testing"

// Counters is a set of performance counters that will be reported in benchmark
// results.
type Counters struct {
	countersOS
}

// Open starts a set of performance counters for benchmark b. When the
// benchmark ends, each counter is reported as "<kind>/op" and the ratio of
// instructions to cycles as "insn-per-cycle". The counters count the calling
// goroutine, which stays locked to its OS thread until the benchmark ends,
// and any threads or processes it starts.
//
// The counters are running on return. In general, any calls to b.StopTimer,
// b.StartTimer, or b.ResetTimer should be paired with the equivalent calls on
// Counters.
//
// The final value of the counters is captured in a b.Cleanup function. If the
// benchmark does substantial other work in cleanup functions, it may want to
// explicitly call [Counters.Stop] before returning.
func Open(b *testing.B) *Counters {
	return openOS(b)
}

// Start resumes counting. Counts accumulate across Stop and Start.
func (cs *Counters) Start() {
	cs.startOS()
}

// Stop pauses counting.
func (cs *Counters) Stop() {
	cs.stopOS()
}

// Reset discards everything counted so far. It does not change whether the
// counters are running.
func (cs *Counters) Reset() {
	cs.resetOS()
}

// Total returns the total count of the named counter, which is a reported
// metric name without the "/op", as of the last [Counters.Stop]. If the named
// counter is unknown or could not be opened, this returns 0, false.
func (cs *Counters) Total(name string) (float64, bool) {
	return cs.totalOS(name)
}
