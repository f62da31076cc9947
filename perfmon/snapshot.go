// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import (
	"encoding/json"
	"time"
)

// A Snapshot is the result of one Start/Stop interval of a [Session].
//
// Kinds that were unavailable, disabled before Start, or failed to read
// report a count of zero.
type Snapshot struct {
	Counts  [NumKinds]uint64
	Elapsed time.Duration

	// Derived metrics. Each is 0 when its denominator is 0.
	InstructionsPerCycle float64 // instructions / cycles
	BranchMissRate       float64 // percentage of branches mispredicted
	CacheMissRate        float64 // percentage of cache references that missed
}

// NewSnapshot returns a Snapshot of counts over elapsed, with its derived
// metrics filled in.
func NewSnapshot(counts [NumKinds]uint64, elapsed time.Duration) Snapshot {
	s := Snapshot{Counts: counts, Elapsed: elapsed}
	s.InstructionsPerCycle = ratio(counts[Instructions], counts[Cycles])
	s.BranchMissRate = 100 * ratio(counts[BranchMisses], counts[Branches])
	s.CacheMissRate = 100 * ratio(counts[CacheMisses], counts[CacheReferences])
	return s
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// Count returns the count of kind k, or 0 if k is not a valid kind.
func (s Snapshot) Count(k Kind) uint64 {
	if !k.Valid() {
		return 0
	}
	return s.Counts[k]
}

// ElapsedSeconds returns the wall time between Start and Stop in seconds.
func (s Snapshot) ElapsedSeconds() float64 {
	return s.Elapsed.Seconds()
}

type snapshotJSON struct {
	Cycles          uint64 `json:"cycles"`
	Instructions    uint64 `json:"instructions"`
	Branches        uint64 `json:"branches"`
	BranchMisses    uint64 `json:"branch_misses"`
	CacheReferences uint64 `json:"cache_references"`
	CacheMisses     uint64 `json:"cache_misses"`
	DTLBLoadMisses  uint64 `json:"dtlb_load_misses"`
	ITLBMisses      uint64 `json:"itlb_misses"`
	PageFaults      uint64 `json:"page_faults"`
	MinorFaults     uint64 `json:"minor_faults"`
	MajorFaults     uint64 `json:"major_faults"`
	ContextSwitches uint64 `json:"context_switches"`
	CPUMigrations   uint64 `json:"cpu_migrations"`

	ElapsedTimeSec float64 `json:"elapsed_time_sec"`
	InsnPerCycle   float64 `json:"insn_per_cycle"`
	BranchMissRate float64 `json:"branch_miss_rate"`
	CacheMissRate  float64 `json:"cache_miss_rate"`
}

// MarshalJSON encodes s as an object with one field per kind plus the
// elapsed time and derived metrics.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	c := &s.Counts
	return json.Marshal(snapshotJSON{
		Cycles:          c[Cycles],
		Instructions:    c[Instructions],
		Branches:        c[Branches],
		BranchMisses:    c[BranchMisses],
		CacheReferences: c[CacheReferences],
		CacheMisses:     c[CacheMisses],
		DTLBLoadMisses:  c[DTLBLoadMisses],
		ITLBMisses:      c[ITLBMisses],
		PageFaults:      c[PageFaults],
		MinorFaults:     c[MinorFaults],
		MajorFaults:     c[MajorFaults],
		ContextSwitches: c[ContextSwitches],
		CPUMigrations:   c[CPUMigrations],
		ElapsedTimeSec:  s.ElapsedSeconds(),
		InsnPerCycle:    s.InstructionsPerCycle,
		BranchMissRate:  s.BranchMissRate,
		CacheMissRate:   s.CacheMissRate,
	})
}
