// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func counts(kv map[Kind]uint64) [NumKinds]uint64 {
	var c [NumKinds]uint64
	for k, v := range kv {
		c[k] = v
	}
	return c
}

func TestDerivedMetrics(t *testing.T) {
	for _, tc := range []struct {
		name          string
		counts        map[Kind]uint64
		ipc, br, miss float64
	}{
		{"zero", nil, 0, 0, 0},
		{"no cycles", map[Kind]uint64{Instructions: 500}, 0, 0, 0},
		{"no branches", map[Kind]uint64{BranchMisses: 3}, 0, 0, 0},
		{"no cache refs", map[Kind]uint64{CacheMisses: 3}, 0, 0, 0},
		{
			"all",
			map[Kind]uint64{
				Cycles: 400, Instructions: 1000,
				Branches: 200, BranchMisses: 5,
				CacheReferences: 8000, CacheMisses: 10,
			},
			2.5, 2.5, 0.125,
		},
		{
			// Large counts must not be truncated before dividing.
			"large",
			map[Kind]uint64{Cycles: 3, Instructions: 1 << 62},
			float64(1<<62) / 3, 0, 0,
		},
	} {
		s := NewSnapshot(counts(tc.counts), time.Second)
		if !approxEqual(s.InstructionsPerCycle, tc.ipc) {
			t.Errorf("%s: IPC = %v, want %v", tc.name, s.InstructionsPerCycle, tc.ipc)
		}
		if !approxEqual(s.BranchMissRate, tc.br) {
			t.Errorf("%s: branch miss rate = %v, want %v", tc.name, s.BranchMissRate, tc.br)
		}
		if !approxEqual(s.CacheMissRate, tc.miss) {
			t.Errorf("%s: cache miss rate = %v, want %v", tc.name, s.CacheMissRate, tc.miss)
		}
	}
}

func approxEqual(got, want float64) bool {
	if want == 0 {
		return got == 0
	}
	return math.Abs(got-want)/want < 1e-12
}

func TestSnapshotAccessors(t *testing.T) {
	s := NewSnapshot(counts(map[Kind]uint64{MajorFaults: 2}), 1500*time.Millisecond+7)
	if s.Count(MajorFaults) != 2 {
		t.Errorf("Count(MajorFaults) = %d", s.Count(MajorFaults))
	}
	if s.Count(-1) != 0 || s.Count(NumKinds) != 0 {
		t.Error("Count of invalid kind not zero")
	}
	if got := s.ElapsedSeconds(); !approxEqual(got, 1.500000007) {
		t.Errorf("ElapsedSeconds() = %.9f", got)
	}
}

func TestSnapshotJSON(t *testing.T) {
	s := NewSnapshot(counts(map[Kind]uint64{
		Cycles: 10, Instructions: 20, ITLBMisses: 4, CPUMigrations: 1,
	}), 250*time.Millisecond)
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{
		"cycles":           10,
		"instructions":     20,
		"itlb_misses":      4,
		"cpu_migrations":   1,
		"elapsed_time_sec": 0.25,
		"insn_per_cycle":   2,
		"dtlb_load_misses": 0,
	}
	for k, v := range want {
		if got, ok := m[k]; !ok || got != v {
			t.Errorf("%s = %v (present %v), want %v", k, got, ok, v)
		}
	}
	if len(m) != NumKinds+4 {
		t.Errorf("got %d fields, want %d", len(m), NumKinds+4)
	}
	if !strings.HasPrefix(string(b), `{"cycles":10,"instructions":20,`) {
		t.Errorf("unexpected field order: %s", b)
	}
}
