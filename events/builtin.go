// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// encoding is the (type, config) pair a builtin event name resolves to.
type encoding struct {
	typ    uint32
	config uint64
}

type cacheAlias struct {
	name   string
	config uint64
}

// aliasTable holds the event names that correspond to well-known perf event
// configs and thus generally don't appear in /sys.
type aliasTable struct {
	hardware map[string]encoding // No PMU or cpu/ PMU
	software map[string]encoding // No PMU

	cache       []cacheAlias
	cacheOp     []cacheAlias
	cacheResult []cacheAlias
	// Cache -> bitmap of permitted operations.
	cacheOps map[uint64]uint8
}

var builtinAliases = sync.OnceValue(func() *aliasTable {
	t := &aliasTable{
		hardware: make(map[string]encoding),
		software: make(map[string]encoding),
	}
	add := func(m map[string]encoding, typ uint32, config uint64, names ...string) {
		for _, name := range names {
			m[name] = encoding{typ, config}
		}
	}

	// See parse-events.c:event_symbols_hw
	hw := func(config uint64, names ...string) { add(t.hardware, unix.PERF_TYPE_HARDWARE, config, names...) }
	hw(unix.PERF_COUNT_HW_CPU_CYCLES, "cpu-cycles", "cycles")
	hw(unix.PERF_COUNT_HW_INSTRUCTIONS, "instructions")
	hw(unix.PERF_COUNT_HW_CACHE_REFERENCES, "cache-references")
	hw(unix.PERF_COUNT_HW_CACHE_MISSES, "cache-misses")
	hw(unix.PERF_COUNT_HW_BRANCH_INSTRUCTIONS, "branch-instructions", "branches")
	hw(unix.PERF_COUNT_HW_BRANCH_MISSES, "branch-misses")
	hw(unix.PERF_COUNT_HW_BUS_CYCLES, "bus-cycles")
	hw(unix.PERF_COUNT_HW_STALLED_CYCLES_FRONTEND, "stalled-cycles-frontend", "idle-cycles-frontend")
	hw(unix.PERF_COUNT_HW_STALLED_CYCLES_BACKEND, "stalled-cycles-backend", "idle-cycles-backend")
	hw(unix.PERF_COUNT_HW_REF_CPU_CYCLES, "ref-cycles")

	// See parse-events.c:event_symbols_sw
	sw := func(config uint64, names ...string) { add(t.software, unix.PERF_TYPE_SOFTWARE, config, names...) }
	sw(unix.PERF_COUNT_SW_CPU_CLOCK, "cpu-clock")
	sw(unix.PERF_COUNT_SW_TASK_CLOCK, "task-clock")
	sw(unix.PERF_COUNT_SW_PAGE_FAULTS, "page-faults", "faults")
	sw(unix.PERF_COUNT_SW_CONTEXT_SWITCHES, "context-switches", "cs")
	sw(unix.PERF_COUNT_SW_CPU_MIGRATIONS, "cpu-migrations", "migrations")
	sw(unix.PERF_COUNT_SW_PAGE_FAULTS_MIN, "minor-faults")
	sw(unix.PERF_COUNT_SW_PAGE_FAULTS_MAJ, "major-faults")
	sw(unix.PERF_COUNT_SW_ALIGNMENT_FAULTS, "alignment-faults")
	sw(unix.PERF_COUNT_SW_EMULATION_FAULTS, "emulation-faults")
	sw(unix.PERF_COUNT_SW_DUMMY, "dummy")
	sw(unix.PERF_COUNT_SW_BPF_OUTPUT, "bpf-output")

	// Longer names go first so prefix matching picks the most specific one.
	list := func(config uint64, names ...string) []cacheAlias {
		var out []cacheAlias
		for _, name := range names {
			out = append(out, cacheAlias{name, config})
		}
		return out
	}
	byLength := func(l []cacheAlias) []cacheAlias {
		sort.SliceStable(l, func(i, j int) bool { return len(l[i].name) > len(l[j].name) })
		return l
	}
	// See evsel.c:evsel__hw_cache
	t.cache = byLength(concat(
		list(unix.PERF_COUNT_HW_CACHE_L1D, "L1-dcache", "l1-d", "l1d", "L1-data"),
		list(unix.PERF_COUNT_HW_CACHE_L1I, "L1-icache", "l1-i", "l1i", "L1-instruction"),
		list(unix.PERF_COUNT_HW_CACHE_LL, "LLC", "L2"),
		list(unix.PERF_COUNT_HW_CACHE_DTLB, "dTLB", "d-tlb", "Data-TLB"),
		list(unix.PERF_COUNT_HW_CACHE_ITLB, "iTLB", "i-tlb", "Instruction-TLB"),
		list(unix.PERF_COUNT_HW_CACHE_BPU, "branch", "branches", "bpu", "btb", "bpc"),
		list(unix.PERF_COUNT_HW_CACHE_NODE, "node"),
	))
	// See evsel.c:evsel__hw_cache_op
	t.cacheOp = byLength(concat(
		list(unix.PERF_COUNT_HW_CACHE_OP_READ, "load", "loads", "read"),
		list(unix.PERF_COUNT_HW_CACHE_OP_WRITE, "store", "stores", "write"),
		list(unix.PERF_COUNT_HW_CACHE_OP_PREFETCH, "prefetch", "prefetches", "speculative-read", "speculative-load"),
	))
	// See evsel.c:evsel__hw_cache_result
	t.cacheResult = byLength(concat(
		list(unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS, "refs", "Reference", "ops", "access"),
		list(unix.PERF_COUNT_HW_CACHE_RESULT_MISS, "misses", "miss"),
	))

	r := uint8(1) << unix.PERF_COUNT_HW_CACHE_OP_READ
	w := uint8(1) << unix.PERF_COUNT_HW_CACHE_OP_WRITE
	p := uint8(1) << unix.PERF_COUNT_HW_CACHE_OP_PREFETCH
	t.cacheOps = map[uint64]uint8{
		unix.PERF_COUNT_HW_CACHE_L1D:  r | w | p,
		unix.PERF_COUNT_HW_CACHE_L1I:  r | p,
		unix.PERF_COUNT_HW_CACHE_LL:   r | w | p,
		unix.PERF_COUNT_HW_CACHE_DTLB: r | w | p,
		unix.PERF_COUNT_HW_CACHE_ITLB: r,
		unix.PERF_COUNT_HW_CACHE_BPU:  r,
		unix.PERF_COUNT_HW_CACHE_NODE: r | w | p,
	}
	return t
})

func concat(ls ...[]cacheAlias) []cacheAlias {
	var out []cacheAlias
	for _, l := range ls {
		out = append(out, l...)
	}
	return out
}

// resolveBuiltin maps a builtin event name, optionally qualified by a PMU, to
// its encoding.
func resolveBuiltin(pmu, name string) (encoding, bool) {
	t := builtinAliases()

	// All builtin events are either under no PMU or under cpu/.
	if !(pmu == "" || pmu == "cpu") {
		return encoding{}, false
	}

	// Hardware events can be used with or without a PMU name.
	if e, ok := t.hardware[name]; ok {
		return e, true
	}
	// Software events can only be used with no PMU name.
	if pmu == "" {
		if e, ok := t.software[name]; ok {
			return e, true
		}
	}
	return t.resolveCache(name)
}

// resolveCache parses legacy cache event names in the form
// cache[-op][-result], e.g. "dTLB-load-misses". See
// parse-events.c:parse_events__decode_legacy_cache.
func (t *aliasTable) resolveCache(name string) (encoding, bool) {
	cache, rest, ok := matchPrefix(name, t.cache)
	if !ok {
		return encoding{}, false
	}

	// Perf accepts up to two more fields in either order. It even accepts
	// nonsense like l1d-loads-stores, which we reject.
	op := uint64(unix.PERF_COUNT_HW_CACHE_OP_READ)
	result := uint64(unix.PERF_COUNT_HW_CACHE_RESULT_ACCESS)
	var haveOp, haveResult bool
	for i := 0; i < 2 && rest != ""; i++ {
		if !haveOp {
			if v, r, ok := matchPrefix(rest, t.cacheOp); ok {
				op, rest, haveOp = v, r, true
				continue
			}
		}
		if !haveResult {
			if v, r, ok := matchPrefix(rest, t.cacheResult); ok {
				result, rest, haveResult = v, r, true
				continue
			}
		}
	}
	if rest != "" || t.cacheOps[cache]&(1<<op) == 0 {
		return encoding{}, false
	}
	return encoding{unix.PERF_TYPE_HW_CACHE, cacheConfig(cache, op, result)}, true
}

// matchPrefix matches s against names, either exactly or as a prefix
// followed by "-". It returns the config and the remainder after the "-".
func matchPrefix(s string, names []cacheAlias) (uint64, string, bool) {
	for _, n := range names {
		if s == n.name {
			return n.config, "", true
		}
		if rest, ok := strings.CutPrefix(s, n.name+"-"); ok {
			return n.config, rest, true
		}
	}
	return 0, "", false
}
