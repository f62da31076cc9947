// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package perfmon

import (
	"fmt"

	"github.com/go-perfmon/perfmon/events"
	"github.com/go-perfmon/perfmon/perf"
)

// kindEvents maps each kind to the perf event it counts.
var kindEvents = [NumKinds]events.Event{
	Cycles:          events.EventCPUCycles,
	Instructions:    events.EventInstructions,
	Branches:        events.EventBranches,
	BranchMisses:    events.EventBranchMisses,
	CacheReferences: events.EventCacheReferences,
	CacheMisses:     events.EventCacheMisses,
	DTLBLoadMisses:  events.EventDTLBLoadMisses,
	ITLBMisses:      events.EventITLBLoadMisses,
	PageFaults:      events.EventPageFaults,
	MinorFaults:     events.EventMinorFaults,
	MajorFaults:     events.EventMajorFaults,
	ContextSwitches: events.EventContextSwitches,
	CPUMigrations:   events.EventCPUMigrations,
}

// counterHandle adapts a perf.Counter to a handle.
type counterHandle struct {
	*perf.Counter
}

func (h counterHandle) Read() (uint64, error) {
	c, err := h.ReadOne()
	return c.RawValue, err
}

func openCounter(k Kind, cfg *config) (handle, error) {
	ev := kindEvents[k]
	c, err := perf.OpenCounter(ev, perf.Options{
		Inherit:       true,
		ExcludeKernel: cfg.excludeKernel,
	})
	if err != nil {
		typ, config, _ := events.Encoding(ev)
		return nil, fmt.Errorf("type=%d, config=%#x: %w", typ, config, err)
	}
	return counterHandle{c}, nil
}

// IsSupported reports whether this process can open a cycle counter. It
// does not depend on or affect any Session.
func IsSupported() bool {
	c, err := perf.OpenCounter(events.EventCPUCycles, perf.Options{})
	if err != nil {
		return false
	}
	c.Close()
	return true
}

// parseKindAlias resolves name as a builtin perf event and matches it to a
// kind by encoding.
func parseKindAlias(name string) (Kind, bool) {
	ev, err := events.ParseEvent(name)
	if err != nil {
		return 0, false
	}
	typ, config, err := events.Encoding(ev)
	if err != nil {
		return 0, false
	}
	for k, kev := range kindEvents {
		if t, c, _ := events.Encoding(kev); t == typ && c == config {
			return Kind(k), true
		}
	}
	return 0, false
}
