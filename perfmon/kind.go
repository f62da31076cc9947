// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import (
	"fmt"
	"strings"
)

// A Kind is one of the quantities a [Session] measures. Kinds are small
// integers in [0, NumKinds) and index [Snapshot.Counts].
type Kind int

const (
	Cycles Kind = iota
	Instructions
	Branches
	BranchMisses
	CacheReferences
	CacheMisses
	DTLBLoadMisses
	ITLBMisses
	PageFaults
	MinorFaults
	MajorFaults
	ContextSwitches
	CPUMigrations

	// NumKinds is the number of kinds.
	NumKinds = iota
)

var kindNames = [NumKinds]string{
	Cycles:          "cycles",
	Instructions:    "instructions",
	Branches:        "branches",
	BranchMisses:    "branch-misses",
	CacheReferences: "cache-references",
	CacheMisses:     "cache-misses",
	DTLBLoadMisses:  "dTLB-load-misses",
	ITLBMisses:      "iTLB-load-misses",
	PageFaults:      "page-faults",
	MinorFaults:     "minor-faults",
	MajorFaults:     "major-faults",
	ContextSwitches: "context-switches",
	CPUMigrations:   "cpu-migrations",
}

// Valid reports whether k is one of the defined kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < NumKinds
}

// String returns the perf event name of k, such as "branch-misses".
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds returns every kind in index order.
func Kinds() []Kind {
	ks := make([]Kind, NumKinds)
	for i := range ks {
		ks[i] = Kind(i)
	}
	return ks
}

// ParseKind returns the kind named by name. It accepts the names returned by
// [Kind.String] in any case and, on Linux, any builtin perf alias for the same
// event, such as "cpu-cycles", "cs" or "iTLB-misses".
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds() {
		if strings.EqualFold(name, k.String()) {
			return k, nil
		}
	}
	if k, ok := parseKindAlias(name); ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, name)
}

// ParseKinds parses a comma-separated list of kind names.
func ParseKinds(list string) ([]Kind, error) {
	var ks []Kind
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		k, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		ks = append(ks, k)
	}
	return ks, nil
}
