// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package events

import (
	"errors"
	"fmt"
	"strings"
)

// ParseEvent parses a builtin perf event name, such as "cycles", "cs" or
// "dTLB-load-misses". Hardware and cache events may also be written with the
// cpu PMU, as in "cpu/instructions/".
//
// Only events with a fixed perf encoding are supported. Events that must be
// resolved through /sys or perf's event tables are rejected.
func ParseEvent(name string) (Event, error) {
	pmu, params, err := parsePMUEvent(name)
	if err == errNotPMUEvent {
		pmu = ""
		params = []string{name}
	} else if err != nil {
		return nil, err
	}
	if len(params) != 1 {
		return nil, fmt.Errorf("event %q: expected exactly one event name", name)
	}

	enc, ok := resolveBuiltin(pmu, params[0])
	if !ok {
		if pmu != "" {
			return nil, fmt.Errorf("event %q: unknown event %q", name, params[0])
		}
		return nil, fmt.Errorf("unknown event %q", name)
	}
	return eventBasic{name, enc.typ, enc.config}, nil
}

var errNotPMUEvent = errors.New("not a PMU format event")

// parsePMUEvent splits event strings in the form pmu/a,b,.../.
func parsePMUEvent(name string) (pmu string, params []string, err error) {
	if !(strings.Count(name, "/") == 2 && !strings.HasPrefix(name, "/") && strings.HasSuffix(name, "/")) {
		return "", nil, errNotPMUEvent
	}

	pmu, rest, _ := strings.Cut(name, "/")
	rest = strings.TrimSuffix(rest, "/")
	for _, p := range strings.Split(rest, ",") {
		if p == "" {
			return "", nil, fmt.Errorf("event %q: empty parameter", name)
		}
		if strings.Contains(p, "=") {
			// TODO: Support k=v parameters once PMU formats are read from /sys.
			return "", nil, fmt.Errorf("event %q: parameter %q not supported", name, p)
		}
		params = append(params, p)
	}
	return pmu, params, nil
}
