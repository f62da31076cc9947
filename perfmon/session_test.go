// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeCounters is a set of fake handles that share an operation log.
type fakeCounters struct {
	handles map[Kind]*fakeHandle
	ops     []string

	// fail lists the kinds that fail to open.
	fail map[Kind]bool
}

type fakeHandle struct {
	fc      *fakeCounters
	kind    Kind
	value   uint64
	running bool
	closes  int
	readErr error
}

func newFakeCounters(fail ...Kind) *fakeCounters {
	fc := &fakeCounters{handles: make(map[Kind]*fakeHandle), fail: make(map[Kind]bool)}
	for _, k := range fail {
		fc.fail[k] = true
	}
	return fc
}

func (fc *fakeCounters) open(k Kind, _ *config) (handle, error) {
	if fc.fail[k] {
		return nil, fmt.Errorf("type=9, config=%d: %w", int(k), errors.New("no such device"))
	}
	h := &fakeHandle{fc: fc, kind: k}
	fc.handles[k] = h
	return h, nil
}

// tick advances every running counter by n.
func (fc *fakeCounters) tick(n uint64) {
	for _, h := range fc.handles {
		if h.running {
			h.value += n
		}
	}
}

func (fc *fakeCounters) session(t *testing.T, opts ...Option) *Session {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	opts = append([]Option{WithLogger(logger), withOpener(fc.open)}, opts...)
	s := Open(opts...)
	t.Cleanup(func() { s.Close() })
	return s
}

func (h *fakeHandle) log(op string) {
	h.fc.ops = append(h.fc.ops, op+" "+h.kind.String())
}

func (h *fakeHandle) Reset() error {
	h.log("reset")
	h.value = 0
	return nil
}

func (h *fakeHandle) Start() error {
	h.log("enable")
	h.running = true
	return nil
}

func (h *fakeHandle) Stop() error {
	h.log("disable")
	h.running = false
	return nil
}

func (h *fakeHandle) Read() (uint64, error) {
	h.log("read")
	if h.readErr != nil {
		return 0, h.readErr
	}
	return h.value, nil
}

func (h *fakeHandle) Close() error {
	h.closes++
	return nil
}

func TestStartTwice(t *testing.T) {
	s := newFakeCounters().session(t)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	err := s.Start()
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start: got %v, want ErrAlreadyRunning", err)
	}
	if !s.Running() {
		t.Fatal("second Start changed running state")
	}
	if !strings.Contains(s.LastError(), "already running") {
		t.Errorf("LastError() = %q", s.LastError())
	}
}

func TestStartTwiceNoSideEffects(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	s.Start()
	fc.tick(5)
	n := len(fc.ops)
	s.Start()
	if len(fc.ops) != n {
		t.Fatalf("failed Start touched counters: %v", fc.ops[n:])
	}
	snap, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Count(Cycles) != 5 {
		t.Fatalf("cycles = %d, want 5", snap.Count(Cycles))
	}
}

func TestStopIdle(t *testing.T) {
	s := newFakeCounters().session(t)
	snap, err := s.Stop()
	if !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Stop: got %v, want ErrNotRunning", err)
	}
	if snap != (Snapshot{}) {
		t.Fatalf("Stop returned a snapshot: %+v", snap)
	}
	if s.Running() {
		t.Fatal("session running after failed Stop")
	}
}

func TestStartResetsBeforeEnable(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	// Stale counts from before Start must not leak into the snapshot.
	for _, h := range fc.handles {
		h.value = 1000
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	for _, k := range Kinds() {
		reset := indexOf(fc.ops, "reset "+k.String())
		enable := indexOf(fc.ops, "enable "+k.String())
		if reset < 0 || enable < 0 || reset > enable {
			t.Errorf("%s: reset at %d, enable at %d", k, reset, enable)
		}
	}
	fc.tick(3)
	snap, _ := s.Stop()
	for _, k := range Kinds() {
		if snap.Count(k) != 3 {
			t.Errorf("%s = %d, want 3", k, snap.Count(k))
		}
	}
}

func TestStopDisablesBeforeRead(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	s.Start()
	fc.ops = nil
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	lastDisable, firstRead := -1, len(fc.ops)
	for i, op := range fc.ops {
		if strings.HasPrefix(op, "disable ") {
			lastDisable = i
		}
		if strings.HasPrefix(op, "read ") && i < firstRead {
			firstRead = i
		}
	}
	if lastDisable < 0 || lastDisable > firstRead {
		t.Fatalf("read before disable: %v", fc.ops)
	}
	for _, h := range fc.handles {
		if h.running {
			t.Errorf("%s still running after Stop", h.kind)
		}
	}
}

func TestResetBeforeStart(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Counts != ([NumKinds]uint64{}) {
		t.Fatalf("counts not zero: %v", snap.Counts)
	}
}

func TestResetWhileRunning(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	s.Start()
	start := s.startedAt
	fc.tick(100)
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if !s.Running() || s.startedAt != start {
		t.Fatal("Reset changed running state or start time")
	}
	fc.tick(7)
	snap, _ := s.Stop()
	if snap.Count(Instructions) != 7 {
		t.Fatalf("instructions = %d, want 7", snap.Count(Instructions))
	}
}

func TestDisabledKindReadsZero(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)

	// Count one interval with everything, then disable branches.
	s.Start()
	fc.tick(10)
	s.Stop()

	if !s.Disable(Branches) {
		t.Fatal("Disable(Branches) = false")
	}
	if s.Enabled(Branches) || !s.Available(Branches) {
		t.Fatal("Disable changed availability or left kind enabled")
	}
	s.Start()
	fc.tick(4)
	snap, _ := s.Stop()
	if got := snap.Count(Branches); got != 0 {
		t.Errorf("disabled branches = %d, want 0", got)
	}
	if got := snap.Count(Instructions); got != 4 {
		t.Errorf("instructions = %d, want 4", got)
	}

	if !s.Enable(Branches) {
		t.Fatal("Enable(Branches) = false")
	}
	s.Start()
	fc.tick(2)
	snap, _ = s.Stop()
	if got := snap.Count(Branches); got != 2 {
		t.Errorf("re-enabled branches = %d, want 2", got)
	}
}

func TestDisableWhileRunning(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	s.Start()
	s.Disable(Cycles)
	fc.tick(6)
	snap, _ := s.Stop()
	// The change takes effect at the next Start.
	if snap.Count(Cycles) != 6 {
		t.Errorf("cycles = %d, want 6", snap.Count(Cycles))
	}
	if fc.handles[Cycles].running {
		t.Error("cycles still counting after Stop")
	}
}

func TestUnavailableKinds(t *testing.T) {
	fc := newFakeCounters(DTLBLoadMisses, ITLBMisses)
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	s := fc.session(t, WithLogger(logger))

	for _, k := range []Kind{DTLBLoadMisses, ITLBMisses} {
		if s.Available(k) || s.Enabled(k) {
			t.Errorf("%s available after failed open", k)
		}
		if s.Enable(k) {
			t.Errorf("Enable(%s) = true without a counter", k)
		}
		if !s.Disable(k) {
			t.Errorf("Disable(%s) = false", k)
		}
		var ke *KindError
		if err := s.Err(k); !errors.As(err, &ke) || ke.Kind != k || ke.Op != "open" {
			t.Errorf("Err(%s) = %v", k, err)
		}
	}
	if s.Err(Cycles) != nil {
		t.Errorf("Err(cycles) = %v", s.Err(Cycles))
	}
	want := "perfmon: open iTLB-load-misses: type=9, config=7: no such device"
	if s.LastError() != want {
		t.Errorf("LastError() = %q, want %q", s.LastError(), want)
	}

	var logged []string
	for _, e := range hook.AllEntries() {
		logged = append(logged, e.Data["kind"].(string))
	}
	if strings.Join(logged, ",") != "dTLB-load-misses,iTLB-load-misses" {
		t.Errorf("logged kinds %v", logged)
	}

	s.Start()
	fc.tick(9)
	snap, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Count(DTLBLoadMisses) != 0 || snap.Count(ITLBMisses) != 0 {
		t.Errorf("unavailable kinds counted: %v", snap.Counts)
	}
	if snap.Count(PageFaults) != 9 {
		t.Errorf("page-faults = %d, want 9", snap.Count(PageFaults))
	}
}

func TestNothingAvailable(t *testing.T) {
	fc := newFakeCounters(Kinds()...)
	s := fc.session(t)
	for _, k := range Kinds() {
		if s.Enable(k) {
			t.Errorf("Enable(%s) = true", k)
		}
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if snap.Counts != ([NumKinds]uint64{}) || snap.InstructionsPerCycle != 0 {
		t.Errorf("snapshot not zero: %+v", snap)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestShortReadIsZero(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	fc.handles[CacheMisses].readErr = errors.New("short read")
	s.Start()
	fc.tick(8)
	snap, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed on read error: %v", err)
	}
	if snap.Count(CacheMisses) != 0 {
		t.Errorf("cache-misses = %d, want 0", snap.Count(CacheMisses))
	}
	if snap.Count(CacheReferences) != 8 {
		t.Errorf("cache-references = %d, want 8", snap.Count(CacheReferences))
	}
	if !strings.Contains(s.LastError(), "read cache-misses") {
		t.Errorf("LastError() = %q", s.LastError())
	}
}

func TestInvalidKind(t *testing.T) {
	s := newFakeCounters().session(t)
	for _, k := range []Kind{-1, NumKinds, 100} {
		if s.Enable(k) {
			t.Errorf("Enable(%d) = true", k)
		}
		if !strings.Contains(s.LastError(), "invalid counter kind") {
			t.Errorf("LastError() = %q", s.LastError())
		}
		if s.Disable(k) {
			t.Errorf("Disable(%d) = true", k)
		}
		if !errors.Is(s.Err(k), ErrInvalidKind) {
			t.Errorf("Err(%d) = %v", k, s.Err(k))
		}
	}
}

func TestClose(t *testing.T) {
	fc := newFakeCounters(MajorFaults)
	s := fc.session(t)
	s.Start()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	for k, h := range fc.handles {
		if h.closes != 1 {
			t.Errorf("%s closed %d times", k, h.closes)
		}
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: %v", err)
	}
	if _, err := s.Stop(); !errors.Is(err, ErrClosed) {
		t.Errorf("Stop after Close: %v", err)
	}
	if err := s.Reset(); !errors.Is(err, ErrClosed) {
		t.Errorf("Reset after Close: %v", err)
	}
}

func TestWithKinds(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t, WithKinds(Cycles, Instructions))
	for _, k := range Kinds() {
		want := k == Cycles || k == Instructions
		if s.Available(k) != want {
			t.Errorf("Available(%s) = %v, want %v", k, !want, want)
		}
	}
	if len(fc.handles) != 2 {
		t.Errorf("opened %d counters, want 2", len(fc.handles))
	}
	if !errors.Is(s.Err(Branches), errNotOpened) {
		t.Errorf("Err(branches) = %v", s.Err(Branches))
	}
}

func TestElapsed(t *testing.T) {
	s := newFakeCounters().session(t)
	s.Start()
	time.Sleep(2 * time.Millisecond)
	snap, err := s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if snap.ElapsedSeconds() <= 0 || snap.Elapsed < 2*time.Millisecond {
		t.Fatalf("elapsed = %v", snap.Elapsed)
	}
	if !s.stoppedAt.After(s.startedAt) {
		t.Fatal("stop time not after start time")
	}
}

func TestRepeatedIntervals(t *testing.T) {
	fc := newFakeCounters()
	s := fc.session(t)
	for i := uint64(1); i <= 3; i++ {
		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
		fc.tick(i * 10)
		snap, err := s.Stop()
		if err != nil {
			t.Fatal(err)
		}
		if snap.Count(ContextSwitches) != i*10 {
			t.Errorf("interval %d: context-switches = %d", i, snap.Count(ContextSwitches))
		}
	}
}

func TestProbe(t *testing.T) {
	fc := newFakeCounters(Cycles)
	res := Probe(withOpener(fc.open), WithKinds(Cycles, Instructions))
	if len(res) != 2 {
		t.Fatalf("Probe returned %d kinds, want 2", len(res))
	}
	if res[Cycles] == nil || res[Instructions] != nil {
		t.Errorf("Probe = %v", res)
	}
	if fc.handles[Instructions].closes != 1 {
		t.Error("Probe did not close its counter")
	}
}

func indexOf(ops []string, op string) int {
	for i, o := range ops {
		if o == op {
			return i
		}
	}
	return -1
}
