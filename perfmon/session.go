// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perfmon measures hardware and software performance counters for
// the calling goroutine and the threads and processes it starts, over an
// arbitrary region of code.
//
// A [Session] owns one counter per [Kind]. Counters that cannot be opened,
// because the hardware lacks the event or the process lacks privilege, are
// silently left out and read as zero:
//
//	s := perfmon.Open()
//	defer s.Close()
//	if err := s.Start(); err != nil {
//		return err
//	}
//	work()
//	snap, err := s.Stop()
package perfmon

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// A handle is an open counter for a single kind.
type handle interface {
	Reset() error
	Start() error
	Stop() error
	Read() (uint64, error)
	Close() error
}

// opener opens the counter for one kind.
type opener func(k Kind, cfg *config) (handle, error)

type slot struct {
	h       handle // nil if the counter could not be opened
	enabled bool
	err     error // why h is nil

	// counting is set by Start for slots it enabled and cleared by Stop.
	// Enable and Disable never change it.
	counting bool
}

func (sl *slot) active() bool {
	return sl.h != nil && sl.enabled
}

// A Session is a set of counters, one per [Kind], that start, stop and reset
// together.
//
// The counters follow the OS thread of the goroutine that called [Open], so
// Open locks that goroutine to its thread until [Session.Close]. They also
// count threads and child processes started from that thread after Open.
//
// A Session is not safe for concurrent use. Independent sessions do not
// interact.
type Session struct {
	slots [NumKinds]slot

	running   bool
	closed    bool
	startedAt time.Time
	stoppedAt time.Time

	lastErr string
	log     logrus.FieldLogger
}

type config struct {
	log           logrus.FieldLogger
	excludeKernel bool
	kinds         []Kind // nil means all
	open          opener
}

// An Option configures [Open] and [Probe].
type Option func(*config)

// WithLogger sets the logger that receives counter diagnostics. By default
// only warnings are logged, to stderr.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) { c.log = l }
}

// WithExcludeKernel counts user-space events only. Unprivileged processes
// need this when kernel.perf_event_paranoid is 2.
func WithExcludeKernel() Option {
	return func(c *config) { c.excludeKernel = true }
}

// WithKinds opens counters for the listed kinds only. The others behave as
// if they were unsupported.
func WithKinds(kinds ...Kind) Option {
	return func(c *config) { c.kinds = append(c.kinds[:0:0], kinds...) }
}

func withOpener(o opener) Option {
	return func(c *config) { c.open = o }
}

func newConfig(opts []Option) *config {
	cfg := &config{open: openCounter}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		cfg.log = l
	}
	return cfg
}

func (cfg *config) wants(k Kind) bool {
	if cfg.kinds == nil {
		return true
	}
	for _, want := range cfg.kinds {
		if want == k {
			return true
		}
	}
	return false
}

// Open returns a new idle Session with a counter for every kind that could be
// opened. It never fails: kinds that cannot be counted are recorded (see
// [Session.Err]) and read as zero. Callers must call [Session.Close] when done.
func Open(opts ...Option) *Session {
	cfg := newConfig(opts)
	s := &Session{log: cfg.log}

	runtime.LockOSThread()
	for _, k := range Kinds() {
		sl := &s.slots[k]
		if !cfg.wants(k) {
			sl.err = fmt.Errorf("%w: not requested", errNotOpened)
			continue
		}
		h, err := cfg.open(k, cfg)
		if err != nil {
			sl.err = s.note(k, "open", err, logrus.DebugLevel)
			continue
		}
		sl.h = h
		sl.enabled = true
	}
	return s
}

// note records a per-kind failure as the session's last error and logs it.
func (s *Session) note(k Kind, op string, err error, level logrus.Level) error {
	ke := &KindError{Kind: k, Op: op, Err: err}
	s.lastErr = ke.Error()
	s.log.WithFields(logrus.Fields{
		"kind":  k.String(),
		"op":    op,
		"error": err,
	}).Log(level, "Counter operation failed")
	return ke
}

// fail records err as the session's last error and returns it.
func (s *Session) fail(err error) error {
	s.lastErr = err.Error()
	return err
}

// Start resets and enables every enabled counter and records the start time.
// It returns an error wrapping [ErrAlreadyRunning] if s is already running,
// without changing anything.
func (s *Session) Start() error {
	if s.closed {
		return s.fail(ErrClosed)
	}
	if s.running {
		return s.fail(fmt.Errorf("start: %w", ErrAlreadyRunning))
	}
	for k := range s.slots {
		sl := &s.slots[k]
		if !sl.active() {
			continue
		}
		// Reset first, or the count would include whatever accumulated
		// before.
		if err := sl.h.Reset(); err != nil {
			s.note(Kind(k), "reset", err, logrus.WarnLevel)
			continue
		}
		if err := sl.h.Start(); err != nil {
			s.note(Kind(k), "enable", err, logrus.WarnLevel)
			continue
		}
		sl.counting = true
	}
	s.startedAt = time.Now()
	s.running = true
	return nil
}

// Stop disables the counters enabled by Start, reads them and returns the
// counts since Start. It returns an error wrapping [ErrNotRunning] if s is not
// running.
//
// Kinds that Start did not enable report zero, as does a counter that fails
// to read or returns a short read.
func (s *Session) Stop() (Snapshot, error) {
	if s.closed {
		return Snapshot{}, s.fail(ErrClosed)
	}
	if !s.running {
		return Snapshot{}, s.fail(fmt.Errorf("stop: %w", ErrNotRunning))
	}
	s.stoppedAt = time.Now()

	// Disable everything before reading anything so the counts all cover
	// the same interval.
	for k := range s.slots {
		sl := &s.slots[k]
		if !sl.counting {
			continue
		}
		if err := sl.h.Stop(); err != nil {
			s.note(Kind(k), "disable", err, logrus.WarnLevel)
		}
	}

	var counts [NumKinds]uint64
	for k := range s.slots {
		sl := &s.slots[k]
		if !sl.counting {
			continue
		}
		sl.counting = false
		v, err := sl.h.Read()
		if err != nil {
			s.note(Kind(k), "read", err, logrus.DebugLevel)
			v = 0
		}
		counts[k] = v
	}

	s.running = false
	return NewSnapshot(counts, s.stoppedAt.Sub(s.startedAt)), nil
}

// Reset sets every enabled counter to zero. It may be called whether or not s
// is running, and changes neither the enabled kinds nor the start time.
func (s *Session) Reset() error {
	if s.closed {
		return s.fail(ErrClosed)
	}
	for k := range s.slots {
		sl := &s.slots[k]
		if !sl.active() {
			continue
		}
		if err := sl.h.Reset(); err != nil {
			s.note(Kind(k), "reset", err, logrus.WarnLevel)
		}
	}
	return nil
}

// Enable includes kind k in subsequent Start and Reset calls. It returns
// false if k is invalid or its counter could not be opened.
//
// A running counter is not affected until the next Start or Reset.
func (s *Session) Enable(k Kind) bool {
	if !k.Valid() {
		s.fail(fmt.Errorf("enable %s: %w", k, ErrInvalidKind))
		return false
	}
	sl := &s.slots[k]
	if sl.h == nil {
		return false
	}
	sl.enabled = true
	return true
}

// Disable excludes kind k from subsequent Start and Reset calls, so it reads
// as zero in the Snapshot of the next interval. It returns false only if k is
// invalid.
//
// A running counter keeps counting until the next Stop.
func (s *Session) Disable(k Kind) bool {
	if !k.Valid() {
		s.fail(fmt.Errorf("disable %s: %w", k, ErrInvalidKind))
		return false
	}
	s.slots[k].enabled = false
	return true
}

// Close releases every counter and unlocks the goroutine from its OS thread.
// Calling Close more than once is a no-op. The session must not be used
// afterwards.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	var err error
	for k := range s.slots {
		sl := &s.slots[k]
		if sl.h == nil {
			continue
		}
		if cerr := sl.h.Close(); cerr != nil {
			err = multierr.Append(err, &KindError{Kind: Kind(k), Op: "close", Err: cerr})
		}
		sl.h = nil
		sl.enabled = false
		sl.counting = false
	}
	s.closed = true
	s.running = false
	runtime.UnlockOSThread()
	return err
}

// Running reports whether s is between a successful Start and Stop.
func (s *Session) Running() bool {
	return s.running
}

// Available reports whether the counter for kind k is open.
func (s *Session) Available(k Kind) bool {
	return k.Valid() && s.slots[k].h != nil
}

// Enabled reports whether kind k will be counted by the next Start.
func (s *Session) Enabled(k Kind) bool {
	return k.Valid() && s.slots[k].active()
}

// Err returns why the counter for kind k could not be opened, or nil if it
// is available.
func (s *Session) Err(k Kind) error {
	if !k.Valid() {
		return fmt.Errorf("%s: %w", k, ErrInvalidKind)
	}
	return s.slots[k].err
}

// LastError returns the text of the most recent failure recorded by s,
// including per-kind failures that did not cause an operation to fail. It
// returns "" if nothing has failed.
func (s *Session) LastError() string {
	return s.lastErr
}

// Probe opens and immediately closes the counter of every kind and returns
// the error for each kind that could not be opened. Available kinds map to
// nil. Only [WithExcludeKernel] and [WithKinds] affect Probe.
func Probe(opts ...Option) map[Kind]error {
	cfg := newConfig(opts)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	res := make(map[Kind]error, NumKinds)
	for _, k := range Kinds() {
		if !cfg.wants(k) {
			continue
		}
		h, err := cfg.open(k, cfg)
		if err == nil {
			err = h.Close()
		}
		res[k] = err
	}
	return res
}
