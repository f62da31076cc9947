// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

// Package perf opens and controls individual Linux perf_event counters.
package perf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/go-perfmon/perfmon/events"
)

// ErrShortRead is returned by [Counter.ReadOne] when the kernel returned
// fewer bytes than a full count.
var ErrShortRead = errors.New("short read from perf event")

// Options control how a [Counter] is opened.
type Options struct {
	// Inherit extends counting to threads and child processes created by the
	// monitored thread after the counter is opened.
	Inherit bool

	// ExcludeKernel excludes events that happen in the kernel and the
	// hypervisor. Unprivileged users need this when perf_event_paranoid is 2.
	ExcludeKernel bool
}

// A Counter reports the number of times an [events.Event] occurred on the
// calling thread across all CPUs.
//
// The counter is created disabled. A Counter is not safe for concurrent use.
type Counter struct {
	event events.Event
	f     *os.File

	running bool
	readBuf []byte
}

// readSize is the size of a read with
// PERF_FORMAT_TOTAL_TIME_ENABLED|PERF_FORMAT_TOTAL_TIME_RUNNING and no group.
const readSize = 3 * 8

// OpenCounter returns a new disabled [Counter] for ev on the calling thread.
// Callers are expected to call [Counter.Close] when done with this Counter.
//
// The kernel binds the counter to the OS thread that opens it. Go callers
// that want stable results should call [runtime.LockOSThread] first.
func OpenCounter(ev events.Event, opts Options) (*Counter, error) {
	attr := unix.PerfEventAttr{}
	attr.Size = uint32(unsafe.Sizeof(attr))
	if err := ev.SetAttrs(&attr); err != nil {
		return nil, err
	}
	attr.Read_format = unix.PERF_FORMAT_TOTAL_TIME_ENABLED |
		unix.PERF_FORMAT_TOTAL_TIME_RUNNING
	attr.Bits = unix.PerfBitDisabled
	if opts.Inherit {
		attr.Bits |= unix.PerfBitInherit
	}
	if opts.ExcludeKernel {
		attr.Bits |= unix.PerfBitExcludeKernel | unix.PerfBitExcludeHv
	}

	fd, err := unix.PerfEventOpen(&attr, 0, -1, -1, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return nil, decorateOpenError(err)
	}
	return &Counter{
		event:   ev,
		f:       os.NewFile(uintptr(fd), "<perf-event "+ev.String()+">"),
		readBuf: make([]byte, readSize),
	}, nil
}

func decorateOpenError(err error) error {
	if !errors.Is(err, syscall.EACCES) && !errors.Is(err, syscall.EPERM) {
		return err
	}
	const path = "/proc/sys/kernel/perf_event_paranoid"
	data, err2 := os.ReadFile(path)
	data = bytes.TrimSpace(data)
	if val, err3 := strconv.Atoi(string(data)); err2 != nil || err3 != nil || val > 0 {
		// We can't read it, or it's set to > 0.
		return fmt.Errorf("%w (consider: echo 0 | sudo tee %s)", err, path)
	}
	return err
}

// Close closes this counter. Closing an already-closed Counter is a no-op.
func (c *Counter) Close() error {
	if c == nil || c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	c.running = false
	return err
}

func (c *Counter) ioctl(req uint) error {
	if c.f == nil {
		return os.ErrClosed
	}
	return unix.IoctlSetInt(int(c.f.Fd()), req, 0)
}

// Start enables the counter. It does not reset it.
func (c *Counter) Start() error {
	if err := c.ioctl(unix.PERF_EVENT_IOC_ENABLE); err != nil {
		return fmt.Errorf("enable %s: %w", c.event, err)
	}
	c.running = true
	return nil
}

// Stop disables the counter. The count keeps its value until the next Reset.
func (c *Counter) Stop() error {
	if err := c.ioctl(unix.PERF_EVENT_IOC_DISABLE); err != nil {
		return fmt.Errorf("disable %s: %w", c.event, err)
	}
	c.running = false
	return nil
}

// Reset sets the count to zero. It does not reset the enabled and running
// times and does not change whether the counter is running.
func (c *Counter) Reset() error {
	if err := c.ioctl(unix.PERF_EVENT_IOC_RESET); err != nil {
		return fmt.Errorf("reset %s: %w", c.event, err)
	}
	return nil
}

// Running reports whether the counter was started and not stopped since.
func (c *Counter) Running() bool {
	return c != nil && c.running
}

// Count is the value of a Counter.
type Count struct {
	RawValue uint64 // The number of events while this counter was running.

	// Normally, TimeEnabled == TimeRunning. However, if more counters are
	// running than the hardware can support, events will be multiplexed onto
	// the hardware. In that case, TimeRunning < TimeEnabled and RawValue
	// undercounts the event.

	TimeEnabled uint64 // Total time the Counter was started, in ns.
	TimeRunning uint64 // Total time the Counter was actually counting, in ns.
}

// ReadOne returns the current value of c. If the kernel returns fewer bytes
// than a full count, ReadOne returns a zero Count and an error wrapping
// [ErrShortRead].
func (c *Counter) ReadOne() (Count, error) {
	// TODO: Use RDPMC when possible.
	if c == nil {
		return Count{}, nil
	}
	if c.f == nil {
		return Count{}, fmt.Errorf("read %s: %w", c.event, os.ErrClosed)
	}

	n, err := c.f.Read(c.readBuf)
	if err != nil && err != io.EOF {
		return Count{}, fmt.Errorf("read %s: %w", c.event, err)
	}
	return decodeCount(c.readBuf[:n], c.event)
}

func decodeCount(buf []byte, ev events.Event) (Count, error) {
	if len(buf) < readSize {
		return Count{}, fmt.Errorf("read %s: %w: got %d of %d bytes", ev, ErrShortRead, len(buf), readSize)
	}
	return Count{
		RawValue:    binary.NativeEndian.Uint64(buf[0:]),
		TimeEnabled: binary.NativeEndian.Uint64(buf[8:]),
		TimeRunning: binary.NativeEndian.Uint64(buf[16:]),
	}, nil
}
