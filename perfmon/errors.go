// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import "errors"

var (
	// ErrAlreadyRunning is returned by [Session.Start] on a running session.
	ErrAlreadyRunning = errors.New("perfmon: monitoring already running")

	// ErrNotRunning is returned by [Session.Stop] on an idle session.
	ErrNotRunning = errors.New("perfmon: monitoring not running")

	// ErrInvalidKind reports a kind outside [0, NumKinds) or an unknown kind
	// name.
	ErrInvalidKind = errors.New("perfmon: invalid counter kind")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("perfmon: session closed")

	errNotOpened = errors.New("counter not opened")
)

// A KindError records a failure to open, control or read the counter of a
// single kind. These failures never abort a session: the kind reads as zero
// instead.
type KindError struct {
	Kind Kind
	Op   string // "open", "reset", "enable", "disable" or "read"
	Err  error
}

func (e *KindError) Error() string {
	return "perfmon: " + e.Op + " " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *KindError) Unwrap() error {
	return e.Err
}
