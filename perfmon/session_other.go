// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package perfmon

import "errors"

func openCounter(Kind, *config) (handle, error) {
	return nil, errors.ErrUnsupported
}

// IsSupported reports whether this process can open a cycle counter. It is
// always false outside Linux.
func IsSupported() bool { return false }

func parseKindAlias(string) (Kind, bool) { return 0, false }
