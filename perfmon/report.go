// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perfmon

import (
	"bytes"
	"fmt"
	"io"
)

// WriteReport writes s to w in a layout similar to "perf stat".
func WriteReport(w io.Writer, s Snapshot) error {
	var buf bytes.Buffer
	buf.WriteString("\nPerformance Statistics:\n")
	buf.WriteString("======================\n")
	for _, k := range Kinds() {
		fmt.Fprintf(&buf, "%20d      %-26s", s.Counts[k], k)
		switch k {
		case Instructions:
			fmt.Fprintf(&buf, "#    %.2f  insn per cycle", s.InstructionsPerCycle)
		case BranchMisses:
			fmt.Fprintf(&buf, "#    %.2f%% of all branches", s.BranchMissRate)
		case CacheMisses:
			fmt.Fprintf(&buf, "#    %.3f%% of all cache refs", s.CacheMissRate)
		}
		buf.Truncate(len(bytes.TrimRight(buf.Bytes(), " ")))
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, "\n%20.9f seconds time elapsed\n", s.ElapsedSeconds())
	_, err := w.Write(buf.Bytes())
	return err
}

// FormatReport returns the report written by [WriteReport].
func FormatReport(s Snapshot) string {
	var buf bytes.Buffer
	WriteReport(&buf, s)
	return buf.String()
}
