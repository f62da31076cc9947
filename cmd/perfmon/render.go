// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-perfmon/perfmon/perfmon"
)

const (
	formatTable = "table"
	formatText  = "text"
	formatJSON  = "json"
)

var formatOptions = []string{formatTable, formatText, formatJSON}

func validFormat(f string) bool {
	return slices.Contains(formatOptions, f)
}

const notCounted = "<not counted>"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	numberStyle   = cellStyle.Align(lipgloss.Right)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// A renderer writes command results in one output format.
type renderer struct {
	format string
	w      io.Writer
}

type labeledSnapshot struct {
	Label string           `json:"label"`
	Stats perfmon.Snapshot `json:"stats"`
}

func (r *renderer) json(v any) error {
	enc := json.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *renderer) title(s string) {
	fmt.Fprintln(r.w, titleStyle.Render(s))
	fmt.Fprintln(r.w, strings.Repeat("═", max(len(s), 40)))
}

func newTable(headers []string, numeric func(col int) bool) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if numeric != nil && numeric(col) {
				return numberStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// annotation returns the derived metric printed next to kind k, if any.
func annotation(s perfmon.Snapshot, k perfmon.Kind) string {
	switch k {
	case perfmon.Instructions:
		return fmt.Sprintf("%.2f insn per cycle", s.InstructionsPerCycle)
	case perfmon.BranchMisses:
		return fmt.Sprintf("%.2f%% of all branches", s.BranchMissRate)
	case perfmon.CacheMisses:
		return fmt.Sprintf("%.3f%% of all cache refs", s.CacheMissRate)
	}
	return ""
}

// snapshot writes one measurement. Kinds for which counted returns false are
// shown as not counted in the table format.
func (r *renderer) snapshot(title string, s perfmon.Snapshot, counted func(perfmon.Kind) bool) error {
	switch r.format {
	case formatJSON:
		return r.json(labeledSnapshot{title, s})
	case formatText:
		fmt.Fprintf(r.w, "\n%s:\n", title)
		return perfmon.WriteReport(r.w, s)
	}

	r.title(title)
	t := newTable([]string{"KIND", "COUNT", "NOTE"}, func(col int) bool { return col == 1 })
	for _, k := range perfmon.Kinds() {
		if counted != nil && !counted(k) {
			t.Row(k.String(), disabledStyle.Render(notCounted), "")
			continue
		}
		t.Row(k.String(), fmt.Sprint(s.Count(k)), annotation(s, k))
	}
	fmt.Fprintln(r.w, t)
	fmt.Fprintf(r.w, "%.9f seconds time elapsed\n\n", s.ElapsedSeconds())
	return nil
}

// compare writes several measurements side by side.
func (r *renderer) compare(title string, rows []labeledSnapshot) error {
	switch r.format {
	case formatJSON:
		return r.json(struct {
			Title        string            `json:"title"`
			Measurements []labeledSnapshot `json:"measurements"`
		}{title, rows})
	case formatText:
		fmt.Fprintf(r.w, "\n%s:\n\n", title)
		fmt.Fprintf(r.w, "%-10s %15s  %15s  %8s  %6s\n", "Workload", "Cycles", "Instructions", "Time(s)", "IPC")
		for _, row := range rows {
			s := row.Stats
			fmt.Fprintf(r.w, "%-10s %15d  %15d  %8.3f  %6.2f\n",
				row.Label, s.Count(perfmon.Cycles), s.Count(perfmon.Instructions), s.ElapsedSeconds(), s.InstructionsPerCycle)
		}
		return nil
	}

	r.title(title)
	t := newTable([]string{"WORKLOAD", "CYCLES", "INSTRUCTIONS", "TIME(S)", "IPC"}, func(col int) bool { return col > 0 })
	for _, row := range rows {
		s := row.Stats
		t.Row(row.Label,
			fmt.Sprint(s.Count(perfmon.Cycles)),
			fmt.Sprint(s.Count(perfmon.Instructions)),
			fmt.Sprintf("%.3f", s.ElapsedSeconds()),
			fmt.Sprintf("%.2f", s.InstructionsPerCycle))
	}
	fmt.Fprintln(r.w, t)
	fmt.Fprintln(r.w)
	return nil
}

type probeResult struct {
	Kind      string `json:"kind"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

func probeResults(res map[perfmon.Kind]error) []probeResult {
	var out []probeResult
	for _, k := range perfmon.Kinds() {
		err, ok := res[k]
		if !ok {
			continue
		}
		pr := probeResult{Kind: k.String(), Available: err == nil}
		if err != nil {
			pr.Error = err.Error()
		}
		out = append(out, pr)
	}
	return out
}

// probe writes whether the system supports counting and which kinds it can
// count.
func (r *renderer) probe(supported bool, res map[perfmon.Kind]error) error {
	results := probeResults(res)
	switch r.format {
	case formatJSON:
		return r.json(struct {
			Supported bool          `json:"supported"`
			Kinds     []probeResult `json:"kinds"`
		}{supported, results})
	case formatText:
		if supported {
			fmt.Fprintln(r.w, "Performance monitoring is SUPPORTED on this system.")
		} else {
			fmt.Fprintln(r.w, "Performance monitoring is NOT SUPPORTED on this system.")
		}
		for _, pr := range results {
			if pr.Available {
				fmt.Fprintf(r.w, "  %-20s available\n", pr.Kind)
			} else {
				fmt.Fprintf(r.w, "  %-20s unavailable: %s\n", pr.Kind, pr.Error)
			}
		}
		r.hints(supported)
		return nil
	}

	if supported {
		r.title("Performance monitoring is " + okStyle.Render("SUPPORTED"))
	} else {
		r.title("Performance monitoring is " + errStyle.Render("NOT SUPPORTED"))
	}
	t := newTable([]string{"KIND", "STATUS", "DETAIL"}, nil)
	for _, pr := range results {
		if pr.Available {
			t.Row(pr.Kind, okStyle.Render("AVAILABLE"), "")
		} else {
			t.Row(pr.Kind, errStyle.Render("UNAVAILABLE"), pr.Error)
		}
	}
	fmt.Fprintln(r.w, t)
	r.hints(supported)
	return nil
}

func (r *renderer) hints(supported bool) {
	if supported {
		return
	}
	fmt.Fprintln(r.w, "\nPossible reasons:")
	for _, h := range probeHints {
		fmt.Fprintf(r.w, "  - %s\n", h)
	}
}

// kinds lists ks with their indexes.
func (r *renderer) kinds(ks []perfmon.Kind) error {
	switch r.format {
	case formatJSON:
		type kindJSON struct {
			Index int    `json:"index"`
			Name  string `json:"name"`
		}
		out := make([]kindJSON, len(ks))
		for i, k := range ks {
			out[i] = kindJSON{int(k), k.String()}
		}
		return r.json(out)
	case formatText:
		for _, k := range ks {
			fmt.Fprintln(r.w, k)
		}
		return nil
	}

	t := newTable([]string{"INDEX", "KIND"}, func(col int) bool { return col == 0 })
	for _, k := range ks {
		t.Row(fmt.Sprint(int(k)), k.String())
	}
	fmt.Fprintln(r.w, t)
	return nil
}
