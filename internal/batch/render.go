// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// RenderTerminal formats the batch for a terminal: one heading per run sorted by key, the
// captured stdout then stderr, and a tally line when anything failed or was cancelled.
func (r *Response) RenderTerminal() string {
	runs := slices.Clone(r.Runs)
	slices.SortFunc(runs, func(a, b RunResponse) int {
		return strings.Compare(a.Key, b.Key)
	})

	var sb strings.Builder

	for _, run := range runs {
		sb.WriteString("## ")
		sb.WriteString(run.Key)

		switch run.Status {
		case StatusFailed:
			sb.WriteString(" FAILED")

			if run.ExitCode != nil {
				fmt.Fprintf(&sb, " (exit %d)", *run.ExitCode)
			}
		case StatusCancelled:
			sb.WriteString(" CANCELLED")
		}

		sb.WriteByte('\n')
		writeSection(&sb, run.Stdout)
		writeSection(&sb, run.Stderr)
		sb.WriteByte('\n')
	}

	if succeeded, failed, cancelled := r.Tally(); failed+cancelled > 0 {
		fmt.Fprintf(&sb, "%d/%d succeeded, %d failed, %d cancelled\n", succeeded, r.Total, failed, cancelled)
	}

	return sb.String()
}

func writeSection(sb *strings.Builder, s *string) {
	if s == nil || *s == "" {
		return
	}

	sb.WriteString(*s)

	if !strings.HasSuffix(*s, "\n") {
		sb.WriteByte('\n')
	}
}

// RenderTerminal formats one line per batch with its age relative to now.
func (l *ListResponse) RenderTerminal(now time.Time) string {
	if len(l.Batches) == 0 {
		return "No batches\n"
	}

	var sb strings.Builder

	for _, b := range l.Batches {
		state := "running"
		if b.Done {
			state = "done"
		}

		created := time.Unix(0, int64(b.CreatedAt*float64(time.Second)))

		fmt.Fprintf(&sb, "%s (%d/%d) [%s] %s (%s)\n",
			b.ID, b.Completed, b.Total, state, strings.Join(b.Command, " "),
			humanize.RelTime(created, now, "ago", "from now"),
		)
	}

	return sb.String()
}
