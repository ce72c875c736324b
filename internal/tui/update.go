// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/fanout/internal/batch"
)

const ellipsis = "..."

// SnapshotMsg carries a batch snapshot from the watch stream.
type SnapshotMsg struct {
	Response *batch.Response
}

// WatchEndedMsg is sent when the watch stream closes. Err is nil for a normal close.
type WatchEndedMsg struct {
	Err error
}

// cancelResultMsg reports the outcome of a cancel request.
type cancelResultMsg struct {
	err error
}

// Init implements bubbletea.Model.Init.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements bubbletea.Model.Update.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateViewportSize()
		m.refresh()

		return m, nil

	case SnapshotMsg:
		m.snapshot = msg.Response
		m.refresh()

		return m, nil

	case WatchEndedMsg:
		m.watchEnded = true
		m.watchErr = msg.Err

		if m.exitOnDone {
			m.quitting = true
			return m, tea.Quit
		}

		return m, nil

	case cancelResultMsg:
		if msg.err != nil {
			m.watchErr = fmt.Errorf("cancel failed: %w", msg.err)
		}

		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd

		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()

		return m, cmd
	}

	return m, nil
}

// handleKeyPress processes keyboard input. Keys that are not bindings scroll the viewport.
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.quitting = true
		return m, tea.Quit

	case "ctrl+c":
		if m.done() || m.cancelRequested || m.cancel == nil {
			m.quitting = true
			return m, tea.Quit
		}

		m.cancelRequested = true
		cancel := m.cancel

		return m, func() tea.Msg {
			return cancelResultMsg{err: cancel()}
		}
	}

	var cmd tea.Cmd

	m.viewport, cmd = m.viewport.Update(msg)

	return m, cmd
}

// refresh re-renders the run list into the viewport.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderRuns())
}

// View implements bubbletea.Model.View.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var view strings.Builder

	view.WriteString(m.styles.Title.Render("fanout batch " + m.batchID))

	if m.snapshot != nil {
		view.WriteString(" ")
		view.WriteString(m.styles.Detail.Render(batch.CommandLine(m.snapshot.Command)))
	}

	view.WriteString("\n")
	view.WriteString(m.styles.Border.Render(m.viewport.View()))
	view.WriteString("\n")
	view.WriteString(m.renderStatusBar())
	view.WriteString("\n")
	view.WriteString(m.styles.Help.Render(m.helpText()))

	return view.String()
}

func (m *Model) helpText() string {
	switch {
	case m.done():
		return "↑/↓ to scroll, 'q' to quit"
	case m.cancelRequested:
		return "cancelling... 'q' to quit without waiting"
	default:
		return "↑/↓ to scroll, 'q' to detach, ctrl+c to cancel the batch"
	}
}

// renderStatusBar draws the progress bar with counts, and any stream error.
func (m *Model) renderStatusBar() string {
	var b strings.Builder

	b.WriteString(m.progress.ViewAs(m.fraction()))

	if m.snapshot != nil {
		fmt.Fprintf(&b, " %d/%d", m.snapshot.Completed, m.snapshot.Total)
	}

	if m.done() {
		b.WriteString(" ")
		b.WriteString(m.renderOutcome())
	}

	if m.watchErr != nil {
		b.WriteString("\n")
		b.WriteString(m.styles.Failed.Render("Error: " + m.watchErr.Error()))
	} else if m.watchEnded && !m.done() {
		b.WriteString("\n")
		b.WriteString(m.styles.Failed.Render("watch stream closed"))
	}

	return b.String()
}

func (m *Model) renderOutcome() string {
	_, failed, cancelled := m.snapshot.Tally()

	if failed+cancelled == 0 {
		return m.styles.Succeeded.Render("✅ all runs succeeded")
	}

	return m.styles.Failed.Render(fmt.Sprintf("⚠️  %d failed, %d cancelled", failed, cancelled))
}

// renderRuns renders one line per run, in request order.
func (m *Model) renderRuns() string {
	if m.snapshot == nil {
		return m.styles.Pending.Render("waiting for server...")
	}

	keyWidth := minKeyColumnWidth
	for _, run := range m.snapshot.Runs {
		keyWidth = max(keyWidth, len(run.Key))
	}

	keyWidth = min(keyWidth, maxKeyColumnWidth)

	var b strings.Builder

	for _, run := range m.snapshot.Runs {
		m.renderRun(&b, run, keyWidth)
	}

	return b.String()
}

func (m *Model) renderRun(b *strings.Builder, run batch.RunResponse, keyWidth int) {
	style := m.styles.statusStyle(run.Status)

	key := run.Key
	if len(key) > keyWidth {
		key = key[:keyWidth-len(ellipsis)] + ellipsis
	}

	b.WriteString(m.statusIcon(run.Status))
	b.WriteString(" ")
	b.WriteString(style.Render(fmt.Sprintf("%-*s", keyWidth, key)))
	b.WriteString(" ")
	b.WriteString(style.Render(fmt.Sprintf("%-9s", run.Status)))

	if d, ok := m.elapsed(run); ok {
		b.WriteString(m.styles.Detail.Render(fmt.Sprintf(" (%v)", d)))
	}

	if run.ExitCode != nil && *run.ExitCode != 0 {
		b.WriteString(m.styles.Failed.Render(fmt.Sprintf(" exit %d", *run.ExitCode)))
	}

	b.WriteString(" ")
	b.WriteString(m.styles.Detail.Render(run.Dir))
	b.WriteString("\n")
}

func (m *Model) statusIcon(st batch.Status) string {
	switch st {
	case batch.StatusRunning:
		return m.spinner.View()
	case batch.StatusSucceeded:
		return "✅"
	case batch.StatusFailed:
		return "❌"
	case batch.StatusCancelled:
		return "⛔"
	default:
		return "⏳"
	}
}

// elapsed is the run time so far, or the total once the run has finished.
func (m *Model) elapsed(run batch.RunResponse) (time.Duration, bool) {
	if run.StartedAt == nil {
		return 0, false
	}

	end := batch.Epoch(m.now())
	if run.FinishedAt != nil {
		end = *run.FinishedAt
	}

	secs := math.Max(end-*run.StartedAt, 0)

	return time.Duration(secs * float64(time.Second)).Round(durationRounding), true
}
