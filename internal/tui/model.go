// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/matt-FFFFFF/fanout/internal/batch"
)

const (
	defaultWidth      = 80
	defaultHeight     = 24
	progressBarWidth  = 40
	reservedLines     = 6
	durationRounding  = 100 * time.Millisecond
	minViewportHeight = 1
	minKeyColumnWidth = 8
	maxKeyColumnWidth = 32
)

// Styles contains all the styling for the TUI.
type Styles struct {
	Title     lipgloss.Style
	Pending   lipgloss.Style
	Running   lipgloss.Style
	Succeeded lipgloss.Style
	Failed    lipgloss.Style
	Cancelled lipgloss.Style
	Detail    lipgloss.Style
	Help      lipgloss.Style
	Border    lipgloss.Style
}

// NewStyles creates the default styling for the TUI.
func NewStyles() *Styles {
	return &Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		Pending: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Running: lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true),
		Succeeded: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		Failed: lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")),
		Cancelled: lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")),
		Detail: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")).
			Italic(true),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")),
	}
}

// statusStyle picks the style used for a run's key and icon.
func (s *Styles) statusStyle(st batch.Status) lipgloss.Style {
	switch st {
	case batch.StatusRunning:
		return s.Running
	case batch.StatusSucceeded:
		return s.Succeeded
	case batch.StatusFailed:
		return s.Failed
	case batch.StatusCancelled:
		return s.Cancelled
	default:
		return s.Pending
	}
}

// Model is the bubbletea model for a single batch.
type Model struct {
	batchID  string
	snapshot *batch.Response
	width    int
	height   int

	quitting        bool
	cancelRequested bool
	watchErr        error
	watchEnded      bool
	exitOnDone      bool

	// cancel asks the server to cancel the batch. It runs as a tea.Cmd.
	cancel func() error
	now    func() time.Time

	viewport viewport.Model
	spinner  spinner.Model
	progress progress.Model
	styles   *Styles
}

// NewModel creates a model following batchID. cancel may be nil, in which case ctrl+c just
// quits.
func NewModel(batchID string, cancel func() error) *Model {
	return &Model{
		batchID:  batchID,
		cancel:   cancel,
		now:      time.Now,
		width:    defaultWidth,
		height:   defaultHeight,
		viewport: viewport.New(defaultWidth-2, defaultHeight-reservedLines), //nolint:mnd
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("11"))),
		),
		progress: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(progressBarWidth),
		),
		styles: NewStyles(),
	}
}

// Snapshot returns the latest snapshot received, or nil.
func (m *Model) Snapshot() *batch.Response {
	return m.snapshot
}

// CancelRequested reports whether the user asked for the batch to be cancelled.
func (m *Model) CancelRequested() bool {
	return m.cancelRequested
}

// Err returns the error that ended the watch stream, if any.
func (m *Model) Err() error {
	return m.watchErr
}

// done reports whether the last snapshot is final.
func (m *Model) done() bool {
	return m.snapshot != nil && m.snapshot.Done
}

// fraction is the share of runs that have finished.
func (m *Model) fraction() float64 {
	if m.snapshot == nil || m.snapshot.Total == 0 {
		return 0
	}

	return float64(m.snapshot.Completed) / float64(m.snapshot.Total)
}

func (m *Model) updateViewportSize() {
	m.viewport.Width = max(m.width-2, 1) //nolint:mnd
	m.viewport.Height = max(m.height-reservedLines, minViewportHeight)
}
