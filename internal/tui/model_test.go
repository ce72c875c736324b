// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func runningSnapshot() *batch.Response {
	return &batch.Response{
		ID:        "b1",
		Command:   []string{"make", "test"},
		Total:     2,
		Completed: 1,
		Runs: []batch.RunResponse{
			{Key: "api", Dir: "/src/api", Status: batch.StatusSucceeded, ExitCode: ptr(0), StartedAt: ptr(100.0), FinishedAt: ptr(101.5)},
			{Key: "web", Dir: "/src/web", Status: batch.StatusRunning, StartedAt: ptr(100.0)},
		},
	}
}

func doneSnapshot() *batch.Response {
	r := runningSnapshot()
	r.Completed = 2
	r.Done = true
	r.Runs[1].Status = batch.StatusFailed
	r.Runs[1].ExitCode = ptr(2)
	r.Runs[1].FinishedAt = ptr(103.0)

	return r
}

func keyMsg(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}

	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_WaitingView(t *testing.T) {
	m := NewModel("b1", nil)
	view := m.View()

	assert.Contains(t, view, "fanout batch b1")
	assert.Contains(t, view, "waiting for server...")
}

func TestModel_SnapshotView(t *testing.T) {
	m := NewModel("b1", nil)
	m.now = func() time.Time { return time.Unix(102, 0) }

	_, cmd := m.Update(SnapshotMsg{Response: runningSnapshot()})
	assert.Nil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "make test")
	assert.Contains(t, view, "api")
	assert.Contains(t, view, "succeeded")
	assert.Contains(t, view, "(1.5s)")
	assert.Contains(t, view, "web")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "(2s)")
	assert.Contains(t, view, "1/2")
	assert.Contains(t, view, "ctrl+c to cancel")
	assert.InDelta(t, 0.5, m.fraction(), 0.001)
}

func TestModel_DoneView(t *testing.T) {
	m := NewModel("b1", nil)
	m.Update(SnapshotMsg{Response: doneSnapshot()})

	view := m.View()
	assert.Contains(t, view, "2/2")
	assert.Contains(t, view, "exit 2")
	assert.Contains(t, view, "1 failed, 0 cancelled")
	assert.Contains(t, view, "'q' to quit")

	ok := doneSnapshot()
	ok.Runs[1].Status = batch.StatusSucceeded
	ok.Runs[1].ExitCode = ptr(0)
	m.Update(SnapshotMsg{Response: ok})
	assert.Contains(t, m.View(), "all runs succeeded")
}

func TestModel_QuitKey(t *testing.T) {
	m := NewModel("b1", func() error {
		t.Fatal("q must not cancel")
		return nil
	})

	_, cmd := m.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, m.CancelRequested())
	assert.Empty(t, m.View())
}

func TestModel_CtrlCCancelsThenQuits(t *testing.T) {
	calls := 0
	m := NewModel("b1", func() error {
		calls++
		return nil
	})
	m.Update(SnapshotMsg{Response: runningSnapshot()})

	_, cmd := m.Update(keyMsg("ctrl+c"))
	require.NotNil(t, cmd)
	assert.True(t, m.CancelRequested())
	assert.Contains(t, m.View(), "cancelling...")

	msg := cmd()
	assert.Equal(t, cancelResultMsg{}, msg)
	assert.Equal(t, 1, calls)

	m.Update(msg)
	require.NoError(t, m.Err())

	_, cmd = m.Update(keyMsg("ctrl+c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, calls)
}

func TestModel_CtrlCAfterDoneQuits(t *testing.T) {
	m := NewModel("b1", func() error {
		t.Fatal("done batch must not be cancelled")
		return nil
	})
	m.Update(SnapshotMsg{Response: doneSnapshot()})

	_, cmd := m.Update(keyMsg("ctrl+c"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_CancelError(t *testing.T) {
	errBoom := errors.New("boom")
	m := NewModel("b1", func() error { return errBoom })
	m.Update(SnapshotMsg{Response: runningSnapshot()})

	_, cmd := m.Update(keyMsg("ctrl+c"))
	m.Update(cmd())

	require.ErrorIs(t, m.Err(), errBoom)
	assert.Contains(t, m.View(), "cancel failed: boom")
}

func TestModel_WatchEnded(t *testing.T) {
	m := NewModel("b1", nil)
	m.Update(SnapshotMsg{Response: runningSnapshot()})

	_, cmd := m.Update(WatchEndedMsg{})
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "watch stream closed")

	m.exitOnDone = true
	_, cmd = m.Update(WatchEndedMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel("b1", nil)
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 118, m.viewport.Width)
	assert.Equal(t, 40-reservedLines, m.viewport.Height)

	m.Update(tea.WindowSizeMsg{Width: 1, Height: 2})
	assert.Equal(t, 1, m.viewport.Width)
	assert.Equal(t, minViewportHeight, m.viewport.Height)
}

func TestModel_LongKeysAreTruncated(t *testing.T) {
	m := NewModel("b1", nil)
	long := "a-very-long-run-key-that-will-not-fit-in-the-column"
	m.Update(SnapshotMsg{Response: &batch.Response{
		Total: 1,
		Runs:  []batch.RunResponse{{Key: long, Dir: "/x"}},
	}})

	content := m.renderRuns()
	assert.NotContains(t, content, long)
	assert.Contains(t, content, long[:maxKeyColumnWidth-len(ellipsis)]+ellipsis)
}
