// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T {
	return &v
}

func TestRenderTerminal_FailureInfo(t *testing.T) {
	resp := &Response{
		ID:        "b1",
		Command:   []string{"test"},
		Total:     2,
		Completed: 2,
		Done:      true,
		Runs: []RunResponse{
			{Key: "beta", Dir: "/tmp", Status: StatusFailed, ExitCode: ptr(127), Stderr: ptr("sh: bad_cmd: command not found\n")},
			{Key: "alpha", Dir: "/tmp", Status: StatusSucceeded, ExitCode: ptr(0), Stdout: ptr("ok\n")},
		},
	}

	want := "## alpha\nok\n\n" +
		"## beta FAILED (exit 127)\nsh: bad_cmd: command not found\n\n" +
		"1/2 succeeded, 1 failed, 0 cancelled\n"

	assert.Equal(t, want, resp.RenderTerminal())
}

func TestRenderTerminal_FailedWithoutExitCode(t *testing.T) {
	resp := &Response{
		Total: 1,
		Runs: []RunResponse{
			{Key: "proj", Status: StatusFailed, Stderr: ptr("spawn error: no such file")},
		},
	}

	out := resp.RenderTerminal()
	assert.Contains(t, out, "## proj FAILED\n")
	assert.Contains(t, out, "spawn error: no such file\n")
}

func TestRenderTerminal_AllSucceededHasNoTally(t *testing.T) {
	resp := &Response{
		Total: 2,
		Runs: []RunResponse{
			{Key: "a", Status: StatusSucceeded, Stdout: ptr("one"), Stderr: ptr("")},
			{Key: "b", Status: StatusSucceeded, Stdout: ptr("two\n"), Stderr: ptr("warn")},
		},
	}

	assert.Equal(t, "## a\none\n\n## b\ntwo\nwarn\n\n", resp.RenderTerminal())
}

func TestRenderTerminal_Cancelled(t *testing.T) {
	resp := &Response{
		Total: 2,
		Runs: []RunResponse{
			{Key: "a", Status: StatusCancelled},
			{Key: "b", Status: StatusSucceeded},
		},
	}

	assert.Equal(t, "## a CANCELLED\n\n## b\n\n1/2 succeeded, 0 failed, 1 cancelled\n", resp.RenderTerminal())
}

func TestListRenderTerminal(t *testing.T) {
	assert.Equal(t, "No batches\n", (&ListResponse{}).RenderTerminal(time.Now()))

	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	list := &ListResponse{
		Batches: []Summary{
			{ID: "b1", Command: []string{"git", "pull"}, CreatedAt: Epoch(created), Total: 3, Completed: 3, Done: true},
			{ID: "b2", Command: []string{"make"}, CreatedAt: Epoch(created), Total: 2, Completed: 1},
		},
	}

	want := "b1 (3/3) [done] git pull (1 minute ago)\n" +
		"b2 (1/2) [running] make (1 minute ago)\n"

	assert.Equal(t, want, list.RenderTerminal(created.Add(90*time.Second)))
}

func TestTallyAndSucceeded(t *testing.T) {
	r := &Response{
		Total: 3,
		Runs: []RunResponse{
			{Key: "a", Status: StatusSucceeded},
			{Key: "b", Status: StatusFailed},
			{Key: "c", Status: StatusRunning},
		},
	}

	ok, failed, cancelled := r.Tally()
	assert.Equal(t, []int{1, 1, 0}, []int{ok, failed, cancelled})
	assert.False(t, r.Succeeded())

	r.Runs[1].Status = StatusSucceeded
	r.Runs[2].Status = StatusSucceeded
	assert.False(t, r.Succeeded(), "not done yet")

	r.Done = true
	assert.True(t, r.Succeeded())
}
