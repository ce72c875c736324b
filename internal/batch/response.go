// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"errors"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/afero"
)

// RunResponse is the API view of a run. Stdout and Stderr are only present once the run is
// terminal.
type RunResponse struct {
	Key        string   `json:"key"`
	Dir        string   `json:"dir"`
	Status     Status   `json:"status"`
	ExitCode   *int     `json:"exit_code,omitempty"`
	StartedAt  *float64 `json:"started_at,omitempty"`
	FinishedAt *float64 `json:"finished_at,omitempty"`
	Stdout     *string  `json:"stdout,omitempty"`
	Stderr     *string  `json:"stderr,omitempty"`

	stdoutPath string
	stderrPath string
}

// Response is the API view of a batch.
type Response struct {
	ID        string        `json:"id"`
	Command   []string      `json:"command"`
	CreatedAt float64       `json:"created_at"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Done      bool          `json:"done"`
	Runs      []RunResponse `json:"runs"`
}

// Summary is the per-batch entry of a listing.
type Summary struct {
	ID        string   `json:"id"`
	Command   []string `json:"command"`
	CreatedAt float64  `json:"created_at"`
	Total     int      `json:"total"`
	Completed int      `json:"completed"`
	Done      bool     `json:"done"`
}

// ListResponse lists every batch without per-run detail.
type ListResponse struct {
	Batches []Summary `json:"batches"`
}

// OutputChunk is a slice of a run's stdout starting at a byte offset.
type OutputChunk struct {
	Content string `json:"content"`
	Offset  int64  `json:"offset"`
	Done    bool   `json:"done"`
}

// Tally counts the runs that finished in each terminal state.
func (r *Response) Tally() (succeeded, failed, cancelled int) {
	for _, run := range r.Runs {
		switch run.Status {
		case StatusSucceeded:
			succeeded++
		case StatusFailed:
			failed++
		case StatusCancelled:
			cancelled++
		}
	}

	return succeeded, failed, cancelled
}

// Succeeded reports whether the batch is done and every run exited 0.
func (r *Response) Succeeded() bool {
	ok, _, _ := r.Tally()
	return r.Done && ok == len(r.Runs)
}

// Epoch converts t to fractional seconds since the Unix epoch.
func Epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func epochPtr(t *time.Time) *float64 {
	if t == nil {
		return nil
	}

	v := Epoch(*t)

	return &v
}

func snapshotLocked(b *Batch) *Response {
	resp := &Response{
		ID:        b.ID,
		Command:   slices.Clone(b.Command),
		CreatedAt: Epoch(b.CreatedAt),
		Total:     len(b.Runs),
		Completed: b.CompletedCount(),
		Done:      b.IsDone(),
		Runs:      make([]RunResponse, len(b.Runs)),
	}

	for i, r := range b.Runs {
		rr := RunResponse{
			Key:        r.Key,
			Dir:        r.Dir,
			Status:     r.Status,
			StartedAt:  epochPtr(r.StartedAt),
			FinishedAt: epochPtr(r.FinishedAt),
			stdoutPath: r.StdoutPath,
			stderrPath: r.StderrPath,
		}

		if r.ExitCode != nil {
			code := *r.ExitCode
			rr.ExitCode = &code
		}

		resp.Runs[i] = rr
	}

	return resp
}

func summaryLocked(b *Batch) Summary {
	return Summary{
		ID:        b.ID,
		Command:   slices.Clone(b.Command),
		CreatedAt: Epoch(b.CreatedAt),
		Total:     len(b.Runs),
		Completed: b.CompletedCount(),
		Done:      b.IsDone(),
	}
}

// attachOutput reads captured output for terminal runs. Unreadable files are left out.
func (s *Store) attachOutput(resp *Response) {
	for i := range resp.Runs {
		rr := &resp.Runs[i]
		if !rr.Status.IsTerminal() {
			continue
		}

		rr.Stdout = s.readFile(rr.stdoutPath)
		rr.Stderr = s.readFile(rr.stderrPath)
	}
}

func (s *Store) readFile(path string) *string {
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil
	}

	str := string(b)

	return &str
}

// ReadOutput returns the stdout of run runIdx from offset onwards, for incremental tailing of
// a run that is still going. A missing file reads as empty.
func (s *Store) ReadOutput(id string, runIdx int, offset int64) (*OutputChunk, error) {
	s.mu.Lock()

	b := s.findLocked(id)
	if b == nil {
		s.mu.Unlock()
		return nil, ErrBatchNotFound
	}

	if runIdx < 0 || runIdx >= len(b.Runs) {
		s.mu.Unlock()
		return nil, ErrRunNotFound
	}

	run := b.Runs[runIdx]
	done := run.Status.IsTerminal()
	path := run.StdoutPath
	s.mu.Unlock()

	chunk := &OutputChunk{Offset: offset, Done: done}

	f, err := s.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return chunk, nil
		}

		return nil, err
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return chunk, nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	chunk.Content = string(data)
	chunk.Offset = offset + int64(len(data))

	return chunk, nil
}
