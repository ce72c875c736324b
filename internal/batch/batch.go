// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var (
	// ErrEmptyCommand is returned when a request has no command.
	ErrEmptyCommand = errors.New("command must not be empty")
	// ErrEmptyRuns is returned when a request has no runs.
	ErrEmptyRuns = errors.New("runs must not be empty")
	// ErrInvalidRun is returned when a run has no key or no directory.
	ErrInvalidRun = errors.New("invalid run")
	// ErrDuplicateKey is returned when two runs of one request share a key.
	ErrDuplicateKey = errors.New("duplicate run key")
	// ErrBatchNotFound is returned for an unknown batch id.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrRunNotFound is returned for a run index outside the batch.
	ErrRunNotFound = errors.New("run not found")
	// ErrOutputDir is returned when the batch output directory or files cannot be created.
	ErrOutputDir = errors.New("could not create batch output")
)

// RunSpec names one working directory to run the command in.
type RunSpec struct {
	Key string `json:"key"`
	Dir string `json:"dir"`
}

// Request asks for Command to be run once in every directory of Runs.
type Request struct {
	Command []string  `json:"command"`
	Runs    []RunSpec `json:"runs"`
}

// Validate checks the request without touching any state.
func (r Request) Validate() error {
	if len(r.Command) == 0 {
		return ErrEmptyCommand
	}

	if len(r.Runs) == 0 {
		return ErrEmptyRuns
	}

	seen := make(map[string]struct{}, len(r.Runs))

	for i, rs := range r.Runs {
		if rs.Key == "" {
			return fmt.Errorf("%w: runs[%d] has no key", ErrInvalidRun, i)
		}

		if rs.Dir == "" {
			return fmt.Errorf("%w: runs[%d] (%s) has no dir", ErrInvalidRun, i, rs.Key)
		}

		if _, ok := seen[rs.Key]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, rs.Key)
		}

		seen[rs.Key] = struct{}{}
	}

	return nil
}

// Batch is one command fanned out over a fixed set of runs. All fields are guarded by the
// owning Store's lock.
type Batch struct {
	ID        string
	Command   []string
	CreatedAt time.Time
	Runs      []*Run
	outputDir string
}

// CompletedCount is the number of runs in a terminal state.
func (b *Batch) CompletedCount() int {
	n := 0

	for _, r := range b.Runs {
		if r.Status.IsTerminal() {
			n++
		}
	}

	return n
}

// IsDone reports whether every run is in a terminal state.
func (b *Batch) IsDone() bool {
	return b.CompletedCount() == len(b.Runs)
}

// Run is one execution of the batch command in one directory. It is mutated only by its own
// worker and by cancellation.
type Run struct {
	Key        string
	Dir        string
	Status     Status
	ExitCode   *int
	StdoutPath string
	StderrPath string
	PID        int
	StartedAt  *time.Time
	FinishedAt *time.Time
	proc       *os.Process
}
