// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
)

// Source is the part of the API client the TUI needs.
type Source interface {
	Watch(ctx context.Context, id string, fn func(*batch.Response)) error
	CancelBatch(ctx context.Context, id string) (*batch.Response, error)
}

// Runner manages the TUI application and the watch stream feeding it.
type Runner struct {
	model       *Model
	src         Source
	batchID     string
	programOpts []tea.ProgramOption
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithProgramOptions passes options through to the bubbletea program.
func WithProgramOptions(opts ...tea.ProgramOption) RunnerOption {
	return func(r *Runner) {
		r.programOpts = append(r.programOpts, opts...)
	}
}

// WithExitOnDone quits the TUI once the batch is done instead of waiting for a key press.
func WithExitOnDone() RunnerOption {
	return func(r *Runner) {
		r.model.exitOnDone = true
	}
}

// NewRunner creates a new TUI runner following batchID through src.
func NewRunner(ctx context.Context, src Source, batchID string, opts ...RunnerOption) *Runner {
	cancel := func() error {
		_, err := src.CancelBatch(ctx, batchID)
		if err == nil {
			ctxlog.Info(ctx, "cancel requested", "batch", batchID)
		}

		return err
	}

	r := &Runner{
		model:   NewModel(batchID, cancel),
		src:     src,
		batchID: batchID,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run shows the TUI until the user quits, returning the last snapshot seen.
func (r *Runner) Run(ctx context.Context) (*batch.Response, error) {
	opts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, r.programOpts...)
	program := tea.NewProgram(r.model, opts...)

	watchCtx, stopWatch := context.WithCancel(ctx)

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		err := r.src.Watch(watchCtx, r.batchID, func(resp *batch.Response) {
			program.Send(SnapshotMsg{Response: resp})
		})

		if errors.Is(err, context.Canceled) && watchCtx.Err() != nil {
			return
		}

		program.Send(WatchEndedMsg{Err: err})
	}()

	_, err := program.Run()

	stopWatch()
	wg.Wait()

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = ctx.Err()
	}

	if err == nil {
		err = r.model.Err()
	}

	return r.model.Snapshot(), err
}

// CancelRequested reports whether the user asked for the batch to be cancelled.
func (r *Runner) CancelRequested() bool {
	return r.model.CancelRequested()
}
