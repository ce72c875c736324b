// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/spf13/afero"
)

const (
	// DefaultShell runs every batch command line.
	DefaultShell = "/bin/sh"
	// DefaultCancelGrace is how long a cancelled process may ignore SIGTERM before it is killed.
	DefaultCancelGrace = 10 * time.Second
	// waitDelay bounds how long Wait blocks on output copying after the process has exited.
	waitDelay = 5 * time.Second
)

// Store is the registry of batches. A single mutex guards every batch and run; it is never
// held across file or process I/O.
type Store struct {
	mu        sync.Mutex
	batches   []*Batch
	nextID    atomic.Uint64
	bus       *changebus.Bus
	fs        afero.Fs
	outputDir string
	shell     string
	grace     time.Duration
	now       func() time.Time
	workers   sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithFs sets the filesystem used for batch output. Processes write to the paths directly, so
// anything other than an OS filesystem only suits tests that never spawn.
func WithFs(fs afero.Fs) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithOutputDir sets the parent directory of the per-batch output directories.
func WithOutputDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.outputDir = dir
		}
	}
}

// WithShell sets the shell used to interpret command lines.
func WithShell(shell string) Option {
	return func(s *Store) {
		if shell != "" {
			s.shell = shell
		}
	}
}

// WithCancelGrace sets the delay between SIGTERM and SIGKILL for cancelled runs.
// Zero disables the escalation.
func WithCancelGrace(d time.Duration) Option {
	return func(s *Store) {
		s.grace = d
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store that bumps bus after every mutation.
func NewStore(bus *changebus.Bus, opts ...Option) *Store {
	s := &Store{
		bus:       bus,
		fs:        afero.NewOsFs(),
		outputDir: os.TempDir(),
		shell:     DefaultShell,
		grace:     DefaultCancelGrace,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Create validates req, prepares an output directory with one stdout/stderr file pair per run
// and registers the batch with every run pending. Nothing is started.
func (s *Store) Create(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	id := fmt.Sprintf("b%d", s.nextID.Add(1))
	dir := filepath.Join(s.outputDir, fmt.Sprintf("fanout-batch-%d-%s", os.Getpid(), id))

	if err := s.fs.MkdirAll(dir, 0o700); err != nil {
		return "", errors.Join(ErrOutputDir, err)
	}

	runs := make([]*Run, len(req.Runs))

	for i, rs := range req.Runs {
		run := &Run{
			Key:        rs.Key,
			Dir:        rs.Dir,
			Status:     StatusPending,
			StdoutPath: filepath.Join(dir, fmt.Sprintf("%d.stdout", i)),
			StderrPath: filepath.Join(dir, fmt.Sprintf("%d.stderr", i)),
		}

		for _, p := range []string{run.StdoutPath, run.StderrPath} {
			if err := afero.WriteFile(s.fs, p, nil, 0o600); err != nil {
				_ = s.fs.RemoveAll(dir)
				return "", errors.Join(ErrOutputDir, err)
			}
		}

		runs[i] = run
	}

	b := &Batch{
		ID:        id,
		Command:   slices.Clone(req.Command),
		CreatedAt: s.now(),
		Runs:      runs,
		outputDir: dir,
	}

	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()

	s.bus.Bump()

	ctxlog.Info(ctx, "batch created", "batch", id, "runs", len(runs), "command", req.Command)

	return id, nil
}

// Get returns a snapshot of the batch. Output of terminal runs is read after the lock is
// released.
func (s *Store) Get(id string) (*Response, bool) {
	s.mu.Lock()

	b := s.findLocked(id)
	if b == nil {
		s.mu.Unlock()
		return nil, false
	}

	resp := snapshotLocked(b)
	s.mu.Unlock()

	s.attachOutput(resp)

	return resp, true
}

// List returns summaries of every batch in creation order.
func (s *Store) List() *ListResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &ListResponse{
		Batches: make([]Summary, 0, len(s.batches)),
	}

	for _, b := range s.batches {
		out.Batches = append(out.Batches, summaryLocked(b))
	}

	return out
}

// CompletedCount returns the number of terminal runs of the batch.
func (s *Store) CompletedCount(id string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.findLocked(id)
	if b == nil {
		return 0, false
	}

	return b.CompletedCount(), true
}

// Len returns the number of registered batches.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.batches)
}

// Wait blocks until every worker started by Spawn has returned.
func (s *Store) Wait() {
	s.workers.Wait()
}

// Cancel marks every pending run cancelled, sends SIGTERM to the process group of every
// running run and marks it cancelled straight away. The worker of a running run sees the
// status change and leaves it alone. Returns false for an unknown id.
func (s *Store) Cancel(ctx context.Context, id string) bool {
	type signalled struct {
		run  *Run
		proc *os.Process
	}

	s.mu.Lock()

	b := s.findLocked(id)
	if b == nil {
		s.mu.Unlock()
		return false
	}

	now := s.now()

	var procs []signalled

	for _, run := range b.Runs {
		switch run.Status {
		case StatusPending:
			run.Status = StatusCancelled
			run.FinishedAt = &now
		case StatusRunning:
			if run.proc != nil {
				procs = append(procs, signalled{run: run, proc: run.proc})
			}

			run.Status = StatusCancelled
		}
	}

	s.mu.Unlock()

	for _, p := range procs {
		logger := ctxlog.Logger(ctx).With("batch", id, "run", p.run.Key, "pid", p.proc.Pid)
		if err := terminate(p.proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Warn("failed to signal process", "error", err)
		}

		logger.Info("sent termination signal")

		if s.grace > 0 {
			time.AfterFunc(s.grace, func() {
				s.killIfAlive(ctx, p.run, p.proc)
			})
		}
	}

	s.bus.Bump()

	return true
}

// CancelAll cancels every batch that is not done and returns how many were cancelled.
func (s *Store) CancelAll(ctx context.Context) int {
	s.mu.Lock()

	var ids []string

	for _, b := range s.batches {
		if !b.IsDone() {
			ids = append(ids, b.ID)
		}
	}

	s.mu.Unlock()

	for _, id := range ids {
		s.Cancel(ctx, id)
	}

	return len(ids)
}

// killIfAlive escalates to SIGKILL when the process recorded on run is still the one that
// was sent SIGTERM.
func (s *Store) killIfAlive(ctx context.Context, run *Run, proc *os.Process) {
	s.mu.Lock()
	alive := run.proc == proc
	s.mu.Unlock()

	if !alive {
		return
	}

	logger := ctxlog.Logger(ctx).With("run", run.Key, "pid", proc.Pid)
	if err := kill(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Error("process kill error", "error", err)
		return
	}

	logger.Info("process ignored termination signal, killed")
}

func (s *Store) findLocked(id string) *Batch {
	for _, b := range s.batches {
		if b.ID == id {
			return b
		}
	}

	return nil
}
