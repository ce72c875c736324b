// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
)

var (
	// ErrCouldNotStartProcess is written to a run's stderr when the shell cannot be started.
	ErrCouldNotStartProcess = errors.New("spawn error")
	// ErrWaitFailed is written to a run's stderr when the process exit cannot be observed.
	ErrWaitFailed = errors.New("wait error")
)

// Spawn starts one worker goroutine per run of the batch. There is no pool: every run of the
// batch executes concurrently. ctx bounds the lifetime of the processes, not of the request
// that created the batch. Unknown ids are ignored.
func (s *Store) Spawn(ctx context.Context, id string) {
	s.mu.Lock()

	b := s.findLocked(id)
	if b == nil {
		s.mu.Unlock()
		return
	}

	n := len(b.Runs)
	s.mu.Unlock()

	for i := range n {
		s.startWorker(ctx, b, i)
	}
}

func (s *Store) startWorker(ctx context.Context, b *Batch, idx int) {
	s.workers.Add(1)

	go func() {
		defer s.workers.Done()
		s.execute(ctx, b, idx)
	}()
}

// execute drives one run from pending to a terminal state.
func (s *Store) execute(ctx context.Context, b *Batch, idx int) {
	s.mu.Lock()

	run := b.Runs[idx]
	if run.Status != StatusPending {
		// Cancelled before the worker got here.
		s.mu.Unlock()
		return
	}

	started := s.now()
	run.Status = StatusRunning
	run.StartedAt = &started

	line := CommandLine(b.Command)
	dir, stdoutPath, stderrPath := run.Dir, run.StdoutPath, run.StderrPath
	s.mu.Unlock()

	s.bus.Bump()

	logger := ctxlog.Logger(ctx).With("batch", b.ID, "run", run.Key)
	logger.Debug("command info", "shell", s.shell, "cwd", dir, "line", line)

	stdout, err := s.fs.OpenFile(stdoutPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		s.fail(ctx, run, stderrPath, errors.Join(ErrCouldNotStartProcess, err))
		return
	}
	defer stdout.Close() //nolint:errcheck

	stderr, err := s.fs.OpenFile(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		s.fail(ctx, run, stderrPath, errors.Join(ErrCouldNotStartProcess, err))
		return
	}
	defer stderr.Close() //nolint:errcheck

	cmd := exec.CommandContext(ctx, s.shell, "-c", line)
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = sysProcAttr()
	cmd.Cancel = func() error { return kill(cmd.Process) }
	cmd.WaitDelay = waitDelay

	if err := cmd.Start(); err != nil {
		s.fail(ctx, run, stderrPath, errors.Join(ErrCouldNotStartProcess, err))
		return
	}

	s.mu.Lock()
	run.PID = cmd.Process.Pid
	run.proc = cmd.Process
	cancelled := run.Status == StatusCancelled
	s.mu.Unlock()

	logger.Debug("process started", "pid", cmd.Process.Pid)

	if cancelled {
		// Cancel ran between marking the run running and recording the process.
		_ = terminate(cmd.Process)
	}

	waitErr := cmd.Wait()

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		writeDiagnostic(stderr, errors.Join(ErrWaitFailed, waitErr))
	}

	s.mu.Lock()

	finished := s.now()
	run.FinishedAt = &finished
	run.PID = 0
	run.proc = nil

	if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() >= 0 {
		code := cmd.ProcessState.ExitCode()
		run.ExitCode = &code
	}

	if run.Status == StatusRunning {
		if waitErr == nil {
			run.Status = StatusSucceeded
		} else {
			run.Status = StatusFailed
		}
	}

	status := run.Status
	s.mu.Unlock()

	s.bus.Bump()

	logger.Info("run finished", "status", status.String(), "error", waitErr)
}

// fail records a run that never produced a process.
func (s *Store) fail(ctx context.Context, run *Run, stderrPath string, cause error) {
	if f, err := s.fs.OpenFile(stderrPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600); err == nil {
		writeDiagnostic(f, cause)
		_ = f.Close()
	}

	s.mu.Lock()

	finished := s.now()
	run.FinishedAt = &finished

	if run.Status == StatusRunning {
		run.Status = StatusFailed
	}

	s.mu.Unlock()

	s.bus.Bump()

	ctxlog.Warn(ctx, "run failed to start", "run", run.Key, "error", cause)
}

// writeDiagnostic renders err as "<kind>: <cause>" on its own line.
func writeDiagnostic(w io.Writer, err error) {
	fmt.Fprintf(w, "%s\n", flatten(err)) //nolint:errcheck
}

func flatten(err error) string {
	var parts []string

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			parts = append(parts, e.Error())
		}
	} else {
		parts = []string{err.Error()}
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += ": " + p
	}

	return out
}
