// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned by RunSweeper for an unparsable cron expression.
var ErrInvalidSchedule = errors.New("invalid sweep schedule")

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five field cron expression or a descriptor such as "@every 10m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, expr, err)
	}

	return sched, nil
}

// Sweep forgets every done batch created more than maxAge ago and removes its output. Batches
// with a run still pending or running are kept whatever their age. It returns the number of
// batches removed together with any file removal errors.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()

	var (
		kept    = s.batches[:0]
		removed []*Batch
	)

	for _, b := range s.batches {
		if b.IsDone() && b.CreatedAt.Before(cutoff) {
			removed = append(removed, b)
			continue
		}

		kept = append(kept, b)
	}

	clear(s.batches[len(kept):])
	s.batches = kept
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0, nil
	}

	var result error

	for _, b := range removed {
		for _, run := range b.Runs {
			for _, p := range []string{run.StdoutPath, run.StderrPath} {
				if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
					result = multierror.Append(result, err)
				}
			}
		}

		if err := s.fs.Remove(b.outputDir); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}

	s.bus.Bump()

	return len(removed), result
}

// RunSweeper calls Sweep on the given cron schedule until ctx is cancelled, then waits for an
// in-flight sweep to finish.
func (s *Store) RunSweeper(ctx context.Context, schedule string, maxAge time.Duration) error {
	if _, err := ParseSchedule(schedule); err != nil {
		return err
	}

	c := cron.New(cron.WithParser(scheduleParser))

	if _, err := c.AddFunc(schedule, func() {
		n, err := s.Sweep(maxAge)
		if err != nil {
			ctxlog.Warn(ctx, "sweep could not remove all output", "error", err)
		}

		if n > 0 {
			ctxlog.Info(ctx, "swept batches", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	ctxlog.Debug(ctx, "sweeper started", "schedule", schedule, "max_age", maxAge.String())

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}
