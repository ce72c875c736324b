// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newMemStore(t *testing.T) (*Store, afero.Fs, *testClock) {
	t.Helper()

	fs := afero.NewMemMapFs()
	clock := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	s := NewStore(changebus.New(), WithFs(fs), WithOutputDir("/out"), WithClock(clock.Now))

	return s, fs, clock
}

func outputDir(id string) string {
	return filepath.Join("/out", fmt.Sprintf("fanout-batch-%d-%s", os.Getpid(), id))
}

func TestCreate_OutputLayout(t *testing.T) {
	s, fs, _ := newMemStore(t)

	id, err := s.Create(context.Background(), Request{
		Command: []string{"true"},
		Runs:    []RunSpec{{Key: "a", Dir: "/a"}, {Key: "b", Dir: "/b"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	for _, name := range []string{"0.stdout", "0.stderr", "1.stdout", "1.stderr"} {
		ok, err := afero.Exists(fs, filepath.Join(outputDir(id), name))
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
}

func TestCreate_OutputDirFailure(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	s := NewStore(changebus.New(), WithFs(fs), WithOutputDir("/out"))

	_, err := s.Create(context.Background(), Request{Command: []string{"true"}, Runs: []RunSpec{{Key: "a", Dir: "/"}}})
	require.ErrorIs(t, err, ErrOutputDir)
	assert.Equal(t, 0, s.Len())
}

func TestGet_TerminalRunsCarryOutput(t *testing.T) {
	s, fs, _ := newMemStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, Request{Command: []string{"true"}, Runs: []RunSpec{{Key: "a", Dir: "/a"}}})
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, filepath.Join(outputDir(id), "0.stdout"), []byte("partial"), 0o600))

	resp, _ := s.Get(id)
	assert.Nil(t, resp.Runs[0].Stdout, "non-terminal runs omit output")

	require.True(t, s.Cancel(ctx, id))

	resp, _ = s.Get(id)
	require.NotNil(t, resp.Runs[0].Stdout)
	assert.Equal(t, "partial", *resp.Runs[0].Stdout)
	require.NotNil(t, resp.Runs[0].Stderr)
	assert.Empty(t, *resp.Runs[0].Stderr)
}

func TestList(t *testing.T) {
	s, _, clock := newMemStore(t)
	ctx := context.Background()

	assert.Empty(t, s.List().Batches)

	id1, err := s.Create(ctx, Request{Command: []string{"a"}, Runs: []RunSpec{{Key: "x", Dir: "/"}}})
	require.NoError(t, err)
	clock.Advance(time.Second)

	id2, err := s.Create(ctx, Request{Command: []string{"b"}, Runs: []RunSpec{{Key: "x", Dir: "/"}, {Key: "y", Dir: "/"}}})
	require.NoError(t, err)
	require.True(t, s.Cancel(ctx, id1))

	list := s.List()
	require.Len(t, list.Batches, 2)
	assert.Equal(t, Summary{ID: id1, Command: []string{"a"}, CreatedAt: Epoch(clock.Now().Add(-time.Second)), Total: 1, Completed: 1, Done: true}, list.Batches[0])
	assert.Equal(t, id2, list.Batches[1].ID)
	assert.Equal(t, 2, list.Batches[1].Total)
	assert.False(t, list.Batches[1].Done)
}

func TestSweep(t *testing.T) {
	s, fs, clock := newMemStore(t)
	ctx := context.Background()
	req := Request{Command: []string{"true"}, Runs: []RunSpec{{Key: "a", Dir: "/a"}}}

	oldDone, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.True(t, s.Cancel(ctx, oldDone))

	oldRunning, err := s.Create(ctx, req)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	recentDone, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.True(t, s.Cancel(ctx, recentDone))

	n, err := s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Len())

	_, ok := s.Get(oldDone)
	assert.False(t, ok)

	exists, err := afero.DirExists(fs, outputDir(oldDone))
	require.NoError(t, err)
	assert.False(t, exists)

	for _, id := range []string{oldRunning, recentDone} {
		_, ok := s.Get(id)
		assert.True(t, ok, id)

		exists, err := afero.Exists(fs, filepath.Join(outputDir(id), "0.stdout"))
		require.NoError(t, err)
		assert.True(t, exists, id)
	}

	n, err = s.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweep_ToleratesMissingFiles(t *testing.T) {
	s, fs, clock := newMemStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, Request{Command: []string{"true"}, Runs: []RunSpec{{Key: "a", Dir: "/a"}}})
	require.NoError(t, err)
	require.True(t, s.Cancel(ctx, id))
	require.NoError(t, fs.Remove(filepath.Join(outputDir(id), "0.stdout")))
	clock.Advance(time.Minute)

	n, err := s.Sweep(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestParseSchedule(t *testing.T) {
	_, err := ParseSchedule("*/5 * * * *")
	require.NoError(t, err)

	_, err = ParseSchedule("@every 10m")
	require.NoError(t, err)

	_, err = ParseSchedule("not a schedule")
	assert.ErrorIs(t, err, ErrInvalidSchedule)
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _, _ := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.RunSweeper(ctx, "@every 1h", time.Hour)
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRunSweeper_InvalidSchedule(t *testing.T) {
	s, _, _ := newMemStore(t)
	assert.ErrorIs(t, s.RunSweeper(context.Background(), "bogus", time.Hour), ErrInvalidSchedule)
}

func TestCancelAll(t *testing.T) {
	s, _, _ := newMemStore(t)
	ctx := context.Background()
	req := Request{Command: []string{"true"}, Runs: []RunSpec{{Key: "a", Dir: "/a"}}}

	done, err := s.Create(ctx, req)
	require.NoError(t, err)
	require.True(t, s.Cancel(ctx, done))

	_, err = s.Create(ctx, req)
	require.NoError(t, err)
	_, err = s.Create(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 2, s.CancelAll(ctx))
	assert.Equal(t, 0, s.CancelAll(ctx))

	for _, b := range s.List().Batches {
		assert.True(t, b.Done, b.ID)
	}
}
