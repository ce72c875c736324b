// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build unix

package client

import (
	"context"
	"testing"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForBatch(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	created, err := c.CreateBatch(ctx, batch.Request{
		Command: []string{"sleep 0.1; echo ok"},
		Runs: []batch.RunSpec{
			{Key: "a", Dir: t.TempDir()},
			{Key: "b", Dir: t.TempDir()},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, created.Total)

	var seen []int

	final, err := c.WaitForBatch(ctx, created.ID, 5*time.Second, func(r *batch.Response) {
		seen = append(seen, r.Completed)
	})
	require.NoError(t, err)

	assert.True(t, final.Done)
	assert.IsNonDecreasing(t, seen)
	assert.Equal(t, 2, seen[len(seen)-1])

	for _, run := range final.Runs {
		require.NotNil(t, run.Stdout)
		assert.Equal(t, "ok\n", *run.Stdout)
	}

	chunk, err := c.Output(ctx, created.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, &batch.OutputChunk{Content: "ok\n", Offset: 3, Done: true}, chunk)

	list, err := c.ListBatches(ctx)
	require.NoError(t, err)
	require.Len(t, list.Batches, 1)
	assert.Equal(t, created.ID, list.Batches[0].ID)
}

func TestWatchAndCancel(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	created, err := c.CreateBatch(ctx, batch.Request{
		Command: []string{"sleep", "30"},
		Runs:    []batch.RunSpec{{Key: "slow", Dir: t.TempDir()}},
	})
	require.NoError(t, err)

	snapshots := make(chan *batch.Response, 16)
	errCh := make(chan error, 1)

	go func() {
		errCh <- c.Watch(ctx, created.ID, func(r *batch.Response) {
			snapshots <- r
		})
	}()

	first := <-snapshots
	assert.False(t, first.Done)

	cancelled, err := c.CancelBatch(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, cancelled.Done)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not end")
	}

	var last *batch.Response
	for len(snapshots) > 0 {
		last = <-snapshots
	}

	require.NotNil(t, last)
	assert.True(t, last.Done)
	assert.Equal(t, batch.StatusCancelled, last.Runs[0].Status)
}
