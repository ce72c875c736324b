// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package current

import (
	"context"
	"testing"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestSet_BumpsOnlyOnChange(t *testing.T) {
	bus := changebus.New()
	tr := New(bus)

	_, ok := tr.Get()
	assert.False(t, ok)

	tr.Set("b1")
	tr.Set("b1")
	assert.Equal(t, uint64(1), bus.Version())

	key, ok := tr.Get()
	assert.True(t, ok)
	assert.Equal(t, "b1", key)

	tr.Clear()
	assert.Equal(t, uint64(2), bus.Version())

	_, ok = tr.Get()
	assert.False(t, ok)
}

func TestPoll_ImmediateWhenClientIsStale(t *testing.T) {
	tr := New(changebus.New())
	tr.Set("b2")

	start := time.Now()
	state := tr.Poll(context.Background(), "b1", 5*time.Second)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, State{Current: "b2", Changed: true}, state)
}

func TestPoll_TimesOutUnchanged(t *testing.T) {
	tr := New(changebus.New())
	tr.Set("b1")

	state := tr.Poll(context.Background(), "b1", 50*time.Millisecond)
	assert.Equal(t, State{Current: "b1", Changed: false}, state)
}

func TestPoll_WakesOnSet(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := New(changebus.New())

	go func() {
		time.Sleep(50 * time.Millisecond)
		tr.Set("b3")
	}()

	state := tr.Poll(context.Background(), "", 5*time.Second)
	assert.Equal(t, State{Current: "b3", Changed: true}, state)
}
