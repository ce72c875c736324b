// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package longpoll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestWaitFor_AlreadyTrueReturnsImmediately(t *testing.T) {
	bus := changebus.New()

	start := time.Now()
	ok := WaitFor(context.Background(), bus, 10*time.Second, func() bool { return true })

	assert.True(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitFor_TimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := changebus.New()

	start := time.Now()
	ok := WaitFor(context.Background(), bus, 50*time.Millisecond, func() bool { return false })

	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitFor_ZeroTimeoutDoesNotSuspend(t *testing.T) {
	bus := changebus.New()

	start := time.Now()
	ok := WaitFor(context.Background(), bus, 0, func() bool { return false })

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitFor_SatisfiedAfterBump(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := changebus.New()

	var flag atomic.Bool

	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
		bus.Bump()
	}()

	ok := WaitFor(context.Background(), bus, 5*time.Second, flag.Load)
	assert.True(t, ok)
}

func TestWaitFor_IrrelevantBumpsKeepWaiting(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := changebus.New()

	var calls atomic.Int32

	done := make(chan struct{})

	go func() {
		defer close(done)

		for range 5 {
			time.Sleep(5 * time.Millisecond)
			bus.Bump()
		}
	}()

	ok := WaitFor(context.Background(), bus, 100*time.Millisecond, func() bool {
		calls.Add(1)
		return false
	})

	<-done

	assert.False(t, ok)
	assert.Greater(t, calls.Load(), int32(2), "predicate should be re-checked after each wake-up")
}

func TestWaitFor_ParentContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	bus := changebus.New()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok := WaitFor(ctx, bus, 10*time.Second, func() bool { return false })

	assert.False(t, ok)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParsePreferWait(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{name: "simple", header: "wait=30", want: 30 * time.Second, ok: true},
		{name: "with other prefs", header: "respond-async, wait=5", want: 5 * time.Second, ok: true},
		{name: "quoted", header: `wait="7"`, want: 7 * time.Second, ok: true},
		{name: "case insensitive", header: "Wait=2", want: 2 * time.Second, ok: true},
		{name: "empty", header: "", ok: false},
		{name: "no wait", header: "return=minimal", ok: false},
		{name: "garbage value", header: "wait=soon", ok: false},
		{name: "negative", header: "wait=-1", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParsePreferWait(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
