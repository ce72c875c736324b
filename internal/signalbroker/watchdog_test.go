// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

type watchFixture struct {
	sigCh        chan os.Signal
	gracefulCtx  context.Context
	forceCtx     context.Context
	stopGraceful context.CancelFunc
	stopForce    context.CancelFunc
	wg           sync.WaitGroup
}

func startWatch(ctx context.Context) *watchFixture {
	f := &watchFixture{sigCh: make(chan os.Signal, 2)}
	f.gracefulCtx, f.stopGraceful = context.WithCancel(context.Background())
	f.forceCtx, f.stopForce = context.WithCancel(context.Background())

	f.wg.Add(1)

	go func() {
		defer f.wg.Done()
		Watch(ctx, f.sigCh, f.stopGraceful, f.stopForce)
	}()

	return f
}

func done(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func TestWatch_FirstSignalIsGraceful(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatch(context.Background())
	f.sigCh <- os.Interrupt

	assert.Eventually(t, func() bool { return done(f.gracefulCtx) }, time.Second, 10*time.Millisecond)
	assert.False(t, done(f.forceCtx))

	close(f.sigCh)
	f.wg.Wait()
	f.stopForce()
}

func TestWatch_SecondSignalForces(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatch(context.Background())
	f.sigCh <- os.Interrupt
	f.sigCh <- os.Interrupt

	f.wg.Wait()

	assert.True(t, done(f.gracefulCtx))
	assert.True(t, done(f.forceCtx))
}

func TestWatch_DifferentSignalsDoNotForce(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := startWatch(context.Background())
	f.sigCh <- os.Interrupt
	f.sigCh <- syscall.SIGTERM

	assert.Eventually(t, func() bool { return done(f.gracefulCtx) }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, done(f.forceCtx))

	close(f.sigCh)
	f.wg.Wait()
	f.stopForce()
}

func TestWatch_ReturnsWhenContextDone(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	f := startWatch(ctx)

	cancel()
	f.wg.Wait()

	assert.False(t, done(f.gracefulCtx))
	assert.False(t, done(f.forceCtx))
	f.stopGraceful()
	f.stopForce()
}

func TestNewAndStop(t *testing.T) {
	ch := New(context.Background(), os.Interrupt)
	Stop(ch)

	_, ok := <-ch
	assert.False(t, ok)
}
