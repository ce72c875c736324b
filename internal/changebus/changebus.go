// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package changebus provides a process-wide "something changed" signal.
//
// A Bus holds a version counter. Bump increments it and wakes every goroutine waiting on a
// Subscription. Bumps may coalesce: a waiter is only told that at least one change happened
// since it last looked, so it must re-check whatever condition it actually cares about.
package changebus

import (
	"context"
	"sync"
)

// Bus is a broadcast change counter. The zero value is not usable, use New.
type Bus struct {
	mu      sync.Mutex
	version uint64
	wake    chan struct{}
}

// New creates a Bus at version zero.
func New() *Bus {
	return &Bus{
		wake: make(chan struct{}),
	}
}

// Bump records a change and wakes all current waiters.
func (b *Bus) Bump() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.version++
	close(b.wake)
	b.wake = make(chan struct{})
}

// Version returns the current version. Only useful for diagnostics, waiters should use a
// Subscription.
func (b *Bus) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.version
}

// Subscribe returns a Subscription that has observed the current version.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	return &Subscription{
		bus:  b,
		seen: b.version,
	}
}

// Subscription tracks the last version a single waiter has observed.
// A Subscription must not be shared between goroutines.
type Subscription struct {
	bus  *Bus
	seen uint64
}

// Wait blocks until the bus version differs from the last one observed by this subscription,
// or ctx is done. On a change it records the new version and returns nil.
func (s *Subscription) Wait(ctx context.Context) error {
	s.bus.mu.Lock()
	if s.bus.version != s.seen {
		s.seen = s.bus.version
		s.bus.mu.Unlock()

		return nil
	}

	ch := s.bus.wake
	s.bus.mu.Unlock()

	select {
	case <-ch:
		s.bus.mu.Lock()
		s.seen = s.bus.version
		s.bus.mu.Unlock()

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
