// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package current tracks a single optional "current" key, such as the batch or subject a
// client is focused on, so that clients can long-poll for it changing.
package current

import (
	"context"
	"sync"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/longpoll"
)

// State is the value reported to clients. Current is empty when nothing is selected.
type State struct {
	Current string `json:"current,omitempty"`
	Changed bool   `json:"changed"`
}

// Tracker holds the current key. The empty string means none.
type Tracker struct {
	mu  sync.Mutex
	key string
	bus *changebus.Bus
}

// New returns a tracker with nothing selected.
func New(bus *changebus.Bus) *Tracker {
	return &Tracker{bus: bus}
}

// Set selects key, bumping the bus if it differs from the current one.
func (t *Tracker) Set(key string) {
	t.mu.Lock()
	changed := t.key != key
	t.key = key
	t.mu.Unlock()

	if changed {
		t.bus.Bump()
	}
}

// Clear deselects the current key.
func (t *Tracker) Clear() {
	t.Set("")
}

// Get returns the current key and whether one is set.
func (t *Tracker) Get() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.key, t.key != ""
}

// Changed returns a predicate that holds once the tracked key differs from the one the
// client last saw.
func (t *Tracker) Changed(clientCurrent string) longpoll.Predicate {
	return func() bool {
		key, _ := t.Get()
		return key != clientCurrent
	}
}

// Poll waits up to wait for the current key to differ from clientCurrent.
func (t *Tracker) Poll(ctx context.Context, clientCurrent string, wait time.Duration) State {
	changed := longpoll.WaitFor(ctx, t.bus, wait, t.Changed(clientCurrent))
	key, _ := t.Get()

	return State{Current: key, Changed: changed}
}
