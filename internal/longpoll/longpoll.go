// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package longpoll waits for a caller-supplied condition to become true, waking on changebus
// bumps instead of polling.
package longpoll

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/matt-FFFFFF/fanout/internal/changebus"
)

// Predicate reports whether the awaited condition holds. It is called from the waiting
// goroutine and must not block.
type Predicate func() bool

// WaitFor returns true as soon as pred holds, or false once timeout elapses or ctx is done.
// If pred already holds it returns immediately without subscribing to the bus.
func WaitFor(ctx context.Context, bus *changebus.Bus, timeout time.Duration, pred Predicate) bool {
	if pred() {
		return true
	}

	// Subscribe before the re-check so a change between the two is not missed.
	sub := bus.Subscribe()
	if pred() {
		return true
	}

	if timeout <= 0 {
		return false
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		if err := sub.Wait(waitCtx); err != nil {
			return false
		}

		if pred() {
			return true
		}
	}
}

// ParsePreferWait extracts the wait preference from an RFC 7240 Prefer header value such as
// "wait=30" or "respond-async, wait=10". The second return value is false when no valid wait
// preference is present.
func ParsePreferWait(header string) (time.Duration, bool) {
	for pref := range strings.SplitSeq(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pref), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "wait") {
			continue
		}

		secs, err := strconv.ParseUint(strings.Trim(strings.TrimSpace(value), `"`), 10, 32)
		if err != nil {
			return 0, false
		}

		return time.Duration(secs) * time.Second, true
	}

	return 0, false
}
