// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package signalbroker

import (
	"context"
	"os"

	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
)

// Watch monitors the signal channel. The first signal of any type calls graceful, so the
// server stops accepting requests and cancels its batches. A second signal of a type already
// seen calls force, which kills the remaining processes, and Watch returns.
// Watch also returns when sigCh is closed or ctx is done.
func Watch(ctx context.Context, sigCh <-chan os.Signal, graceful, force context.CancelFunc) {
	seen := make(map[os.Signal]struct{})

	for {
		var (
			sig os.Signal
			ok  bool
		)

		select {
		case <-ctx.Done():
			return
		case sig, ok = <-sigCh:
			if !ok {
				return
			}
		}

		if _, dup := seen[sig]; dup {
			ctxlog.Warn(ctx, "watchdog", "detail", "received second signal of type, forcefully terminating", "signal", sig.String())
			force()

			return
		}

		if len(seen) == 0 {
			ctxlog.Info(ctx, "watchdog", "detail", "received signal, shutting down gracefully", "signal", sig.String())
			graceful()
		} else {
			ctxlog.Info(ctx, "watchdog", "detail", "received signal while shutting down", "signal", sig.String())
		}

		seen[sig] = struct{}{}
	}
}
