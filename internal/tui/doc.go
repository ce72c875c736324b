// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tui provides a real-time Terminal User Interface (TUI) for following a batch on a
// fanout server. It shows one line per run with a status indicator, the elapsed time and the
// exit code, plus an overall progress bar.
//
// Snapshots arrive over the server's watch stream. Pressing q leaves the batch running,
// ctrl+c asks the server to cancel it.
package tui
