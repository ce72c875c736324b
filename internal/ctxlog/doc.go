// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog carries a structured slog logger through a context.Context.
//
// The default logger writes human-readable lines to stderr with the record attributes rendered
// as indented JSON. The level is read once from an environment variable named after the
// executable, e.g. FANOUT_LOG_LEVEL for a binary called fanout.
package ctxlog
