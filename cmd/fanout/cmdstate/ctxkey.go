// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmdstate holds state shared by the fanout subcommands: the context that is only
// cancelled on a forced shutdown, the API client and output formatting.
package cmdstate

import "context"

type forceKey struct{}

// WithForceContext stores force in ctx. force is cancelled on the second termination signal,
// while ctx itself is cancelled on the first.
func WithForceContext(ctx, force context.Context) context.Context {
	return context.WithValue(ctx, forceKey{}, force)
}

// ForceContext returns the context stored by WithForceContext, or a context that is never
// cancelled. Either way it carries the values of ctx.
func ForceContext(ctx context.Context) context.Context {
	force, ok := ctx.Value(forceKey{}).(context.Context)
	if !ok {
		return context.WithoutCancel(ctx)
	}

	return mergedValues{Context: force, values: ctx}
}

// mergedValues is cancelled with the embedded context but resolves values from values.
type mergedValues struct {
	context.Context

	values context.Context
}

func (m mergedValues) Value(key any) any {
	return m.values.Value(key)
}
