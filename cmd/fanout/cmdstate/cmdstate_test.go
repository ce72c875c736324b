// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package cmdstate

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

type testKey struct{}

func TestForceContext(t *testing.T) {
	force, forceCancel := context.WithCancel(context.Background())
	defer forceCancel()

	ctx, graceful := context.WithCancel(context.WithValue(force, testKey{}, "v"))
	ctx = WithForceContext(ctx, force)

	graceful()
	require.Error(t, ctx.Err())

	fctx := ForceContext(ctx)
	require.NoError(t, fctx.Err())
	assert.Equal(t, "v", fctx.Value(testKey{}))

	forceCancel()
	<-fctx.Done()
	assert.ErrorIs(t, fctx.Err(), context.Canceled)
}

func TestForceContext_Missing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), testKey{}, "v"))
	cancel()

	fctx := ForceContext(ctx)
	require.NoError(t, fctx.Err())
	assert.Equal(t, "v", fctx.Value(testKey{}))
}

func TestWriteJSON(t *testing.T) {
	buf := new(bytes.Buffer)

	require.NoError(t, WriteJSON(buf, map[string]int{"total": 2}))
	assert.Equal(t, "{\n  \"total\": 2\n}\n", buf.String())
	assert.False(t, IsTerminal(buf))
}

func TestStdoutFromRoot(t *testing.T) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	root := &cli.Command{Name: "root", Writer: out, ErrWriter: errOut}

	assert.Same(t, out, Stdout(root))
	assert.Same(t, errOut, Stderr(root))
}
