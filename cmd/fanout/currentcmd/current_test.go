// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package currentcmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/current"
	"github.com/matt-FFFFFF/fanout/internal/mailbox"
	"github.com/matt-FFFFFF/fanout/internal/server"
	"github.com/prashantv/gostub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestSetGetClear(t *testing.T) {
	bus := changebus.New()
	srv := httptest.NewServer(server.New(bus, batch.NewStore(bus), mailbox.New(bus), current.New(bus)).Handler())
	t.Cleanup(srv.Close)

	stubs := gostub.Stub(&cli.OsExiter, func(int) {})
	t.Cleanup(stubs.Reset)

	out := new(bytes.Buffer)
	run := func(args ...string) error {
		out.Reset()

		root := &cli.Command{
			Name:           "fanout",
			Flags:          []cli.Flag{cmdstate.ServerURLFlag()},
			Commands:       []*cli.Command{NewCurrentCmd()},
			Writer:         out,
			ErrWriter:      new(bytes.Buffer),
			ExitErrHandler: func(context.Context, *cli.Command, error) {},
		}

		return root.Run(context.Background(), append([]string{"fanout", "--server", srv.URL, "current"}, args...))
	}

	require.NoError(t, run("get"))
	assert.Empty(t, out.String())

	require.NoError(t, run("set", "api"))
	require.NoError(t, run("get"))
	assert.Equal(t, "api\n", out.String())

	require.NoError(t, run("get", "--output", "json"))
	assert.JSONEq(t, `{"current":"api","changed":true}`, out.String())

	require.NoError(t, run("clear"))
	require.NoError(t, run("get"))
	assert.Empty(t, out.String())

	assert.Error(t, run("set"))
}
