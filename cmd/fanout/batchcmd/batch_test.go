// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batchcmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
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

func TestParseDirs(t *testing.T) {
	base := t.TempDir()

	runs, err := parseDirs([]string{
		"api=" + filepath.Join(base, "svc", "api"),
		filepath.Join(base, "web"),
	})
	require.NoError(t, err)

	assert.Equal(t, []batch.RunSpec{
		{Key: "api", Dir: filepath.Join(base, "svc", "api")},
		{Key: "web", Dir: filepath.Join(base, "web")},
	}, runs)
}

func TestParseDirs_Relative(t *testing.T) {
	runs, err := parseDirs([]string{"sub"})
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.True(t, filepath.IsAbs(runs[0].Dir))
	assert.Equal(t, "sub", runs[0].Key)
}

func TestParseDirs_Invalid(t *testing.T) {
	for _, v := range []string{"", "key=", "key=  "} {
		_, err := parseDirs([]string{v})
		assert.ErrorIs(t, err, ErrInvalidDir, v)
	}
}

func TestProgressPrinter(t *testing.T) {
	buf := new(bytes.Buffer)
	p := progressPrinter(buf, true)

	p(&batch.Response{Completed: 0, Total: 2})
	p(&batch.Response{Completed: 0, Total: 2})
	p(&batch.Response{Completed: 2, Total: 2})

	assert.Equal(t, "0/2 runs finished\n2/2 runs finished\n", buf.String())

	buf.Reset()
	progressPrinter(buf, false)(&batch.Response{Completed: 1, Total: 2})
	assert.Empty(t, buf.String())
}

// testCLI runs the batch commands against an in-process server.
type testCLI struct {
	url    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()

	bus := changebus.New()
	store := batch.NewStore(bus)
	srv := httptest.NewServer(server.New(bus, store, mailbox.New(bus), current.New(bus)).Handler())

	t.Cleanup(func() {
		srv.Close()
		store.CancelAll(context.Background())
		store.Wait()
	})

	stubs := gostub.Stub(&cli.OsExiter, func(int) {})
	t.Cleanup(stubs.Reset)

	return &testCLI{url: srv.URL, stdout: new(bytes.Buffer), stderr: new(bytes.Buffer)}
}

func (c *testCLI) run(args ...string) error {
	c.stdout.Reset()
	c.stderr.Reset()

	root := &cli.Command{
		Name:           "fanout",
		Flags:          []cli.Flag{cmdstate.ServerURLFlag()},
		Commands:       []*cli.Command{NewBatchCmd()},
		Writer:         c.stdout,
		ErrWriter:      c.stderr,
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}

	return root.Run(context.Background(), append([]string{"fanout", "--server", c.url, "batch"}, args...))
}

func exitCode(t *testing.T, err error) int {
	t.Helper()

	var coder cli.ExitCoder
	require.ErrorAs(t, err, &coder)

	return coder.ExitCode()
}

func TestStatus_MissingID(t *testing.T) {
	c := newTestCLI(t)

	err := c.run("status")
	assert.Equal(t, 1, exitCode(t, err))
	assert.ErrorContains(t, err, ErrMissingID.Error())
}

func TestStatus_UnknownBatch(t *testing.T) {
	c := newTestCLI(t)

	err := c.run("status", "nope")
	assert.Equal(t, 1, exitCode(t, err))
	assert.ErrorContains(t, err, "failed to get batch nope")
}

func TestList_Empty(t *testing.T) {
	c := newTestCLI(t)

	require.NoError(t, c.run("list", "--output", "json"))
	assert.Contains(t, c.stdout.String(), "batches")
}

func TestRun_RequiresCommand(t *testing.T) {
	c := newTestCLI(t)

	err := c.run("run", "-d", t.TempDir())
	assert.Equal(t, 1, exitCode(t, err))
}
