// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the fanout command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/fanout"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/batchcmd"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/configcmd"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/currentcmd"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/mailboxcmd"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/servecmd"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/signalbroker"
	"github.com/urfave/cli/v3"
)

// rootCmd is the root command for the CLI.
var rootCmd = newRootCmd()

func newRootCmd() *cli.Command {
	return &cli.Command{
		Commands: []*cli.Command{
			servecmd.ServeCmd,
			batchcmd.BatchCmd,
			mailboxcmd.MailboxCmd,
			currentcmd.CurrentCmd,
			configcmd.ConfigCmd,
		},
		Flags:     []cli.Flag{cmdstate.ServerURLFlag()},
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Name:      "fanout",
		Description: `Fanout runs one shell command in many directories at once. The server holds each
batch in memory and exposes it over HTTP, together with per-subject notification mailboxes
and a shared current key that clients can long-poll for changes.`,
		Usage:     "fanout serve, then fanout batch run -d ./api -d ./web -- make test",
		Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
		Authors: []any{
			"Matt White (matt-FFFFFF)",
		},
		EnableShellCompletion: true,
	}
}

func main() {
	forceCtx, force := context.WithCancel(ctxlog.New(context.Background(), ctxlog.DefaultLogger))
	defer force()

	ctx, graceful := context.WithCancel(forceCtx)
	defer graceful()

	ctx = cmdstate.WithForceContext(ctx, forceCtx)

	sigCh := signalbroker.New(ctx)
	defer signalbroker.Stop(sigCh)

	go signalbroker.Watch(forceCtx, sigCh, graceful, force)

	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", fanout.Version, fanout.Commit)

	err := rootCmd.Run(ctx, os.Args) // Err is handled by cli framework

	if ctx.Err() != nil {
		ctxlog.Logger(ctx).Warn("command interrupted", "error", ctx.Err())
	}

	if err != nil {
		ctxlog.Logger(ctx).Error("command execution failed", "error", err)
		os.Exit(1)
	}
}
