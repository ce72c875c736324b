// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batchcmd

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/client"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/tui"
	"github.com/urfave/cli/v3"
)

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a command in several directories at once",
		ArgsUsage: "[--] COMMAND [ARGS...]",
		Description: `Create a batch that runs COMMAND once in every --dir, all at the same time.

A single COMMAND argument is handed to the server's shell as is, so pipes and redirections
work: fanout batch run -d api -d web -- 'make test | tail -n 20'. Several arguments are quoted
individually.

Without --wait or --tui the batch id is printed and the command returns straight away.
With --wait the exit code is 1 when any run failed or was cancelled. Interrupting a
waiting client cancels the batch.`,
		Flags: append([]cli.Flag{
			&cli.StringSliceFlag{
				Name:     dirFlag,
				Aliases:  []string{"d"},
				Usage:    "Directory to run in, as key=path or path. Specify multiple times.",
				Required: true,
			},
		}, followFlags()...),
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	command := cmd.Args().Slice()
	if len(command) == 0 {
		return cli.Exit("a command to run is required", 1)
	}

	runs, err := parseDirs(cmd.StringSlice(dirFlag))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	c, err := cmdstate.NewClient(ctx, cmd)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	resp, err := c.CreateBatch(ctx, batch.Request{Command: command, Runs: runs})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create batch: %s", err), 1)
	}

	ctxlog.Info(ctx, "batch created", "batch", resp.ID, "runs", resp.Total)

	switch {
	case cmd.Bool(tuiFlag):
		return followTUI(ctx, cmd, c, resp.ID)
	case cmd.Bool(followFlag):
		return follow(ctx, cmd, c, resp.ID)
	case cmdstate.WantJSON(cmd):
		return cmdstate.WriteJSON(cmdstate.Stdout(cmd), resp)
	default:
		fmt.Fprintln(cmdstate.Stdout(cmd), resp.ID) //nolint:errcheck
		return nil
	}
}

// follow long-polls the batch until it is done and reports it.
func follow(ctx context.Context, cmd *cli.Command, c *client.Client, id string) error {
	progress := progressPrinter(cmdstate.Stderr(cmd), !cmdstate.WantJSON(cmd))

	final, err := c.WaitForBatch(ctx, id, cmd.Duration(pollWaitFlag), progress)
	if err != nil {
		if ctx.Err() != nil {
			return cancelAfterInterrupt(ctx, cmd, c, id)
		}

		return cli.Exit(fmt.Sprintf("failed to follow batch %s: %s", id, err), 1)
	}

	return report(cmd, final)
}

// progressPrinter writes a line to w whenever the completed count changes.
func progressPrinter(w io.Writer, enabled bool) func(*batch.Response) {
	last := -1

	return func(r *batch.Response) {
		if !enabled || r.Completed == last {
			return
		}

		last = r.Completed
		fmt.Fprintf(w, "%d/%d runs finished\n", r.Completed, r.Total) //nolint:errcheck
	}
}

// followTUI shows the batch in the TUI. Log output is held back until the TUI exits.
func followTUI(ctx context.Context, cmd *cli.Command, c *client.Client, id string) error {
	buf := new(bytes.Buffer)
	tuiCtx := ctxlog.NewForTUI(ctx, buf)

	runner := tui.NewRunner(tuiCtx, c, id)
	snapshot, err := runner.Run(tuiCtx)

	buf.WriteTo(cmdstate.Stderr(cmd)) //nolint:errcheck

	if err != nil {
		if ctx.Err() != nil {
			return cancelAfterInterrupt(ctx, cmd, c, id)
		}

		return cli.Exit(fmt.Sprintf("TUI execution error: %s", err), 1)
	}

	if snapshot == nil || !snapshot.Done {
		fmt.Fprintf(cmdstate.Stderr(cmd), "batch %s is still running, follow it with: fanout batch status --wait %s\n", id, id) //nolint:errcheck
		return nil
	}

	return report(cmd, snapshot)
}
