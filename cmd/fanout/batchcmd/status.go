// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package batchcmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/urfave/cli/v3"
)

const (
	followOutputFlag   = "follow"
	outputPollInterval = 500 * time.Millisecond
)

func newStatusCmd() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show a batch, optionally waiting for it to finish",
		ArgsUsage: "BATCH_ID",
		Flags:     followFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := batchID(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			switch {
			case cmd.Bool(tuiFlag):
				return followTUI(ctx, cmd, c, id)
			case cmd.Bool(followFlag):
				return follow(ctx, cmd, c, id)
			}

			resp, err := c.GetBatch(ctx, id, 0, 0)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to get batch %s: %s", id, err), 1)
			}

			return report(cmd, resp)
		},
	}
}

func newListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List batches held by the server",
		Flags: []cli.Flag{cmdstate.OutputFormatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			list, err := c.ListBatches(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to list batches: %s", err), 1)
			}

			if cmdstate.WantJSON(cmd) {
				return cmdstate.WriteJSON(cmdstate.Stdout(cmd), list)
			}

			_, err = fmt.Fprint(cmdstate.Stdout(cmd), list.RenderTerminal(time.Now()))

			return err
		},
	}
}

func newCancelCmd() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel every unfinished run of a batch",
		ArgsUsage: "BATCH_ID",
		Flags:     []cli.Flag{cmdstate.OutputFormatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := batchID(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			resp, err := c.CancelBatch(ctx, id)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to cancel batch %s: %s", id, err), 1)
			}

			if cmdstate.WantJSON(cmd) {
				return cmdstate.WriteJSON(cmdstate.Stdout(cmd), resp)
			}

			succeeded, failed, cancelled := resp.Tally()
			_, err = fmt.Fprintf(cmdstate.Stdout(cmd), "%s: %d succeeded, %d failed, %d cancelled\n", id, succeeded, failed, cancelled)

			return err
		},
	}
}

func newOutputCmd() *cli.Command {
	return &cli.Command{
		Name:      "output",
		Usage:     "Print the stdout of one run",
		ArgsUsage: "BATCH_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  runFlag,
				Usage: "Index of the run, in the order the directories were given",
			},
			&cli.BoolFlag{
				Name:    followOutputFlag,
				Aliases: []string{"f"},
				Usage:   "Keep printing output until the run finishes",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := batchID(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			var offset int64

			for {
				chunk, err := c.Output(ctx, id, cmd.Int(runFlag), offset)
				if err != nil {
					return cli.Exit(fmt.Sprintf("failed to read output: %s", err), 1)
				}

				if _, err := io.WriteString(cmdstate.Stdout(cmd), chunk.Content); err != nil {
					return err
				}

				offset = chunk.Offset

				if chunk.Done || !cmd.Bool(followOutputFlag) {
					return nil
				}

				select {
				case <-ctx.Done():
					return nil
				case <-time.After(outputPollInterval):
				}
			}
		},
	}
}

func newWatchCmd() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream a batch until it finishes",
		ArgsUsage: "BATCH_ID",
		Description: `Follow a batch over the server's websocket stream. On a terminal the batch is shown
in the TUI, otherwise every snapshot is printed as one line of JSON.`,
		Flags: []cli.Flag{cmdstate.OutputFormatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := batchID(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			if !cmdstate.WantJSON(cmd) && cmdstate.IsTerminal(cmdstate.Stdout(cmd)) {
				return followTUI(ctx, cmd, c, id)
			}

			enc := json.NewEncoder(cmdstate.Stdout(cmd))

			var last *batch.Response

			err = c.Watch(ctx, id, func(resp *batch.Response) {
				last = resp
				_ = enc.Encode(resp)
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to watch batch %s: %s", id, err), 1)
			}

			if last != nil && last.Done && !last.Succeeded() {
				return cli.Exit("", 1)
			}

			return nil
		},
	}
}
