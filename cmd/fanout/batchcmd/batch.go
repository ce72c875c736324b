// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package batchcmd contains the client commands that create and follow batches.
package batchcmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/client"
	"github.com/urfave/cli/v3"
)

const (
	dirFlag      = "dir"
	followFlag   = "wait"
	pollWaitFlag = "poll-wait"
	tuiFlag      = "tui"
	runFlag      = "run"

	cancelTimeout = 10 * time.Second
)

var (
	// ErrInvalidDir is returned for a --dir value that names no directory.
	ErrInvalidDir = errors.New("invalid --dir value")
	// ErrMissingID is returned when a command needs a batch id and none was given.
	ErrMissingID = errors.New("batch id is required")
)

// BatchCmd groups the batch subcommands.
var BatchCmd = NewBatchCmd()

// NewBatchCmd builds the batch command tree.
func NewBatchCmd() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Create, follow and cancel batches",
		Commands: []*cli.Command{
			newRunCmd(),
			newStatusCmd(),
			newListCmd(),
			newCancelCmd(),
			newOutputCmd(),
			newWatchCmd(),
		},
	}
}

func followFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    followFlag,
			Aliases: []string{"w"},
			Usage:   "Wait for the batch to finish and print every run's output",
		},
		&cli.DurationFlag{
			Name:  pollWaitFlag,
			Usage: "How long each status request may be held by the server",
			Value: client.DefaultPollWait,
		},
		&cli.BoolFlag{
			Name:    tuiFlag,
			Aliases: []string{"t", "interactive"},
			Usage:   "Follow the batch in an interactive Terminal User Interface (TUI)",
		},
		cmdstate.OutputFormatFlag(),
	}
}

// parseDirs turns --dir values into runs. A value is either key=path or a bare path, whose
// base name becomes the key. Paths are made absolute because the server resolves them.
func parseDirs(values []string) ([]batch.RunSpec, error) {
	runs := make([]batch.RunSpec, 0, len(values))

	for _, v := range values {
		key, dir, ok := strings.Cut(v, "=")
		if !ok {
			dir = v
			key = ""
		}

		if strings.TrimSpace(dir) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidDir, v)
		}

		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidDir, v, err)
		}

		if key == "" {
			key = filepath.Base(abs)
		}

		runs = append(runs, batch.RunSpec{Key: key, Dir: abs})
	}

	return runs, nil
}

// batchID reads the first positional argument.
func batchID(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		return "", ErrMissingID
	}

	return id, nil
}

// report prints a snapshot and turns a finished batch with failed or cancelled runs into
// exit code 1.
func report(cmd *cli.Command, resp *batch.Response) error {
	if cmdstate.WantJSON(cmd) {
		if err := cmdstate.WriteJSON(cmdstate.Stdout(cmd), resp); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmdstate.Stdout(cmd), resp.RenderTerminal()) //nolint:errcheck
	}

	if resp.Done && !resp.Succeeded() {
		return cli.Exit("", 1)
	}

	return nil
}

// cancelAfterInterrupt cancels the batch once ctx has been interrupted, using a context that
// survives the interrupt, and reports the cancelled snapshot.
func cancelAfterInterrupt(ctx context.Context, cmd *cli.Command, c *client.Client, id string) error {
	cctx, cancel := context.WithTimeout(cmdstate.ForceContext(ctx), cancelTimeout)
	defer cancel()

	fmt.Fprintf(cmdstate.Stderr(cmd), "interrupted, cancelling batch %s\n", id) //nolint:errcheck

	resp, err := c.CancelBatch(cctx, id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to cancel batch %s: %s", id, err), 1)
	}

	return report(cmd, resp)
}
