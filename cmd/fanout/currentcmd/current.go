// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package currentcmd reads and sets the server's current key.
package currentcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/urfave/cli/v3"
)

const sinceFlag = "since"

// CurrentCmd groups the current-key subcommands.
var CurrentCmd = NewCurrentCmd()

// NewCurrentCmd builds the current command tree.
func NewCurrentCmd() *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "Read or select the current key",
		Commands: []*cli.Command{
			newGetCmd(),
			newSetCmd(),
			newClearCmd(),
		},
	}
}

func newGetCmd() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Print the current key, optionally waiting for it to change",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  sinceFlag,
				Usage: "Wait for the key to differ from this value",
			},
			cmdstate.WaitDurationFlag("How long to wait for a change", 0),
			cmdstate.OutputFormatFlag(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			state, err := c.PollCurrent(ctx, cmd.String(sinceFlag), cmd.Duration(cmdstate.WaitFlag))
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to get current key: %s", err), 1)
			}

			if cmdstate.WantJSON(cmd) {
				return cmdstate.WriteJSON(cmdstate.Stdout(cmd), state)
			}

			if state.Current != "" {
				fmt.Fprintln(cmdstate.Stdout(cmd), state.Current) //nolint:errcheck
			}

			return nil
		},
	}
}

func newSetCmd() *cli.Command {
	return &cli.Command{
		Name:      "set",
		Usage:     "Select a key",
		ArgsUsage: "KEY",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			key := strings.TrimSpace(cmd.Args().First())
			if key == "" {
				return cli.Exit("a key is required, use clear to deselect", 1)
			}

			return setCurrent(ctx, cmd, key)
		},
	}
}

func newClearCmd() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Deselect the current key",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return setCurrent(ctx, cmd, "")
		},
	}
}

func setCurrent(ctx context.Context, cmd *cli.Command, key string) error {
	c, err := cmdstate.NewClient(ctx, cmd)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if err := c.SetCurrent(ctx, key); err != nil {
		return cli.Exit(fmt.Sprintf("failed to set current key: %s", err), 1)
	}

	return nil
}
