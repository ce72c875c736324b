// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package mailboxcmd contains the client commands for subject mailboxes.
package mailboxcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/mailbox"
	"github.com/urfave/cli/v3"
)

const (
	roleFlag   = "role"
	targetFlag = "target"
	methodFlag = "method"
	paramsFlag = "params"
	followFlag = "follow"

	defaultPollWait = 30 * time.Second
)

var (
	// ErrMissingSubject is returned when no subject argument is given.
	ErrMissingSubject = errors.New("subject is required")
	// ErrInvalidParams is returned when --params is not valid JSON.
	ErrInvalidParams = errors.New("--params must be valid JSON")
)

// MailboxCmd groups the mailbox subcommands.
var MailboxCmd = NewMailboxCmd()

// NewMailboxCmd builds the mailbox command tree.
func NewMailboxCmd() *cli.Command {
	return &cli.Command{
		Name:    "mailbox",
		Aliases: []string{"mb"},
		Usage:   "Publish and receive JSON-RPC notifications per subject and role",
		Commands: []*cli.Command{
			newSubjectsCmd(),
			newPollCmd(),
			newPublishCmd(),
		},
	}
}

func subject(cmd *cli.Command) (string, error) {
	s := strings.TrimSpace(cmd.Args().First())
	if s == "" {
		return "", ErrMissingSubject
	}

	return s, nil
}

func newSubjectsCmd() *cli.Command {
	return &cli.Command{
		Name:  "subjects",
		Usage: "List subjects that have consumers",
		Flags: []cli.Flag{cmdstate.OutputFormatFlag()},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			subjects, err := c.Subjects(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to list subjects: %s", err), 1)
			}

			if cmdstate.WantJSON(cmd) {
				return cmdstate.WriteJSON(cmdstate.Stdout(cmd), subjects)
			}

			for _, s := range subjects {
				fmt.Fprintln(cmdstate.Stdout(cmd), s) //nolint:errcheck
			}

			return nil
		},
	}
}

func newPollCmd() *cli.Command {
	return &cli.Command{
		Name:      "poll",
		Usage:     "Receive notifications for a role of a subject",
		ArgsUsage: "SUBJECT",
		Description: `Wait up to --wait for notifications addressed to --role (or broadcast) on SUBJECT and
print each one as a line of JSON. With --follow the command keeps polling until interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     roleFlag,
				Aliases:  []string{"r"},
				Usage:    "Role to receive as",
				Required: true,
			},
			cmdstate.WaitDurationFlag("How long each poll may wait for a notification", defaultPollWait),
			&cli.BoolFlag{
				Name:    followFlag,
				Aliases: []string{"f"},
				Usage:   "Keep polling until interrupted",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			subj, err := subject(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			enc := json.NewEncoder(cmdstate.Stdout(cmd))

			for {
				msgs, err := c.PollMessages(ctx, subj, cmd.String(roleFlag), cmd.Duration(cmdstate.WaitFlag))
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}

					return cli.Exit(fmt.Sprintf("failed to poll %s: %s", subj, err), 1)
				}

				for _, m := range msgs {
					if err := enc.Encode(m); err != nil {
						return err
					}
				}

				if !cmd.Bool(followFlag) {
					return nil
				}
			}
		},
	}
}

func newPublishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Send a notification to the consumers of a subject",
		ArgsUsage: "SUBJECT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    targetFlag,
				Aliases: []string{"t"},
				Usage:   "Role to deliver to, or * for every role",
				Value:   mailbox.BroadcastTarget,
			},
			&cli.StringFlag{
				Name:     methodFlag,
				Aliases:  []string{"m"},
				Usage:    "JSON-RPC method of the notification",
				Required: true,
			},
			&cli.StringFlag{
				Name:    paramsFlag,
				Aliases: []string{"p"},
				Usage:   "JSON-RPC params, as a JSON value",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			subj, err := subject(cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			n, err := notification(cmd.String(methodFlag), cmd.String(paramsFlag))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			c, err := cmdstate.NewClient(ctx, cmd)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			if err := c.Publish(ctx, subj, cmd.String(targetFlag), n); err != nil {
				return cli.Exit(fmt.Sprintf("failed to publish to %s: %s", subj, err), 1)
			}

			return nil
		},
	}
}

// notification builds the notification sent by publish.
func notification(method, params string) (mailbox.Notification, error) {
	n := mailbox.NewNotification(method)

	if params = strings.TrimSpace(params); params != "" {
		if !json.Valid([]byte(params)) {
			return n, ErrInvalidParams
		}

		n.Params = json.RawMessage(params)
	}

	return n, nil
}
