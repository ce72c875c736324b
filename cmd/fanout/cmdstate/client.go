// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package cmdstate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/TylerBrock/colorjson"
	"github.com/matt-FFFFFF/fanout/internal/client"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const (
	// ServerFlag names the server URL flag.
	ServerFlag = "server"
	// OutputFlag names the output format flag.
	OutputFlag = "output"
	// WaitFlag names the per-request long-poll wait flag.
	WaitFlag = "wait"

	// OutputText renders human readable output.
	OutputText = "text"
	// OutputJSON renders the API responses as JSON.
	OutputJSON = "json"

	jsonIndent = 2
)

// ErrInvalidOutput is returned for an unknown --output value.
var ErrInvalidOutput = fmt.Errorf("output must be %q or %q", OutputText, OutputJSON)

// ServerURLFlag selects the server. It is defined on the root command and inherited by every
// client subcommand.
func ServerURLFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    ServerFlag,
		Aliases: []string{"s"},
		Usage:   "URL of the fanout server",
		Value:   client.DefaultBaseURL,
		Sources: cli.EnvVars("FANOUT_SERVER"),
	}
}

// OutputFormatFlag returns a fresh --output flag.
func OutputFormatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    OutputFlag,
		Aliases: []string{"o"},
		Usage:   "Output format, text or json",
		Value:   OutputText,
		Validator: func(s string) error {
			if s != OutputText && s != OutputJSON {
				return ErrInvalidOutput
			}

			return nil
		},
	}
}

// WaitDurationFlag returns a fresh --wait flag with the given default.
func WaitDurationFlag(usage string, value time.Duration) cli.Flag {
	return &cli.DurationFlag{
		Name:  WaitFlag,
		Usage: usage,
		Value: value,
	}
}

// NewClient returns an API client for the server selected on the command line.
func NewClient(ctx context.Context, cmd *cli.Command) (*client.Client, error) {
	return client.New(cmd.String(ServerFlag), client.WithLogger(ctxlog.Logger(ctx)))
}

// WantJSON reports whether --output json was given.
func WantJSON(cmd *cli.Command) bool {
	return cmd.String(OutputFlag) == OutputJSON
}

// WriteJSON writes v as indented JSON, coloured when w is a terminal.
func WriteJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	if colourize(w) {
		var generic any
		if err := json.Unmarshal(data, &generic); err == nil {
			f := colorjson.NewFormatter()
			f.Indent = jsonIndent

			if coloured, err := f.Marshal(generic); err == nil {
				data = coloured
			}
		}
	}

	_, err = fmt.Fprintf(w, "%s\n", data)

	return err
}

func colourize(w io.Writer) bool {
	_, noColour := os.LookupEnv("NO_COLOR")
	return !noColour && IsTerminal(w)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Stdout returns the root command's writer, which subcommands do not always inherit.
func Stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}

	return os.Stdout
}

// Stderr returns the root command's error writer.
func Stderr(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}

	return os.Stderr
}
