// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package configcmd prints the configuration the server would run with.
package configcmd

import (
	"context"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/cmd/fanout/servecmd"
	"github.com/matt-FFFFFF/fanout/internal/config"
	"github.com/urfave/cli/v3"
)

// ConfigCmd prints the effective server configuration as YAML.
var ConfigCmd = NewConfigCmd()

// NewConfigCmd builds the config command.
func NewConfigCmd() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Print the effective server configuration",
		Description: `Resolve the configuration exactly as serve does, from --config, FANOUT_* environment
variables and --env-file, and print it as YAML. Use the output as a starting point for a
configuration file.`,
		Flags:  servecmd.ConfigSourceFlags(),
		Action: actionFunc,
	}
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Resolve(ctx, cmd.String(servecmd.ConfigFlag), cmd.String(servecmd.EnvFileFlag))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	out, err := cfg.YAML()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	_, err = cmdstate.Stdout(cmd).Write(out)

	return err
}
