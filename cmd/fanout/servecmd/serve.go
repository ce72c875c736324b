// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package servecmd runs the fanout server.
package servecmd

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/fanout/cmd/fanout/cmdstate"
	"github.com/matt-FFFFFF/fanout/internal/batch"
	"github.com/matt-FFFFFF/fanout/internal/changebus"
	"github.com/matt-FFFFFF/fanout/internal/config"
	"github.com/matt-FFFFFF/fanout/internal/ctxlog"
	"github.com/matt-FFFFFF/fanout/internal/current"
	"github.com/matt-FFFFFF/fanout/internal/mailbox"
	"github.com/matt-FFFFFF/fanout/internal/server"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	// ConfigFlag names the configuration URL flag.
	ConfigFlag = "config"
	// EnvFileFlag names the .env file flag.
	EnvFileFlag = "env-file"
	addrFlag    = "addr"
	logFmtFlag  = "log-format"

	logFmtPretty = "pretty"
	logFmtJSON   = "json"
)

// ConfigSourceFlags are shared with the config command so both resolve the same settings.
func ConfigSourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    ConfigFlag,
			Aliases: []string{"c"},
			Usage: "URL of the YAML configuration file. " +
				"Supports Hashicorp's go-getter syntax for fetching files from various sources.",
			Sources: cli.EnvVars("FANOUT_CONFIG"),
		},
		&cli.StringFlag{
			Name:      EnvFileFlag,
			Usage:     "Read FANOUT_* overrides from this .env file when it exists",
			Value:     ".env",
			TakesFile: true,
		},
	}
}

// ServeCmd starts the HTTP server and runs until it receives a termination signal.
var ServeCmd = &cli.Command{
	Name:  "serve",
	Usage: "Run the fanout server",
	Description: `Start the HTTP server that runs batches, holds mailboxes and tracks the current key.

Settings come from the YAML file given with --config, then FANOUT_* environment variables
(also read from --env-file), then --addr. The first interrupt cancels every running batch and
stops the server once they have exited. A second interrupt kills the remaining processes.`,
	Flags: append(ConfigSourceFlags(),
		&cli.StringFlag{
			Name:  addrFlag,
			Usage: "Listen address, overrides listen_addr",
		},
		&cli.StringFlag{
			Name:  logFmtFlag,
			Usage: "Log format, pretty or json",
			Value: logFmtPretty,
			Validator: func(s string) error {
				if s != logFmtPretty && s != logFmtJSON {
					return fmt.Errorf("log format must be %q or %q", logFmtPretty, logFmtJSON)
				}

				return nil
			},
		},
	),
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	if cmd.String(logFmtFlag) == logFmtJSON {
		ctx = ctxlog.New(ctx, ctxlog.NewJSON(os.Stderr))
	}

	cfg, err := config.Resolve(ctx, cmd.String(ConfigFlag), cmd.String(EnvFileFlag))
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if addr := cmd.String(addrFlag); addr != "" {
		cfg.ListenAddr = addr
	}

	return Run(ctx, cfg)
}

// Run serves cfg until ctx is cancelled, then cancels unfinished batches and waits for their
// processes. Processes are bound to cmdstate.ForceContext(ctx) instead of ctx.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := ctxlog.Logger(ctx)
	procCtx := ctxlog.New(cmdstate.ForceContext(ctx), logger)

	bus := changebus.New()
	store := batch.NewStore(bus,
		batch.WithOutputDir(cfg.OutputDir),
		batch.WithShell(cfg.Shell),
		batch.WithCancelGrace(cfg.CancelGrace.Std()),
	)
	reg := mailbox.New(bus, mailbox.WithConsumerTTL(cfg.ConsumerTTL.Std()))
	tracker := current.New(bus)

	srv := server.New(bus, store, reg, tracker,
		server.WithMaxWait(cfg.MaxWait.Std()),
		server.WithRunContext(procCtx),
	)

	logger.Info("starting server",
		"addr", cfg.ListenAddr,
		"shell", cfg.Shell,
		"output_dir", cfg.OutputDir,
		"sweep", cfg.Sweep.Schedule,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.ListenAddr)
	})

	if cfg.Sweep.Schedule != "" {
		g.Go(func() error {
			return store.RunSweeper(gctx, cfg.Sweep.Schedule, cfg.Sweep.MaxAge.Std())
		})
	}

	err := g.Wait()

	if n := store.CancelAll(procCtx); n > 0 {
		logger.Info("cancelled unfinished batches", "count", n)
	}

	store.Wait()

	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
