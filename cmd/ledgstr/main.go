// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/luxfi/ledgstr"
)

// newAdmin opens the device backend. Tests point it at an emulator.
var newAdmin = ledgstr.NewLedgerAdmin

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "ledgstr",
		Usage: "Nostr keys and signatures held on a Ledger device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("LEDGSTR_LOG_LEVEL"),
			},
		},
		Before: configureLogging,
		Commands: []*cli.Command{
			PubkeyCommand(),
			SignCommand(),
			EncryptCommand(),
			DecryptCommand(),
			ServeCommand(),
		},
	}
}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func configureLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level, err := zap.ParseAtomicLevel(cmd.String("log-level"))
	if err != nil {
		return ctx, fmt.Errorf("invalid log level: %w", err)
	}

	config := zap.NewDevelopmentConfig()
	config.Level = level
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.DisableStacktrace = true

	logger, err := config.Build()
	if err != nil {
		return ctx, fmt.Errorf("failed to build logger: %w", err)
	}
	ledgstr.SetLogger(logger.Sugar().Named("ledgstr"))
	return ctx, nil
}
