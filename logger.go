// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Forked from github.com/zondax/ledger-go
// Licensed under the Apache License, Version 2.0

package ledgstr

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger

func init() {
	initLogger()
}

// initLogger builds the development logger at the level named by
// LEDGSTR_LOG_LEVEL (debug, info, warn or error; info when unset).
func initLogger() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level, err := zapcore.ParseLevel(strings.ToLower(os.Getenv("LEDGSTR_LOG_LEVEL")))
	if err != nil {
		level = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	log = logger.Sugar().Named("ledgstr")
}

// SetLogger replaces the package logger. A nil logger silences output.
func SetLogger(logger *zap.SugaredLogger) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	log = logger
}

// Logger returns the package logger.
func Logger() *zap.SugaredLogger {
	return log
}
