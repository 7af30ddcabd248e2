// nodeconf: command line front end for the nodeconf settings engine
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/agilira/nodeconf"
	"github.com/agilira/nodeconf/cmd/cli"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	level := slog.LevelWarn
	if nodeconf.GetEnvBoolWithDefault("NODECONF_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := nodeconf.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	manager := cli.NewManager().WithLogger(logger)

	config, err := nodeconf.LoadConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "nodeconf: %v\n", err)
		return 2
	}
	if config.Audit.Enabled {
		auditLogger, err := nodeconf.NewAuditLogger(config.Audit)
		if err != nil {
			logger.Warn("audit trail disabled", "error", err)
		} else {
			defer func() { _ = auditLogger.Close() }()
			manager.WithAudit(auditLogger)
		}
	}

	if err := manager.Run(args); err != nil {
		if code := nodeconf.ErrorCode(err); code != "" {
			fmt.Fprintf(os.Stderr, "nodeconf: %v [%s]\n", err, code)
		} else {
			fmt.Fprintf(os.Stderr, "nodeconf: %v\n", err)
		}
		return 1
	}
	return 0
}
