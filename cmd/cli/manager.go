// Package cli provides the nodeconf command line interface.
//
// The commands are built on the Orpheus framework and drive the nodeconf
// engine: resolving settings, editing config files in place, rendering the
// resource catalog and watching config files for changes.
//
// Architecture:
// - Manager: command tree, output and shared audit logger
// - Handlers: one function per command
// - Utils: loading a Settings from command flags
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"io"
	"os"
	"sync"

	"github.com/agilira/nodeconf"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version is reported by the info command and --version.
const Version = "1.0.0"

// Manager owns the command tree.
type Manager struct {
	app         *orpheus.App
	auditLogger *nodeconf.AuditLogger
	logger      nodeconf.Logger

	outMu sync.Mutex
	out   io.Writer
}

// NewManager builds the command tree. Output goes to stdout until
// WithOutput is called.
func NewManager() *Manager {
	app := orpheus.New("nodeconf").
		SetDescription("Layered node settings: resolve, edit, materialize and watch").
		SetVersion(Version)

	manager := &Manager{
		app:    app,
		logger: nodeconf.NewNoOpLogger(),
		out:    os.Stdout,
	}

	manager.setupSettingsCommands()
	manager.setupFileCommands()
	manager.setupWatchCommands()
	manager.setupUtilityCommands()

	return manager
}

// WithAudit records config edits and setting changes in auditLogger and
// enables the audit commands.
func (m *Manager) WithAudit(auditLogger *nodeconf.AuditLogger) *Manager {
	m.auditLogger = auditLogger
	return m
}

// WithLogger sets the logger handed to every Settings the commands create.
func (m *Manager) WithLogger(logger nodeconf.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithOutput redirects command output.
func (m *Manager) WithOutput(w io.Writer) *Manager {
	if w != nil {
		m.out = w
	}
	return m
}

// Run executes the command line args, without the program name.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

// addSettingsFlags adds the flags every command that builds a Settings
// understands.
func addSettingsFlags(cmd *orpheus.Command) *orpheus.Command {
	return cmd.
		AddFlag("config", "c", "", "Config files, comma separated").
		AddFlag("runmode", "r", nodeconf.DefaultRunMode, "Run mode section to read").
		AddFlag("env", "e", "", "Environment section to read")
}

// setupSettingsCommands configures the commands that read resolved settings.
func (m *Manager) setupSettingsCommands() {
	printCmd := orpheus.NewCommand("print", "Print resolved settings").
		SetHandler(m.handlePrint)
	addSettingsFlags(printCmd)
	printCmd.AddBoolFlag("raw", "", false, "Print values before interpolation")
	printCmd.AddBoolFlag("source", "s", false, "Print where each value came from")
	m.app.AddCommand(printCmd)

	catalogCmd := orpheus.NewCommand("catalog", "Render the resource catalog of path settings as YAML").
		SetHandler(m.handleCatalog)
	addSettingsFlags(catalogCmd)
	m.app.AddCommand(catalogCmd)

	genCmd := orpheus.NewCommand("genconfig", "Print a commented config file for every setting").
		SetHandler(m.handleGenConfig)
	addSettingsFlags(genCmd)
	m.app.AddCommand(genCmd)
}

// setupFileCommands configures in-place config file editing.
func (m *Manager) setupFileCommands() {
	m.app.AddCommand(orpheus.NewCommand("get", "Print a value as written in a config file").
		SetHandler(m.handleGet))
	m.app.AddCommand(orpheus.NewCommand("set", "Set a value in a config file").
		SetHandler(m.handleSet))
	m.app.AddCommand(orpheus.NewCommand("delete", "Delete a value from a config file").
		SetHandler(m.handleDelete))
	m.app.AddCommand(orpheus.NewCommand("validate", "Check that a config file parses").
		SetHandler(m.handleValidate))
}

// setupWatchCommands configures change-driven reparsing.
func (m *Manager) setupWatchCommands() {
	watchCmd := orpheus.NewCommand("watch", "Reparse a config file on change and print the catalog").
		SetHandler(m.handleWatch)
	watchCmd.
		AddFlag("runmode", "r", nodeconf.DefaultRunMode, "Run mode section to read").
		AddFlag("interval", "i", "", "Reparse interval, overrides filetimeout").
		AddFlag("for", "", "0s", "Stop after this long; 0 runs until interrupted")
	watchCmd.AddBoolFlag("verbose", "v", false, "Print the catalog after every change")
	m.app.AddCommand(watchCmd)
}

// setupUtilityCommands configures audit, info and completion.
func (m *Manager) setupUtilityCommands() {
	auditCmd := orpheus.NewCommand("audit", "Audit trail inspection")

	queryCmd := auditCmd.Subcommand("query", "Query audit events", m.handleAuditQuery)
	queryCmd.AddFlag("since", "s", "24h", "Time range (e.g., 24h, 7d, 2w)")
	queryCmd.AddFlag("event", "e", "", "Event type filter")
	queryCmd.AddFlag("setting", "n", "", "Setting name filter")
	queryCmd.AddFlag("file", "f", "", "File path filter")
	queryCmd.AddIntFlag("limit", "l", 100, "Maximum results")

	auditCmd.Subcommand("stats", "Summarize the audit trail", m.handleAuditStats)
	m.app.AddCommand(auditCmd)

	infoCmd := orpheus.NewCommand("info", "Show the standard settings and their sources").
		SetHandler(m.handleInfo)
	infoCmd.AddBoolFlag("verbose", "v", false, "Also print the flag view of every setting")
	m.app.AddCommand(infoCmd)

	m.app.AddCommand(orpheus.NewCommand("completion", "Generate shell completion scripts").
		SetHandler(m.handleCompletion))
}
