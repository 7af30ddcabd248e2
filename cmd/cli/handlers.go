// Command handlers for the nodeconf CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/nodeconf"
	shared "github.com/agilira/nodeconf/internal/cli"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// handlePrint prints resolved settings, all of them when no name is given.
func (m *Manager) handlePrint(ctx *orpheus.Context) error {
	s, err := m.loadSettings(ctx, nil)
	if err != nil {
		return err
	}
	defer m.closeSettings(s)

	names := positionalArgs(ctx)
	if len(names) == 0 {
		names = s.Names()
	}
	env := ctx.GetFlagString("env")
	raw := ctx.GetFlagBool("raw")
	withSource := ctx.GetFlagBool("source")

	for _, name := range names {
		var value any
		if raw {
			value, err = s.Uninterpolated(name, env)
		} else {
			value, err = s.Resolve(name, env)
		}
		if err != nil {
			return err
		}
		line := fmt.Sprintf("%s = %s", name, shared.FormatValue(value))
		if withSource {
			source, err := s.Source(name, env)
			if err != nil {
				return err
			}
			line += "  # " + source
		}
		m.println(line)
	}
	return nil
}

// handleCatalog renders the catalog of the given sections, or of all of
// them.
func (m *Manager) handleCatalog(ctx *orpheus.Context) error {
	s, err := m.loadSettings(ctx, nil)
	if err != nil {
		return err
	}
	defer m.closeSettings(s)

	resources, err := s.Use(positionalArgs(ctx)...)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := nodeconf.RenderCatalog(&buf, resources); err != nil {
		return err
	}
	m.print(buf.String())
	return nil
}

// handleGenConfig prints the commented config file.
func (m *Manager) handleGenConfig(ctx *orpheus.Context) error {
	s, err := m.loadSettings(ctx, nil)
	if err != nil {
		return err
	}
	defer m.closeSettings(s)

	m.print(s.ToConfig())
	return nil
}

// handleGet prints a value as written in a file: get <file> <section> <name>.
func (m *Manager) handleGet(ctx *orpheus.Context) error {
	file, section, name, err := fileSectionName(ctx, "get")
	if err != nil {
		return err
	}
	writer, err := nodeconf.NewConfigWriter(file, m.auditLogger)
	if err != nil {
		return err
	}
	entry, ok := writer.GetValue(section, name)
	if !ok {
		return errors.New(nodeconf.ErrCodeUnknownSetting,
			fmt.Sprintf("%s is not set in [%s] of %s", name, section, file)).
			WithContext("section", section).
			WithContext("setting", name)
	}
	line := shared.FormatValue(entry.Value)
	if !entry.Meta.IsZero() {
		line += fmt.Sprintf("  {owner = %s, group = %s, mode = %s}", entry.Meta.Owner, entry.Meta.Group, entry.Meta.Mode)
	}
	m.println(line)
	return nil
}

// handleSet edits a file in place: set <file> <section> <name> <value>.
func (m *Manager) handleSet(ctx *orpheus.Context) error {
	file, section, name, err := fileSectionName(ctx, "set")
	if err != nil {
		return err
	}
	// A missing value sets the empty string.
	value := ctx.GetArg(3)

	if err := shared.CheckWritable(file); err != nil {
		return errors.Wrap(err, nodeconf.ErrCodeIOError, "config file is not writable").
			WithContext("path", file)
	}
	writer, err := nodeconf.NewConfigWriter(file, m.auditLogger)
	if err != nil {
		return err
	}
	if err := writer.SetValue(section, name, value); err != nil {
		return err
	}
	if err := writer.WriteConfig(); err != nil {
		return err
	}
	m.println(fmt.Sprintf("Set [%s] %s = %s in %s", section, name, value, file))
	return nil
}

// handleDelete removes a value from a file: delete <file> <section> <name>.
func (m *Manager) handleDelete(ctx *orpheus.Context) error {
	file, section, name, err := fileSectionName(ctx, "delete")
	if err != nil {
		return err
	}
	writer, err := nodeconf.NewConfigWriter(file, m.auditLogger)
	if err != nil {
		return err
	}
	removed, err := writer.DeleteValue(section, name)
	if err != nil {
		return err
	}
	if !removed {
		return errors.New(nodeconf.ErrCodeUnknownSetting,
			fmt.Sprintf("%s is not set in [%s] of %s", name, section, file)).
			WithContext("section", section).
			WithContext("setting", name)
	}
	if err := writer.WriteConfig(); err != nil {
		return err
	}
	m.println(fmt.Sprintf("Deleted [%s] %s from %s", section, name, file))
	return nil
}

// handleValidate parses a file and reports its sections.
func (m *Manager) handleValidate(ctx *orpheus.Context) error {
	args := positionalArgs(ctx)
	if len(args) < 1 {
		return usageError("validate <file>")
	}
	file := args[0]
	data, err := os.ReadFile(file) // #nosec G304 -- file named on the command line
	if err != nil {
		return errors.Wrap(err, nodeconf.ErrCodeIOError, "cannot read config file").
			WithContext("path", file)
	}
	doc, err := nodeconf.ParseINI(file, string(data))
	if err != nil {
		m.println(fmt.Sprintf("Invalid config file: %v", err))
		return err
	}

	var kinds []string
	for _, section := range doc.Sections() {
		kinds = append(kinds, fmt.Sprintf("[%s] %s", section, nodeconf.Classify(section, nodeconf.DefaultRunMode).Kind))
	}
	m.println(fmt.Sprintf("Valid config file: %s", file))
	for _, k := range kinds {
		m.println("  " + k)
	}
	return nil
}

// handleWatch loads one file, materializes every section and reparses the
// file on a timer until interrupted.
func (m *Manager) handleWatch(ctx *orpheus.Context) error {
	args := positionalArgs(ctx)
	if len(args) < 1 {
		return usageError("watch <file>")
	}
	file := args[0]
	verbose := ctx.GetFlagBool("verbose")

	var limit time.Duration
	if forStr := ctx.GetFlagString("for"); forStr != "" {
		d, err := shared.ParseDuration(forStr)
		if err != nil {
			return errors.New(nodeconf.ErrCodeInvalidConfig, fmt.Sprintf("invalid --for duration: %v", err))
		}
		limit = d
	}

	applier := nodeconf.ApplierFunc(func(_ context.Context, resources []nodeconf.ResourceDescriptor) error {
		m.println(fmt.Sprintf("Config changed: %d resources", len(resources)))
		if !verbose {
			return nil
		}
		var buf bytes.Buffer
		if err := nodeconf.RenderCatalog(&buf, resources); err != nil {
			return err
		}
		m.print(buf.String())
		return nil
	})

	s, err := m.newSettings(ctx.GetFlagString("runmode"), []string{file}, applier)
	if err != nil {
		return err
	}
	defer m.closeSettings(s)

	if intervalStr := ctx.GetFlagString("interval"); intervalStr != "" {
		interval, err := shared.ParseDuration(intervalStr)
		if err != nil {
			return errors.New(nodeconf.ErrCodeInvalidConfig, fmt.Sprintf("invalid interval: %v", err))
		}
		seconds := int(interval / time.Second)
		if seconds < 1 {
			return errors.New(nodeconf.ErrCodeInvalidConfig, "interval must be at least one second")
		}
		if err := s.Set("filetimeout", seconds, nodeconf.TierCLI); err != nil {
			return err
		}
	}

	resources, err := s.Use()
	if err != nil {
		return err
	}

	sched := nodeconf.NewScheduler(s)
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() { _ = sched.Close() }()

	m.println(fmt.Sprintf("Watching %s (interval: %v, %d resources)", file, s.ReparseInterval(), len(resources)))

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, limit)
		defer cancel()
	}
	<-runCtx.Done()

	stats := sched.Stats()
	m.println(fmt.Sprintf("Stopped after %d checks, %d failed", stats.Runs, stats.Failures))
	return nil
}

// handleAuditQuery prints matching audit events, oldest first.
func (m *Manager) handleAuditQuery(ctx *orpheus.Context) error {
	if !m.auditLogger.Enabled() {
		return errors.New(nodeconf.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}

	query := nodeconf.AuditQuery{
		Event:    ctx.GetFlagString("event"),
		Setting:  ctx.GetFlagString("setting"),
		FilePath: ctx.GetFlagString("file"),
		Limit:    ctx.GetFlagInt("limit"),
	}
	if since := ctx.GetFlagString("since"); since != "" {
		d, err := shared.ParseDuration(since)
		if err != nil {
			return errors.New(nodeconf.ErrCodeInvalidConfig, fmt.Sprintf("invalid --since duration: %v", err))
		}
		query.Since = time.Now().Add(-d)
	}

	events, err := m.auditLogger.Query(query)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		m.println("No audit events found")
		return nil
	}
	for _, e := range events {
		m.println(formatAuditEvent(e))
	}
	return nil
}

// handleAuditStats prints audit trail totals.
func (m *Manager) handleAuditStats(ctx *orpheus.Context) error {
	if !m.auditLogger.Enabled() {
		return errors.New(nodeconf.ErrCodeInvalidAuditConfig, "audit logging not enabled")
	}
	stats, err := m.auditLogger.Stats()
	if err != nil {
		return err
	}
	m.println(fmt.Sprintf("Total events: %d", stats.TotalEvents))
	for _, level := range shared.SortedKeys(stats.EventsByLevel) {
		m.println(fmt.Sprintf("  %s: %d", level, stats.EventsByLevel[level]))
	}
	for _, name := range shared.SortedKeys(stats.EventsByName) {
		m.println(fmt.Sprintf("  %s: %d", name, stats.EventsByName[name]))
	}
	return nil
}

// handleInfo prints the standard settings with their resolved values.
func (m *Manager) handleInfo(ctx *orpheus.Context) error {
	s, err := m.newSettings(nodeconf.DefaultRunMode, nil, nil)
	if err != nil {
		return err
	}
	defer m.closeSettings(s)

	m.println(fmt.Sprintf("nodeconf %s", Version))
	m.println(fmt.Sprintf("Run mode: %s", s.RunMode()))
	m.println(fmt.Sprintf("Privileged: %v", s.Host().IsPrivilegedUser()))
	m.println(fmt.Sprintf("Audit: %v", m.auditLogger.Enabled()))
	for _, name := range []string{"config_dir", "var_dir", "config"} {
		m.println(fmt.Sprintf("%s = %s", name, shared.FormatValue(s.Value(name))))
	}

	if ctx.GetFlagBool("verbose") {
		fs := s.FlagSet("nodeconf", "nodeconf settings", Version)
		m.println(fmt.Sprintf("Flags: --%s", strings.Join(nodeconf.FlagNames(fs), ", --")))
	}
	return nil
}

// handleCompletion generates shell completion scripts.
func (m *Manager) handleCompletion(ctx *orpheus.Context) error {
	commands := "print catalog genconfig get set delete validate watch audit info completion"
	switch shell := ctx.GetArg(0); shell {
	case "bash":
		m.println("# Bash completion for nodeconf")
		m.println("# Add to ~/.bashrc: source <(nodeconf completion bash)")
		m.println("_nodeconf_completion() {")
		m.println(fmt.Sprintf("  COMPREPLY=($(compgen -W '%s' -- \"${COMP_WORDS[COMP_CWORD]}\"))", commands))
		m.println("}")
		m.println("complete -F _nodeconf_completion nodeconf")
	case "zsh":
		m.println("#compdef nodeconf")
		m.println("_nodeconf() {")
		m.println(fmt.Sprintf("  _arguments '1: :(%s)'", commands))
		m.println("}")
	case "fish":
		m.println(fmt.Sprintf("complete -c nodeconf -f -a '%s'", commands))
	default:
		return errors.New(nodeconf.ErrCodeInvalidConfig, fmt.Sprintf("unsupported shell: %s", shell))
	}
	return nil
}
