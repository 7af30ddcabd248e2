// Utility functions for the nodeconf CLI
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"fmt"
	"strings"
	"time"

	flashflags "github.com/agilira/flash-flags"
	"github.com/agilira/go-errors"
	"github.com/agilira/nodeconf"
	shared "github.com/agilira/nodeconf/internal/cli"
	"github.com/agilira/orpheus/pkg/orpheus"
)

// positionalArgs returns the operands of the command: ctx.Args without flag
// tokens and the values those flags consumed.
func positionalArgs(ctx *orpheus.Context) []string {
	var args []string
	for i := 0; i < len(ctx.Args); i++ {
		arg := ctx.Args[i]
		if len(arg) > 1 && arg[0] == '-' {
			if flagTakesValue(ctx, arg) {
				i++
			}
			continue
		}
		args = append(args, arg)
	}
	return args
}

// flagTakesValue reports whether token is a flag whose value is the next
// argument.
func flagTakesValue(ctx *orpheus.Context, token string) bool {
	if ctx.Flags == nil || strings.Contains(token, "=") {
		return false
	}
	var flag *flashflags.Flag
	if name, ok := strings.CutPrefix(token, "--"); ok {
		flag = ctx.Flags.Lookup(name)
	} else if short := token[1:]; len(short) == 1 {
		ctx.Flags.VisitAll(func(f *flashflags.Flag) {
			if f.ShortKey() == short {
				flag = f
			}
		})
	}
	return flag != nil && flag.Type() != "bool"
}

// fileSectionName reads the <file> <section> <name> arguments of command.
func fileSectionName(ctx *orpheus.Context, command string) (string, string, string, error) {
	args := positionalArgs(ctx)
	if len(args) < 3 {
		return "", "", "", usageError(command + " <file> <section> <name>")
	}
	return args[0], args[1], args[2], nil
}

func usageError(usage string) error {
	return errors.New(nodeconf.ErrCodeInvalidConfig, "usage: nodeconf "+usage)
}

// loadSettings builds a Settings from the --config, --runmode flags with the
// standard settings defined and the files loaded.
func (m *Manager) loadSettings(ctx *orpheus.Context, applier nodeconf.Applier) (*nodeconf.Settings, error) {
	return m.newSettings(ctx.GetFlagString("runmode"), shared.SplitList(ctx.GetFlagString("config")), applier)
}

// newSettings creates, defines and loads a Settings. applier may be nil.
func (m *Manager) newSettings(runMode string, files []string, applier nodeconf.Applier) (*nodeconf.Settings, error) {
	s, err := nodeconf.New(nodeconf.Config{
		RunMode:     runMode,
		ConfigFiles: files,
		Logger:      m.logger,
		AuditLogger: m.auditLogger,
		Applier:     applier,
		ErrorHandler: func(err error, path string) {
			m.println(fmt.Sprintf("Reparse of %s failed: %v", path, err))
		},
	})
	if err != nil {
		return nil, err
	}
	if err := nodeconf.DefineStandardSettings(s); err != nil {
		m.closeSettings(s)
		return nil, err
	}
	if err := s.Load(); err != nil {
		m.closeSettings(s)
		return nil, err
	}
	return s, nil
}

func (m *Manager) closeSettings(s *nodeconf.Settings) {
	if err := s.Close(); err != nil {
		m.logger.Warn("closing settings failed", "error", err)
	}
}

// print writes text to the output. Safe for concurrent use.
func (m *Manager) print(text string) {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	_, _ = fmt.Fprint(m.out, text)
}

func (m *Manager) println(line string) {
	m.print(line + "\n")
}

// formatAuditEvent renders one event on a single line.
func formatAuditEvent(e nodeconf.AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-8s %s", e.Timestamp.Format(time.RFC3339), e.Level, e.Event)
	if e.FilePath != "" {
		fmt.Fprintf(&b, " file=%s", e.FilePath)
	}
	if e.Setting != "" {
		fmt.Fprintf(&b, " setting=%s", e.Setting)
	}
	if e.OldValue != nil || e.NewValue != nil {
		fmt.Fprintf(&b, " %s -> %s", shared.FormatValue(e.OldValue), shared.FormatValue(e.NewValue))
	}
	for _, k := range shared.SortedKeys(e.Context) {
		fmt.Fprintf(&b, " %s=%v", k, e.Context[k])
	}
	return b.String()
}
