// config.go: Engine configuration for nodeconf
//
// Copyright (c) 2025 AGILira
// Series: AGILira System Libraries
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// DefaultRunMode is used when Config.RunMode is empty.
const DefaultRunMode = "user"

// Applier applies materialized resources to the host. nodeconf only builds
// resource descriptions; an Applier owns the side effects.
type Applier interface {
	Apply(ctx context.Context, resources []ResourceDescriptor) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(ctx context.Context, resources []ResourceDescriptor) error

// Apply calls f.
func (f ApplierFunc) Apply(ctx context.Context, resources []ResourceDescriptor) error {
	return f(ctx, resources)
}

// ErrorHandler receives errors that cannot be returned to a caller, such as
// reparse failures inside the scheduler.
type ErrorHandler func(err error, path string)

// Config configures a Settings instance.
type Config struct {
	// RunMode selects the run-mode section of the config files.
	RunMode string

	// ConfigFiles are parsed together as one logical configuration, in
	// order. Reparse watches all of them.
	ConfigFiles []string

	// Host supplies the clock, file access and OS identity checks.
	Host Host

	// Logger receives engine diagnostics. Defaults to NoOpLogger.
	Logger Logger

	// ErrorHandler is called for every error swallowed by a background
	// reparse.
	ErrorHandler ErrorHandler

	// Audit configures the audit trail. A zero value disables it.
	Audit AuditConfig

	// AuditLogger, when set, is used instead of creating one from Audit.
	// Settings.Close does not close it.
	AuditLogger *AuditLogger

	// Applier receives re-materialized resources after a reparse.
	Applier Applier

	// ApplyTimeout bounds a single Applier call. Zero means no bound.
	ApplyTimeout time.Duration
}

// WithDefaults returns a copy of c with defaults applied.
func (c *Config) WithDefaults() *Config {
	config := *c

	if config.RunMode == "" {
		config.RunMode = DefaultRunMode
	}
	if config.Host == nil {
		config.Host = NewOSHost()
	}
	if config.Logger == nil {
		config.Logger = NewNoOpLogger()
	}
	if config.Audit.Enabled {
		if config.Audit.BufferSize <= 0 {
			config.Audit.BufferSize = DefaultAuditConfig().BufferSize
		}
		if config.Audit.FlushInterval < 0 {
			config.Audit.FlushInterval = DefaultAuditConfig().FlushInterval
		}
	}

	files := make([]string, 0, len(config.ConfigFiles))
	for _, f := range config.ConfigFiles {
		if strings.TrimSpace(f) != "" {
			files = append(files, filepath.Clean(f))
		}
	}
	config.ConfigFiles = files

	return &config
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.ContainsAny(c.RunMode, " \t[]=") {
		return errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("run mode %q is not a valid section name", c.RunMode)).
			WithContext("run_mode", c.RunMode)
	}
	if c.RunMode == mainSection {
		return errors.New(ErrCodeInvalidConfig, "run mode cannot be main").
			WithContext("run_mode", c.RunMode)
	}

	seen := make(map[string]bool, len(c.ConfigFiles))
	for _, f := range c.ConfigFiles {
		if seen[f] {
			return errors.New(ErrCodeInvalidConfig,
				fmt.Sprintf("config file %s listed twice", f)).
				WithContext("path", f)
		}
		seen[f] = true
	}

	if c.ApplyTimeout < 0 {
		return errors.New(ErrCodeInvalidConfig, "apply timeout cannot be negative")
	}

	if c.Audit.Enabled {
		if c.Audit.BufferSize < 0 {
			return errors.New(ErrCodeInvalidAuditConfig, "audit buffer size must be positive")
		}
		if c.Audit.FlushInterval < 0 {
			return errors.New(ErrCodeInvalidAuditConfig, "audit flush interval cannot be negative")
		}
	}
	return nil
}
