// env_config.go: Environment variable support for nodeconf configuration
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

// Environment variables read by LoadConfigFromEnv.
const (
	EnvRunMode            = "NODECONF_RUN_MODE"
	EnvConfigFiles        = "NODECONF_CONFIG"
	EnvApplyTimeout       = "NODECONF_APPLY_TIMEOUT"
	EnvAuditEnabled       = "NODECONF_AUDIT_ENABLED"
	EnvAuditOutputFile    = "NODECONF_AUDIT_OUTPUT_FILE"
	EnvAuditMinLevel      = "NODECONF_AUDIT_MIN_LEVEL"
	EnvAuditBufferSize    = "NODECONF_AUDIT_BUFFER_SIZE"
	EnvAuditFlushInterval = "NODECONF_AUDIT_FLUSH_INTERVAL"
)

// EnvConfig holds the raw values of the NODECONF_ environment variables.
type EnvConfig struct {
	RunMode      string        `env:"NODECONF_RUN_MODE"`
	ConfigFiles  []string      `env:"NODECONF_CONFIG"` // os.PathListSeparator separated
	ApplyTimeout time.Duration `env:"NODECONF_APPLY_TIMEOUT"`

	AuditEnabled       bool          `env:"NODECONF_AUDIT_ENABLED"`
	AuditOutputFile    string        `env:"NODECONF_AUDIT_OUTPUT_FILE"`
	AuditMinLevel      string        `env:"NODECONF_AUDIT_MIN_LEVEL"`
	AuditBufferSize    int           `env:"NODECONF_AUDIT_BUFFER_SIZE"`
	AuditFlushInterval time.Duration `env:"NODECONF_AUDIT_FLUSH_INTERVAL"`
}

// LoadConfigFromEnv builds a Config from the environment, with defaults
// applied.
func LoadConfigFromEnv() (*Config, error) {
	config := &Config{}
	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config.WithDefaults(), nil
}

// ApplyEnv overrides fields of config with every NODECONF_ variable that is
// set. Unset variables leave the field alone.
func ApplyEnv(config *Config) error {
	env, err := loadEnvVars()
	if err != nil {
		return errors.Wrap(err, ErrCodeInvalidConfig, "failed to load environment configuration")
	}

	if env.RunMode != "" {
		config.RunMode = env.RunMode
	}
	if len(env.ConfigFiles) > 0 {
		config.ConfigFiles = env.ConfigFiles
	}
	if env.ApplyTimeout > 0 {
		config.ApplyTimeout = env.ApplyTimeout
	}

	if _, set := os.LookupEnv(EnvAuditEnabled); set {
		config.Audit.Enabled = env.AuditEnabled
	}
	if env.AuditOutputFile != "" {
		config.Audit.OutputFile = env.AuditOutputFile
	}
	if env.AuditMinLevel != "" {
		level, err := ParseAuditLevel(env.AuditMinLevel)
		if err != nil {
			return err
		}
		config.Audit.MinLevel = level
	}
	if env.AuditBufferSize > 0 {
		config.Audit.BufferSize = env.AuditBufferSize
	}
	if env.AuditFlushInterval > 0 {
		config.Audit.FlushInterval = env.AuditFlushInterval
	}
	return nil
}

func loadEnvVars() (*EnvConfig, error) {
	env := &EnvConfig{
		RunMode:         strings.TrimSpace(os.Getenv(EnvRunMode)),
		AuditEnabled:    GetEnvBoolWithDefault(EnvAuditEnabled, false),
		AuditOutputFile: os.Getenv(EnvAuditOutputFile),
		AuditMinLevel:   os.Getenv(EnvAuditMinLevel),
	}

	for _, f := range filepath.SplitList(os.Getenv(EnvConfigFiles)) {
		if f = strings.TrimSpace(f); f != "" {
			env.ConfigFiles = append(env.ConfigFiles, f)
		}
	}

	var err error
	if env.ApplyTimeout, err = envDuration(EnvApplyTimeout); err != nil {
		return nil, err
	}
	if env.AuditFlushInterval, err = envDuration(EnvAuditFlushInterval); err != nil {
		return nil, err
	}
	if value := os.Getenv(EnvAuditBufferSize); value != "" {
		size, convErr := strconv.Atoi(value)
		if convErr != nil || size <= 0 {
			return nil, errors.New(ErrCodeInvalidAuditConfig, "audit buffer size must be a positive integer").
				WithContext("variable", EnvAuditBufferSize).
				WithContext("value", value)
		}
		env.AuditBufferSize = size
	}
	return env, nil
}

// envDuration reads a duration variable. Plain integers are seconds, the way
// the filetimeout setting counts.
func envDuration(key string) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return 0, nil
	}
	if isDigits(value) {
		n, err := strconv.Atoi(value)
		if err == nil {
			return time.Duration(n) * time.Second, nil
		}
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeInvalidConfig, "invalid duration").
			WithContext("variable", key).
			WithContext("value", value)
	}
	return d, nil
}

// parseBool parses boolean values from environment variables
// Supports: true/false, 1/0, yes/no, on/off, enabled/disabled
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on", "enabled":
		return true
	default:
		return false
	}
}

// GetEnvWithDefault returns environment variable value or default if not set
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvBoolWithDefault returns environment variable as bool or default
func GetEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value)
	}
	return defaultValue
}
