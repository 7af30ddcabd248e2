// audit.go: Audit trail for setting changes, reparses and catalog use
//
// Every write to a value tier, every file reparse (successful or not) and
// every materialized catalog is recorded with a tamper-detection checksum.
// Events are buffered and flushed to a pluggable backend in batches.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// auditComponent tags every event written by this package.
const auditComponent = "nodeconf"

// Audit event names.
const (
	AuditEventSettingChange = "setting_change"
	AuditEventReparse       = "config_reparse"
	AuditEventParseFailure  = "config_parse_failure"
	AuditEventCatalogUse    = "catalog_use"
	AuditEventConfigWrite   = "config_write"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// ParseAuditLevel is the inverse of AuditLevel.String. It is case
// insensitive.
func ParseAuditLevel(s string) (AuditLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INFO":
		return AuditInfo, nil
	case "WARN", "WARNING":
		return AuditWarn, nil
	case "CRITICAL":
		return AuditCritical, nil
	case "SECURITY":
		return AuditSecurity, nil
	}
	return AuditInfo, errors.New(ErrCodeInvalidAuditConfig,
		fmt.Sprintf("unknown audit level %q", s)).WithContext("level", s)
}

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	FilePath    string                 `json:"file_path,omitempty"`
	Setting     string                 `json:"setting,omitempty"`
	OldValue    interface{}            `json:"old_value,omitempty"`
	NewValue    interface{}            `json:"new_value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"`
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	OutputFile    string        `json:"output_file" yaml:"output_file"`
	MinLevel      AuditLevel    `json:"min_level" yaml:"min_level"`
	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
}

// DefaultAuditConfig returns an enabled audit configuration writing to the
// shared SQLite database. Use an OutputFile ending in .jsonl for a JSON
// lines file, or in .db for a private database.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "",
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger buffers audit events and flushes them to a backend. A nil or
// disabled logger accepts every call and records nothing.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closeOnce   sync.Once
	processID   int
	processName string
}

// NewAuditLogger creates an audit logger. A disabled config yields a logger
// without a backend.
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	if !config.Enabled {
		return &AuditLogger{config: config, stopCh: make(chan struct{})}, nil
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultAuditConfig().BufferSize
	}

	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidAuditConfig, "cannot initialize audit backend").
			WithContext("output_file", config.OutputFile)
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: getProcessName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Enabled reports whether events are recorded.
func (al *AuditLogger) Enabled() bool {
	return al != nil && al.backend != nil && al.config.Enabled
}

// Log records an audit event.
func (al *AuditLogger) Log(level AuditLevel, event, filePath, setting string, oldVal, newVal interface{}, context map[string]interface{}) {
	if !al.Enabled() || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   auditComponent,
		FilePath:    filePath,
		Setting:     setting,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe()
	}
	al.bufferMu.Unlock()
}

// LogSettingChange records a write to the cli or memory tier. A nil newVal
// records an unset.
func (al *AuditLogger) LogSettingChange(name, tier string, oldVal, newVal interface{}) {
	al.Log(AuditCritical, AuditEventSettingChange, "", name, oldVal, newVal,
		map[string]interface{}{"tier": tier})
}

// LogReparse records a successful parse of path.
func (al *AuditLogger) LogReparse(path string) {
	al.Log(AuditInfo, AuditEventReparse, path, "", nil, nil, nil)
}

// LogParseFailure records a rejected config file.
func (al *AuditLogger) LogParseFailure(path string, err error) {
	ctx := map[string]interface{}{"error": fmt.Sprint(err)}
	if code := ErrorCode(err); code != "" {
		ctx["code"] = code
	}
	al.Log(AuditWarn, AuditEventParseFailure, path, "", nil, nil, ctx)
}

// LogCatalogUse records a materialization. No sections means all of them.
func (al *AuditLogger) LogCatalogUse(sections []string, resources int) {
	al.Log(AuditInfo, AuditEventCatalogUse, "", "", nil, nil, map[string]interface{}{
		"sections":  strings.Join(sections, ","),
		"resources": resources,
	})
}

// LogConfigWrite records an edit written back to a config file.
func (al *AuditLogger) LogConfigWrite(path, section, name string, oldVal, newVal interface{}) {
	al.Log(AuditCritical, AuditEventConfigWrite, path, name, oldVal, newVal,
		map[string]interface{}{"section": section})
}

// LogSecurityEvent logs security-related events
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]interface{}) {
	if context == nil {
		context = map[string]interface{}{}
	}
	context["details"] = details
	al.Log(AuditSecurity, event, "", "", nil, nil, context)
}

// Query flushes pending events and reads matching events back from the
// backend, oldest first.
func (al *AuditLogger) Query(q AuditQuery) ([]AuditEvent, error) {
	if !al.Enabled() {
		return nil, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.Query(q)
}

// Stats returns backend statistics.
func (al *AuditLogger) Stats() (*AuditDatabaseStats, error) {
	if !al.Enabled() {
		return &AuditDatabaseStats{}, nil
	}
	if err := al.Flush(); err != nil {
		return nil, err
	}
	return al.backend.GetStats()
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	if !al.Enabled() {
		return nil
	}
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Close flushes and releases the backend. It is safe to call more than once.
func (al *AuditLogger) Close() error {
	if al == nil {
		return nil
	}
	var err error
	al.closeOnce.Do(func() {
		close(al.stopCh)
		if al.flushTicker != nil {
			al.flushTicker.Stop()
		}
		if al.backend == nil {
			return
		}
		if flushErr := al.Flush(); flushErr != nil {
			err = flushErr
		}
		if closeErr := al.backend.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, ErrCodeIOError, "cannot close audit backend")
		}
	})
	return err
}

func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush()
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes the buffer to the backend. Caller holds bufferMu.
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}
	if err := al.backend.Write(al.buffer); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot write audit events").
			WithContext("events", len(al.buffer))
	}
	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.Component, event.FilePath, event.Setting,
		event.OldValue, event.NewValue)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}

// VerifyChecksum reports whether event still matches its checksum.
func VerifyChecksum(event AuditEvent) bool {
	return event.Checksum != "" && generateChecksum(event) == event.Checksum
}

func getProcessName() string {
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return auditComponent
}
