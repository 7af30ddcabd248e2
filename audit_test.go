// audit_test.go: Tests for the audit trail
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newJSONLAudit(t *testing.T, bufferSize int) (*AuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: path, BufferSize: bufferSize})
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	t.Cleanup(func() { _ = logger.Close() })
	return logger, path
}

func TestDisabledAuditLogger(t *testing.T) {
	logger, err := NewAuditLogger(AuditConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewAuditLogger failed: %v", err)
	}
	if logger.Enabled() {
		t.Error("Disabled logger reports enabled")
	}
	logger.LogReparse("/etc/node.conf")
	events, err := logger.Query(AuditQuery{})
	if err != nil || events != nil {
		t.Errorf("Disabled logger query: %v, %v", events, err)
	}
	stats, err := logger.Stats()
	if err != nil || stats.TotalEvents != 0 {
		t.Errorf("Disabled logger stats: %+v, %v", stats, err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	var nilLogger *AuditLogger
	nilLogger.LogSettingChange("a", "cli", nil, "b")
	if err := nilLogger.Flush(); err != nil {
		t.Errorf("Flush on nil logger: %v", err)
	}
	if err := nilLogger.Close(); err != nil {
		t.Errorf("Close on nil logger: %v", err)
	}
}

func TestAuditJSONLQuery(t *testing.T) {
	logger, _ := newJSONLAudit(t, 100)

	logger.LogReparse("/etc/a.conf")
	logger.LogSettingChange("server", "cli", "old.example", "new.example")
	logger.LogParseFailure("/etc/b.conf", errors.New("broken"))
	logger.LogSettingChange("port", "memory", 8140, 8141)
	logger.LogCatalogUse([]string{"main", "agent"}, 4)

	all, err := logger.Query(AuditQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(all))
	}
	for _, e := range all {
		if e.Component != "nodeconf" || e.ProcessID != os.Getpid() {
			t.Errorf("Unexpected event metadata: %+v", e)
		}
		if !VerifyChecksum(e) {
			t.Errorf("Checksum mismatch for %s", e.Event)
		}
	}

	changes, _ := logger.Query(AuditQuery{Event: AuditEventSettingChange})
	if len(changes) != 2 || changes[0].Setting != "server" || changes[1].Context["tier"] != "memory" {
		t.Errorf("Unexpected setting changes: %+v", changes)
	}

	warnings, _ := logger.Query(AuditQuery{MinLevel: AuditWarn})
	if len(warnings) != 3 {
		t.Errorf("Expected 3 events at WARN or above, got %d", len(warnings))
	}

	latest, _ := logger.Query(AuditQuery{Limit: 1})
	if len(latest) != 1 || latest[0].Event != AuditEventCatalogUse {
		t.Errorf("Expected the newest event, got %+v", latest)
	}
	if latest[0].Context["sections"] != "main,agent" {
		t.Errorf("Expected sections in context, got %v", latest[0].Context)
	}

	future, _ := logger.Query(AuditQuery{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Errorf("Expected no events in the future, got %d", len(future))
	}

	stats, err := logger.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 5 || stats.EventsByLevel["CRITICAL"] != 2 || stats.EventsByName[AuditEventReparse] != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestAuditChecksumDetectsTampering(t *testing.T) {
	logger, _ := newJSONLAudit(t, 100)
	logger.LogSettingChange("server", "cli", "a", "b")

	events, err := logger.Query(AuditQuery{})
	if err != nil || len(events) != 1 {
		t.Fatalf("Query failed: %v, %d events", err, len(events))
	}
	tampered := events[0]
	tampered.NewValue = "evil"
	if VerifyChecksum(tampered) {
		t.Error("Tampered event passed checksum verification")
	}
}

func TestAuditBufferFlushesWhenFull(t *testing.T) {
	logger, path := newJSONLAudit(t, 2)

	logger.LogReparse("/etc/a.conf")
	logger.LogReparse("/etc/b.conf")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read audit log: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("Expected a full buffer to be written, got %d lines", lines)
	}
}

func TestAuditMinLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: path, MinLevel: AuditCritical})
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.LogReparse("/etc/a.conf")
	logger.LogSettingChange("server", "cli", nil, "x")
	logger.LogSecurityEvent("config_tamper", "checksum mismatch", nil)

	events, err := logger.Query(AuditQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected info events to be dropped, got %d events", len(events))
	}
	if events[1].Level != AuditSecurity || events[1].Context["details"] != "checksum mismatch" {
		t.Errorf("Unexpected security event: %+v", events[1])
	}
}

func TestAuditSQLiteBackend(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "audit.db")
	logger, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: dbPath, BufferSize: 10})
	if err != nil {
		t.Fatalf("Failed to create audit logger: %v", err)
	}

	logger.LogSettingChange("server", "cli", "old", "new")
	logger.LogConfigWrite("/etc/node.conf", "agent", "port", nil, 8140)
	logger.LogReparse("/etc/node.conf")

	events, err := logger.Query(AuditQuery{Setting: "port"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected one port event, got %d", len(events))
	}
	e := events[0]
	if e.Event != AuditEventConfigWrite || e.FilePath != "/etc/node.conf" || e.NewValue != float64(8140) || e.OldValue != nil {
		t.Errorf("Unexpected event: %+v", e)
	}
	if e.Level != AuditCritical || e.Context["section"] != "agent" {
		t.Errorf("Unexpected level or context: %+v", e)
	}
	if !VerifyChecksum(e) {
		t.Error("Checksum mismatch after a SQLite round trip")
	}

	stats, err := logger.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalEvents != 3 || stats.SchemaVersion != currentSchemaVersion {
		t.Errorf("Unexpected stats: %+v", stats)
	}
	if stats.OldestEvent == nil || stats.NewestEvent == nil || stats.DatabaseSize == 0 {
		t.Errorf("Expected time range and size, got %+v", stats)
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewAuditLogger(AuditConfig{Enabled: true, OutputFile: dbPath})
	if err != nil {
		t.Fatalf("Failed to reopen audit database: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	events, err = reopened.Query(AuditQuery{Event: AuditEventReparse})
	if err != nil || len(events) != 1 {
		t.Errorf("Expected the reparse event to persist, got %d events, %v", len(events), err)
	}
}

func TestParseAuditLevel(t *testing.T) {
	tests := map[string]AuditLevel{
		"info":     AuditInfo,
		"WARN":     AuditWarn,
		"warning":  AuditWarn,
		"Critical": AuditCritical,
		"security": AuditSecurity,
	}
	for input, want := range tests {
		got, err := ParseAuditLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseAuditLevel(%q) = %v, %v", input, got, err)
		}
	}
	_, err := ParseAuditLevel("loud")
	expectCode(t, err, ErrCodeInvalidAuditConfig)
}

func TestSettingsWriteAuditTrail(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.jsonl")
	s, _ := newTestSettings(t, Config{Audit: AuditConfig{Enabled: true, OutputFile: auditPath}})
	if !s.Audit().Enabled() {
		t.Fatal("Expected an enabled audit trail")
	}
	mustDefine(t, s, "main", map[string]Spec{
		"server": Simple("none", "Server."),
		"logdir": {Type: TypeDirectory, Default: "/var/log/node", Description: "Log dir."},
	})

	if err := s.Set("server", "cli.example", TierCLI); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	mustParse(t, s, "[main]\nserver = file.example\n")
	_ = s.ParseConfig("bad.conf", "orphan = 1\n")
	if _, err := s.Use("main"); err != nil {
		t.Fatalf("Use failed: %v", err)
	}

	events, err := s.Audit().Query(AuditQuery{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	var names []string
	for _, e := range events {
		names = append(names, e.Event)
	}
	want := []string{AuditEventSettingChange, AuditEventReparse, AuditEventParseFailure, AuditEventCatalogUse}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Expected events %v, got %v", want, names)
	}
	if events[0].Setting != "server" || events[0].OldValue != "none" || events[0].NewValue != "cli.example" {
		t.Errorf("Unexpected setting change: %+v", events[0])
	}
	if events[2].Context["code"] != ErrCodePropertyOutsideSection {
		t.Errorf("Expected the parse error code, got %v", events[2].Context)
	}
}
