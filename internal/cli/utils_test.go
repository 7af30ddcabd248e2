// Tests for the shared command line helpers
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package cli

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"90s", 90 * time.Second},
		{"24h", 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.input)
		if err != nil {
			t.Errorf("ParseDuration(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, expected %v", tt.input, got, tt.want)
		}
	}

	for _, bad := range []string{"", "soon", "3y", "d"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) should fail", bad)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(nil); got != "" {
		t.Errorf("Expected empty string for nil, got %q", got)
	}
	if got := FormatValue(8140); got != "8140" {
		t.Errorf("Expected 8140, got %q", got)
	}
	if got := FormatValue(true); got != "true" {
		t.Errorf("Expected true, got %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" main, ,agent,")
	if strings.Join(got, "|") != "main|agent" {
		t.Errorf("Unexpected split: %v", got)
	}
	if SplitList("") != nil {
		t.Error("Expected nil for an empty list")
	}
}

func TestSortedKeys(t *testing.T) {
	got := SortedKeys(map[string]int{"server": 1, "agent": 2, "main": 3})
	if strings.Join(got, ",") != "agent,main,server" {
		t.Errorf("Unexpected order: %v", got)
	}
}

func TestCheckWritable(t *testing.T) {
	dir := t.TempDir()
	if err := CheckWritable(filepath.Join(dir, "new.conf")); err != nil {
		t.Errorf("A missing file in a writable directory should pass: %v", err)
	}
	if err := CheckWritable(filepath.Join(dir, "missing", "new.conf")); err == nil {
		t.Error("A missing directory should fail")
	}

	path := filepath.Join(dir, "node.conf")
	if err := os.WriteFile(path, []byte("[main]\n"), 0600); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := CheckWritable(path); err != nil {
		t.Errorf("A writable file should pass: %v", err)
	}

	if runtime.GOOS == "windows" {
		return
	}
	if err := os.Chmod(path, 0400); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	if err := CheckWritable(path); err == nil {
		t.Error("A read-only file should fail")
	}
}
