// args_test.go: Tests for command-line argument handling
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"strings"
	"testing"
)

func newArgsSettings(t *testing.T) *Settings {
	t.Helper()
	s, _ := newTestSettings(t, Config{})
	mustDefine(t, s, "main", map[string]Spec{
		"verbose": {Default: false, Description: "Verbose output.", Short: "v"},
		"noop":    Simple(false, "Do nothing."),
		"port":    Simple(8140, "Port."),
		"server":  {Default: "puppet", Description: "Server.", Short: "s"},
		"tags":    Simple("", "Tags."),
	})
	return s
}

func TestHandleArg(t *testing.T) {
	s := newArgsSettings(t)

	tests := []struct {
		opt, value string
		name       string
		want       any
	}{
		{"--verbose", "", "verbose", true},
		{"--no-verbose", "", "verbose", false},
		{"noop", "true", "noop", true},
		{"--port", "8150", "port", 8150},
		{"-s", "master.example.com", "server", "master.example.com"},
		{"--tags", "", "tags", ""},
	}
	for _, tt := range tests {
		known, err := s.HandleArg(tt.opt, tt.value)
		if err != nil || !known {
			t.Fatalf("HandleArg(%s, %s): known=%v err=%v", tt.opt, tt.value, known, err)
		}
		if got := mustResolve(t, s, tt.name, ""); got != tt.want {
			t.Errorf("HandleArg(%s, %s): expected %v, got %v", tt.opt, tt.value, tt.want, got)
		}
		if source, _ := s.Source(tt.name, ""); source != SourceCLI {
			t.Errorf("HandleArg(%s): expected source cli, got %s", tt.opt, source)
		}
	}
}

func TestHandleArgUnknownAndInvalid(t *testing.T) {
	logger := NewTestLogger()
	s, _ := newTestSettings(t, Config{Logger: logger})
	mustDefine(t, s, "main", map[string]Spec{"verbose": Simple(false, "Verbose.")})

	known, err := s.HandleArg("--nonexistent", "x")
	if err != nil || known {
		t.Errorf("Unknown arguments should be ignored, got known=%v err=%v", known, err)
	}
	if !logger.HasMessage("DEBUG", "ignoring unknown argument") {
		t.Error("Expected a debug record for the ignored argument")
	}

	known, err = s.HandleArg("--verbose", "maybe")
	if !known {
		t.Error("verbose is a known setting")
	}
	expectCode(t, err, ErrCodeInvalidSettingValue)
}

func TestApplyArgs(t *testing.T) {
	s := newArgsSettings(t)

	rest, err := s.ApplyArgs([]string{
		"apply",
		"--port=9000",
		"-v",
		"--server", "cli.example.com",
		"--unknown", "value",
		"--noop", "false",
		"--tags", "--",
		"--verbose", "manifest.pp",
	})
	if err != nil {
		t.Fatalf("ApplyArgs failed: %v", err)
	}

	if got := strings.Join(rest, " "); got != "apply --unknown value --verbose manifest.pp" {
		t.Errorf("Unexpected remaining arguments: %q", got)
	}

	tests := map[string]any{
		"port":    9000,
		"verbose": true,
		"server":  "cli.example.com",
		"noop":    false,
		"tags":    "",
	}
	for name, want := range tests {
		if got := mustResolve(t, s, name, ""); got != want {
			t.Errorf("%s: expected %v, got %v", name, want, got)
		}
	}
}

func TestApplyArgsBooleanDoesNotSwallowOperands(t *testing.T) {
	s := newArgsSettings(t)

	rest, err := s.ApplyArgs([]string{"--verbose", "site.pp", "--no-noop"})
	if err != nil {
		t.Fatalf("ApplyArgs failed: %v", err)
	}
	if len(rest) != 1 || rest[0] != "site.pp" {
		t.Errorf("Expected site.pp to remain, got %v", rest)
	}
	if got := mustResolve(t, s, "verbose", ""); got != true {
		t.Errorf("verbose: expected true, got %v", got)
	}
	if got := mustResolve(t, s, "noop", ""); got != false {
		t.Errorf("noop: expected false, got %v", got)
	}
}

func TestApplyArgsOutranksFiles(t *testing.T) {
	s := newArgsSettings(t)
	mustParse(t, s, "[main]\nport = 7000\n")

	if _, err := s.ApplyArgs([]string{"--port", "7100"}); err != nil {
		t.Fatalf("ApplyArgs failed: %v", err)
	}
	mustParse(t, s, "[main]\nport = 7200\n")

	if got := mustResolve(t, s, "port", ""); got != 7100 {
		t.Errorf("CLI values must survive a reparse, got %v", got)
	}
}

func TestApplyArgsInvalidBoolean(t *testing.T) {
	s := newArgsSettings(t)
	_, err := s.ApplyArgs([]string{"--verbose=perhaps"})
	expectCode(t, err, ErrCodeInvalidSettingValue)
	if !strings.Contains(err.Error(), "--verbose=perhaps") {
		t.Errorf("Expected the argument in the error, got %v", err)
	}
}
