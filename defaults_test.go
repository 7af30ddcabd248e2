// defaults_test.go: Tests for the standard settings and their views
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"strings"
	"testing"
)

func newStandardSettings(t *testing.T, privileged bool) *Settings {
	t.Helper()
	host := newFakeHost()
	host.privileged = privileged
	s, _ := newTestSettings(t, Config{Host: host})
	if err := DefineStandardSettings(s); err != nil {
		t.Fatalf("DefineStandardSettings failed: %v", err)
	}
	return s
}

func TestStandardSettingsUnprivileged(t *testing.T) {
	s := newStandardSettings(t, false)

	tests := map[string]string{
		"config_dir": "/home/tester/.nodeconf/etc",
		"code_dir":   "/home/tester/.nodeconf/etc/code",
		"var_dir":    "/home/tester/.nodeconf/var",
		"log_dir":    "/home/tester/.nodeconf/var/log",
		"run_dir":    "/home/tester/.nodeconf/var/run",
		"config":     "/home/tester/.nodeconf/etc/nodeconf.conf",
	}
	for name, want := range tests {
		if got := mustResolve(t, s, name, ""); got != want {
			t.Errorf("%s: expected %s, got %v", name, want, got)
		}
	}
	if got := s.ReparseInterval(); got != DefaultFileTimeout {
		t.Errorf("Expected the default reparse interval, got %v", got)
	}
	if got := mustResolve(t, s, "run_mode", ""); got != DefaultRunMode {
		t.Errorf("Expected run_mode %s, got %v", DefaultRunMode, got)
	}
	expectCode(t, s.Set("run_mode", "agent", TierCLI), ErrCodeReadonlySetting)
}

func TestStandardSettingsPrivileged(t *testing.T) {
	s := newStandardSettings(t, true)

	if got := mustResolve(t, s, "config_dir", ""); got != SystemConfigDir {
		t.Errorf("Expected %s, got %v", SystemConfigDir, got)
	}
	if got := mustResolve(t, s, "config", ""); got != SystemConfigDir+"/nodeconf.conf" {
		t.Errorf("Expected the system config file, got %v", got)
	}

	resources, err := s.Use()
	if err != nil {
		t.Fatalf("Use failed: %v", err)
	}
	var logDir *ResourceDescriptor
	for i := range resources {
		if resources[i].Path == SystemLogDir {
			logDir = &resources[i]
		}
	}
	if logDir == nil {
		t.Fatalf("Expected %s in the catalog: %+v", SystemLogDir, resources)
	}
	if logDir.Owner != "nodeconf" || logDir.Group != "nodeconf" || logDir.Mode != "0750" {
		t.Errorf("Expected interpolated ownership on log_dir, got %+v", logDir)
	}
}

func TestStandardSettingsShortFlags(t *testing.T) {
	s := newStandardSettings(t, false)

	rest, err := s.ApplyArgs([]string{"-c", "/srv/conf", "-E", "staging", "apply"})
	if err != nil {
		t.Fatalf("ApplyArgs failed: %v", err)
	}
	if len(rest) != 1 || rest[0] != "apply" {
		t.Errorf("Expected apply left over, got %v", rest)
	}
	if got := mustResolve(t, s, "code_dir", ""); got != "/srv/conf/code" {
		t.Errorf("Expected code_dir to follow config_dir, got %v", got)
	}
	if got := mustResolve(t, s, "environment", ""); got != "staging" {
		t.Errorf("Expected staging, got %v", got)
	}
}

func TestFlagSetListsSettings(t *testing.T) {
	s := newStandardSettings(t, false)

	fs := s.FlagSet("nodeconf", "Node settings", "1.0.0")
	names := FlagNames(fs)
	joined := "," + strings.Join(names, ",") + ","
	for _, want := range []string{"config_dir", "filetimeout", "mkusers", "environment"} {
		if !strings.Contains(joined, ","+want+",") {
			t.Errorf("Expected flag %s in %v", want, names)
		}
	}
	if strings.Contains(joined, ",run_mode,") {
		t.Error("Derived settings are not flags")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Flag names not sorted: %v", names)
		}
	}
}

func TestToConfigStandardSettings(t *testing.T) {
	s := newStandardSettings(t, false)
	if err := s.Set("environment", "staging", TierMemory); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	out := s.ToConfig()
	if !strings.HasPrefix(out, "# Generated by nodeconf for run mode user.\n") {
		t.Errorf("Unexpected header:\n%s", out)
	}
	for _, want := range []string{
		"\n[main]\n",
		"    environment = staging\n",
		"    # filetimeout = 15\n",
		"    # code_dir = $config_dir/code\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in generated config:\n%s", want, out)
		}
	}
	if strings.Contains(out, "run_mode") {
		t.Errorf("Derived settings must not be generated:\n%s", out)
	}
}
