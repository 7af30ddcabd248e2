// helpers_test.go: Shared fixtures for nodeconf tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeHost is an in-memory Host. Files are written with setFile, which also
// bumps the modification time.
type fakeHost struct {
	mu         sync.Mutex
	now        time.Time
	files      map[string]string
	mtimes     map[string]time.Time
	readErrs   map[string]error
	privileged bool
	users      map[string]bool
	groups     map[string]bool
	home       string
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		files:    make(map[string]string),
		mtimes:   make(map[string]time.Time),
		readErrs: make(map[string]error),
		users:    map[string]bool{"root": true},
		groups:   map[string]bool{"root": true},
		home:     "/home/tester",
	}
}

func (h *fakeHost) setFile(path, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(time.Second)
	h.files[path] = text
	h.mtimes[path] = h.now
}

func (h *fakeHost) removeFile(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.files, path)
	delete(h.mtimes, path)
}

func (h *fakeHost) failReads(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readErrs[path] = err
}

func (h *fakeHost) CurrentTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *fakeHost) FileModTime(path string) (time.Time, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mtime, ok := h.mtimes[path]
	if !ok {
		return time.Time{}, fmt.Errorf("stat %s: no such file", path)
	}
	return mtime, nil
}

func (h *fakeHost) ReadFile(path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.readErrs[path]; err != nil {
		return "", err
	}
	text, ok := h.files[path]
	if !ok {
		return "", fmt.Errorf("open %s: no such file", path)
	}
	return text, nil
}

func (h *fakeHost) IsPrivilegedUser() bool { return h.privileged }
func (h *fakeHost) UserExists(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.users[name]
}
func (h *fakeHost) GroupExists(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[name]
}
func (h *fakeHost) HomeDir() string { return h.home }

// newTestSettings returns a Settings on a fake host. cfg.Host is replaced
// when nil.
func newTestSettings(t *testing.T, cfg Config) (*Settings, *fakeHost) {
	t.Helper()
	host, ok := cfg.Host.(*fakeHost)
	if !ok || host == nil {
		host = newFakeHost()
		cfg.Host = host
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create settings: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, host
}

func mustDefine(t *testing.T, s *Settings, section string, specs map[string]Spec) {
	t.Helper()
	if err := s.Define(section, specs); err != nil {
		t.Fatalf("Define(%s) failed: %v", section, err)
	}
}

func mustResolve(t *testing.T, s *Settings, name, env string) any {
	t.Helper()
	v, err := s.Resolve(name, env)
	if err != nil {
		t.Fatalf("Resolve(%s, %q) failed: %v", name, env, err)
	}
	return v
}

func mustParse(t *testing.T, s *Settings, text string) {
	t.Helper()
	if err := s.ParseConfig("test.conf", text); err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected error %s, got nil", code)
	}
	if !HasCode(err, code) {
		t.Fatalf("Expected error code %s, got %q (%v)", code, ErrorCode(err), err)
	}
}
