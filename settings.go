// settings.go: The nodeconf settings context
//
// Settings ties together the registry, the value tiers, the host and the
// audit trail. There is no package-level state: create one Settings per
// process, or one per test.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// Settings is the configuration engine.
//
// A single RWMutex guards the registry, the CLI and memory tiers and the
// file tier pointer. Parsing happens outside the lock; the new file tiers
// are swapped in under the write lock so readers never observe a partial
// reparse. Hooks always run with the lock released.
type Settings struct {
	mu       sync.RWMutex
	registry *Registry
	values   *valueStore
	files    *fileTiers
	runMode  string
	used     []string

	// reparseMu serializes Load and Reparse.
	reparseMu sync.Mutex
	stamps    map[string]time.Time

	config Config
	host   Host
	logger Logger
	audit  *AuditLogger

	ownsAudit bool
}

// New creates a Settings instance. The returned instance has no settings
// defined; see DefineStandardSettings.
func New(config Config) (*Settings, error) {
	cfg := config.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger.With("component", "nodeconf")

	auditLogger, ownsAudit := cfg.AuditLogger, false
	if auditLogger == nil {
		var err error
		auditLogger, err = NewAuditLogger(cfg.Audit)
		if err != nil {
			logger.Warn("audit trail disabled", "error", err)
			auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
		}
		ownsAudit = true
	}

	s := &Settings{
		registry: NewRegistry(),
		values:   newValueStore(),
		files:    emptyFileTiers(),
		runMode:  cfg.RunMode,
		stamps:   make(map[string]time.Time),
		config:   *cfg,
		host:     cfg.Host,
		logger:   logger,
		audit:    auditLogger,
	}
	s.ownsAudit = ownsAudit
	s.values.derived["run_mode"] = cfg.RunMode
	return s, nil
}

// Close flushes and closes the audit trail. A shared Config.AuditLogger is
// only flushed.
func (s *Settings) Close() error {
	if !s.ownsAudit {
		return s.audit.Flush()
	}
	return s.audit.Close()
}

// Host returns the host capabilities in use.
func (s *Settings) Host() Host { return s.host }

// Logger returns the engine logger.
func (s *Settings) Logger() Logger { return s.logger }

// Audit returns the audit logger. It may be disabled but is never nil.
func (s *Settings) Audit() *AuditLogger { return s.audit }

// ConfigFiles returns the watched config files.
func (s *Settings) ConfigFiles() []string {
	out := make([]string, len(s.config.ConfigFiles))
	copy(out, s.config.ConfigFiles)
	return out
}

// Define registers the settings of a section. Either every spec is stored or
// none is. Hooks flagged CallOnDefine run once afterwards with the resolved
// value.
func (s *Settings) Define(section string, specs map[string]Spec) error {
	s.mu.Lock()
	onDefine, err := s.registry.define(section, specs)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for _, name := range onDefine {
		value, err := s.Resolve(name, "")
		if err != nil {
			return err
		}
		if err := s.runHooks(name, value); err != nil {
			return err
		}
	}
	return nil
}

// IsValid reports whether name is defined.
func (s *Settings) IsValid(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.IsValid(name)
}

// Lookup returns the definition of name.
func (s *Settings) Lookup(name string) (*Setting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Lookup(name)
}

// LookupShort returns the definition claiming a short flag.
func (s *Settings) LookupShort(short string) (*Setting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.ByShort(short)
}

// Names returns all defined names, sorted.
func (s *Settings) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Names()
}

// Sections returns all definition sections, sorted.
func (s *Settings) Sections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Sections()
}

// InSection returns the definitions of section.
func (s *Settings) InSection(section string) []*Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.InSection(section)
}

// RegisterHook attaches fn to name. It runs after every change of the
// resolved value, whether made through Set or by a reparse.
func (s *Settings) RegisterHook(name string, fn Hook) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.addHook(name, fn)
}

// RunMode returns the current run mode.
func (s *Settings) RunMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runMode
}

// SetRunMode changes the run mode used to pick the run-mode section.
func (s *Settings) SetRunMode(mode string) error {
	cfg := Config{RunMode: mode}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.runMode = mode
	s.values.derived["run_mode"] = mode
	s.mu.Unlock()
	return nil
}

// Set stores value for name in the CLI or memory tier. Boolean settings
// accept "true" and "false" strings. Hooks receive the interpolated new
// value; if one fails the write is rolled back and the error returned.
func (s *Settings) Set(name string, value any, tier Tier) error {
	s.mu.Lock()
	setting, ok := s.registry.Lookup(name)
	if !ok {
		s.mu.Unlock()
		return unknownSetting(name)
	}
	if setting.derived {
		s.mu.Unlock()
		return errors.New(ErrCodeReadonlySetting,
			fmt.Sprintf("setting %s cannot be set directly", name)).
			WithContext("setting", name)
	}
	store, ok := s.values.tier(tier)
	if !ok {
		s.mu.Unlock()
		return errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("tier %s is not writable", tier)).
			WithContext("tier", tier.String())
	}

	value, err := normalizeValue(name, value)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	value = mungeBoolean(setting, value)
	previous, hadPrevious := store[name]
	oldRaw, _ := s.rawLocked(setting, "")
	store[name] = value

	hooks := s.registry.hooksFor(name)
	var resolved any
	if len(hooks) > 0 {
		resolved, err = s.resolveLocked(name, "", nil)
		if err != nil {
			restore(store, name, previous, hadPrevious)
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if err := s.runHooks(name, resolved); err != nil {
		s.mu.Lock()
		if current, ok := store[name]; ok && current == value {
			restore(store, name, previous, hadPrevious)
		}
		s.mu.Unlock()
		return err
	}

	s.audit.LogSettingChange(name, tier.String(), oldRaw, value)
	return nil
}

// Unset removes name from a writable tier.
func (s *Settings) Unset(name string, tier Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.registry.IsValid(name) {
		return unknownSetting(name)
	}
	store, ok := s.values.tier(tier)
	if !ok {
		return errors.New(ErrCodeInvalidConfig,
			fmt.Sprintf("tier %s is not writable", tier)).
			WithContext("tier", tier.String())
	}
	delete(store, name)
	return nil
}

func restore(store map[string]any, name string, previous any, had bool) {
	if had {
		store[name] = previous
	} else {
		delete(store, name)
	}
}

// runHooks calls every hook of name. A panicking hook is reported as a
// failure.
func (s *Settings) runHooks(name string, value any) error {
	s.mu.RLock()
	hooks := s.registry.hooksFor(name)
	s.mu.RUnlock()

	for _, hook := range hooks {
		if err := s.callHook(hook, name, value); err != nil {
			s.logger.Error("setting hook failed", "setting", name, "error", err)
			return err
		}
	}
	return nil
}

func (s *Settings) callHook(hook Hook, name string, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(ErrCodeHookFailed, fmt.Sprintf("hook for %s panicked: %v", name, r)).
				WithContext("setting", name)
		}
	}()
	if herr := hook(name, value); herr != nil {
		return errors.Wrap(herr, ErrCodeHookFailed, fmt.Sprintf("hook for %s failed", name)).
			WithContext("setting", name)
	}
	return nil
}

// ParseConfig parses text as the whole file configuration, replacing every
// file tier. Values that disappear from the file fall back to lower tiers.
// On error nothing changes.
func (s *Settings) ParseConfig(file, text string) error {
	doc, err := ParseINI(file, text)
	if err != nil {
		s.audit.LogParseFailure(file, err)
		return err
	}
	coll, err := NewCollection(doc)
	if err != nil {
		return err
	}
	s.swapFiles(coll.tiers())
	s.audit.LogReparse(file)
	return nil
}

// swapFiles installs new file tiers and notifies hooks of every setting
// whose resolved value changed.
func (s *Settings) swapFiles(next *fileTiers) {
	type change struct {
		name  string
		value any
	}

	s.mu.Lock()
	names := s.registry.hooked()
	before := make(map[string]any, len(names))
	for _, name := range names {
		if v, err := s.resolveLocked(name, "", nil); err == nil {
			before[name] = v
		}
	}

	s.files = next

	var changes []change
	for _, name := range names {
		v, err := s.resolveLocked(name, "", nil)
		if err != nil {
			s.logger.Warn("cannot resolve setting after reparse", "setting", name, "error", err)
			continue
		}
		if old, ok := before[name]; !ok || old != v {
			changes = append(changes, change{name: name, value: v})
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		// Reparse hook failures are logged by runHooks; the new tiers stay.
		_ = s.runHooks(c.name, c.value)
	}
}

// FileSections returns the sections of the loaded config files, in file
// order, classified for the current run mode.
func (s *Settings) FileSections() []Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.files.sectionNames()
	out := make([]Section, 0, len(names))
	for _, name := range names {
		out = append(out, Classify(name, s.runMode))
	}
	return out
}

// Environments returns the names of the environment sections found in the
// config files.
func (s *Settings) Environments() []string {
	var envs []string
	for _, section := range s.FileSections() {
		if section.Kind == SectionEnvironment {
			envs = append(envs, section.Name)
		}
	}
	return envs
}

// HasFileSection reports whether the loaded config files declare section.
func (s *Settings) HasFileSection(section string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files.has(section)
}
