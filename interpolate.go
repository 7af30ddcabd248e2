// interpolate.go: Precedence walk and $name interpolation for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

var referencePattern = regexp.MustCompile(`\$(\w+)|\$\{(\w+)\}`)

// Source names reported by Settings.Source.
const (
	SourceCLI     = "cli"
	SourceMemory  = "memory"
	SourceDefault = "default"
	SourceDerived = "derived"
)

// Resolve returns the value of name as seen from env, which may be empty.
// Every call walks the tiers again; nothing is cached.
//
// The winning raw value is interpolated, then coerced to the declared type.
func (s *Settings) Resolve(name, env string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolveLocked(name, env, nil)
}

func (s *Settings) resolveLocked(name, env string, stack []string) (any, error) {
	setting, ok := s.registry.Lookup(name)
	if !ok {
		return nil, unknownSetting(name)
	}
	for i, seen := range stack {
		if seen == name {
			chain := append(append([]string{}, stack[i:]...), name)
			return nil, errors.New(ErrCodeInterpolationCycle,
				fmt.Sprintf("interpolation cycle: %s", strings.Join(chain, " -> "))).
				WithContext("setting", name)
		}
	}

	raw, _ := s.rawLocked(setting, env)
	str, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	expanded, err := s.interpolateLocked(str, env, append(stack, name))
	if err != nil {
		return nil, err
	}
	return coerce(setting, expanded)
}

// rawLocked walks the tiers for setting and returns the winning raw value
// and the tier it came from.
func (s *Settings) rawLocked(setting *Setting, env string) (any, string) {
	name := setting.name
	if setting.derived {
		if v, ok := s.values.derived[name]; ok {
			return v, SourceDerived
		}
		return setting.defaultValue, SourceDefault
	}
	if v, ok := s.values.cli[name]; ok {
		return v, SourceCLI
	}
	for _, section := range searchOrder(env, s.runMode) {
		if fv, ok := s.files.lookup(section, name); ok {
			return fv.value, section
		}
	}
	if v, ok := s.values.memory[name]; ok {
		return v, SourceMemory
	}
	return setting.defaultValue, SourceDefault
}

// interpolateLocked substitutes every $name and ${name} in value. stack holds
// the settings being resolved by the enclosing calls.
func (s *Settings) interpolateLocked(value, env string, stack []string) (string, error) {
	if !strings.Contains(value, "$") {
		return value, nil
	}
	var firstErr error
	out := referencePattern.ReplaceAllStringFunc(value, func(token string) string {
		if firstErr != nil {
			return token
		}
		m := referencePattern.FindStringSubmatch(token)
		ref := m[1]
		if ref == "" {
			ref = m[2]
		}
		if ref == "environment" && env != "" {
			return env
		}
		resolved, err := s.resolveLocked(ref, env, stack)
		if err != nil {
			firstErr = err
			return token
		}
		return fmt.Sprint(resolved)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Uninterpolated returns the winning raw value of name without substitution
// or coercion.
func (s *Settings) Uninterpolated(name, env string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.registry.Lookup(name)
	if !ok {
		return nil, unknownSetting(name)
	}
	raw, _ := s.rawLocked(setting, env)
	return raw, nil
}

// Source returns the tier that currently supplies name: cli, memory,
// default, derived, or the file section name.
func (s *Settings) Source(name, env string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	setting, ok := s.registry.Lookup(name)
	if !ok {
		return "", unknownSetting(name)
	}
	_, source := s.rawLocked(setting, env)
	return source, nil
}

// Value returns the resolved value of name, or nil when it cannot be
// resolved.
func (s *Settings) Value(name string) any {
	v, err := s.Resolve(name, "")
	if err != nil {
		return nil
	}
	return v
}

// String resolves name and formats it as a string.
func (s *Settings) String(name string) (string, error) {
	v, err := s.Resolve(name, "")
	if err != nil {
		return "", err
	}
	if str, ok := v.(string); ok {
		return str, nil
	}
	return fmt.Sprint(v), nil
}

// Bool resolves name as a boolean.
func (s *Settings) Bool(name string) (bool, error) {
	v, err := s.Resolve(name, "")
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, errors.New(ErrCodeInvalidSettingValue,
			fmt.Sprintf("setting %s is %v, not a boolean", name, v)).
			WithContext("setting", name)
	}
	return b, nil
}

// Int resolves name as an integer.
func (s *Settings) Int(name string) (int, error) {
	v, err := s.Resolve(name, "")
	if err != nil {
		return 0, err
	}
	n, ok := v.(int)
	if !ok {
		return 0, errors.New(ErrCodeInvalidSettingValue,
			fmt.Sprintf("setting %s is %v, not an integer", name, v)).
			WithContext("setting", name)
	}
	return n, nil
}

// Duration resolves an integer setting holding seconds.
func (s *Settings) Duration(name string) (time.Duration, error) {
	n, err := s.Int(name)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// Metadata returns the file metadata of name as seen from env: the
// definition's metadata overlaid by file-tier metadata, with env sections
// taking precedence over the run-mode section and main. Owner and group are
// interpolated.
func (s *Settings) Metadata(name, env string) (FileMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadataLocked(name, env)
}

func (s *Settings) metadataLocked(name, env string) (FileMeta, error) {
	setting, ok := s.registry.Lookup(name)
	if !ok {
		return FileMeta{}, unknownSetting(name)
	}
	meta := setting.meta
	order := searchOrder(env, s.runMode)
	for i := len(order) - 1; i >= 0; i-- {
		if fv, ok := s.files.lookup(order[i], name); ok {
			meta = meta.overlay(fv.meta)
		}
	}

	var err error
	if meta.Owner, err = s.interpolateLocked(meta.Owner, env, []string{name}); err != nil {
		return FileMeta{}, err
	}
	if meta.Group, err = s.interpolateLocked(meta.Group, env, []string{name}); err != nil {
		return FileMeta{}, err
	}
	return meta, nil
}

func unknownSetting(name string) error {
	return errors.New(ErrCodeUnknownSetting, fmt.Sprintf("unknown setting %s", name)).
		WithContext("setting", name)
}
