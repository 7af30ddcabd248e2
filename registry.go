// registry.go: Setting registry for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agilira/go-errors"
)

// Registry holds the catalog of setting definitions. Definitions are never
// removed or replaced once stored.
//
// Registry does no locking of its own: Settings owns one and serializes every
// access through its mutex.
type Registry struct {
	settings map[string]*Setting
	shorts   map[string]string // short flag -> setting name
	hooks    map[string][]Hook
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		settings: make(map[string]*Setting),
		shorts:   make(map[string]string),
		hooks:    make(map[string][]Hook),
	}
}

// define validates every spec and stores them all, or none. It returns the
// names whose hook must run at definition time, in sorted order.
func (r *Registry) define(section string, specs map[string]Spec) ([]string, error) {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	pending := make([]*Setting, 0, len(names))
	claimed := make(map[string]string)

	for _, name := range names {
		spec := specs[name]

		if strings.TrimSpace(name) == "" {
			return nil, errors.New(ErrCodeInvalidConfig, "setting name cannot be empty").
				WithContext("section", section)
		}
		if _, exists := r.settings[name]; exists {
			return nil, errors.New(ErrCodeDuplicateDefinition,
				fmt.Sprintf("setting %s is already defined", name)).
				WithContext("setting", name).
				WithContext("section", section)
		}
		if strings.TrimSpace(spec.Description) == "" {
			return nil, errors.New(ErrCodeMissingDescription,
				fmt.Sprintf("setting %s has no description", name)).
				WithContext("setting", name)
		}

		defaultValue, err := normalizeValue(name, spec.Default)
		if err != nil {
			return nil, err
		}
		spec.Default = defaultValue

		typ := inferType(spec)
		if !knownTypes[typ] {
			return nil, errors.New(ErrCodeUnknownSettingType,
				fmt.Sprintf("setting %s has unknown type %q", name, typ)).
				WithContext("setting", name).
				WithContext("type", string(typ))
		}

		if spec.Short != "" {
			if utf8.RuneCountInString(spec.Short) != 1 {
				return nil, errors.New(ErrCodeInvalidConfig,
					fmt.Sprintf("short flag %q of %s must be a single character", spec.Short, name)).
					WithContext("setting", name)
			}
			if owner, taken := r.shorts[spec.Short]; taken {
				return nil, errors.New(ErrCodeShortFlagConflict,
					fmt.Sprintf("short flag -%s of %s is already claimed by %s", spec.Short, name, owner)).
					WithContext("setting", name).
					WithContext("owner", owner)
			}
			if owner, taken := claimed[spec.Short]; taken {
				return nil, errors.New(ErrCodeShortFlagConflict,
					fmt.Sprintf("short flag -%s of %s is already claimed by %s", spec.Short, name, owner)).
					WithContext("setting", name).
					WithContext("owner", owner)
			}
			claimed[spec.Short] = name
		}

		pending = append(pending, &Setting{
			name:         name,
			section:      section,
			typ:          typ,
			defaultValue: defaultValue,
			description:  strings.TrimSpace(spec.Description),
			short:        spec.Short,
			meta:         spec.Meta,
			create:       spec.Create,
			callOnDefine: spec.CallOnDefine,
			derived:      spec.Derived,
		})
	}

	var onDefine []string
	for _, setting := range pending {
		r.settings[setting.name] = setting
		if setting.short != "" {
			r.shorts[setting.short] = setting.name
		}
		if hook := specs[setting.name].Hook; hook != nil {
			r.hooks[setting.name] = append(r.hooks[setting.name], hook)
			if setting.callOnDefine {
				onDefine = append(onDefine, setting.name)
			}
		}
	}
	return onDefine, nil
}

// addHook attaches an additional hook to a defined setting.
func (r *Registry) addHook(name string, hook Hook) error {
	if hook == nil {
		return errors.New(ErrCodeInvalidConfig, "hook cannot be nil").
			WithContext("setting", name)
	}
	if _, ok := r.settings[name]; !ok {
		return errors.New(ErrCodeUnknownSetting,
			fmt.Sprintf("unknown setting %s", name)).
			WithContext("setting", name)
	}
	r.hooks[name] = append(r.hooks[name], hook)
	return nil
}

// hooksFor returns a copy of the hooks attached to name.
func (r *Registry) hooksFor(name string) []Hook {
	hooks := r.hooks[name]
	if len(hooks) == 0 {
		return nil
	}
	out := make([]Hook, len(hooks))
	copy(out, hooks)
	return out
}

// hooked returns the sorted names of all settings with at least one hook.
func (r *Registry) hooked() []string {
	names := make([]string, 0, len(r.hooks))
	for name, hooks := range r.hooks {
		if len(hooks) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsValid reports whether name is a defined setting.
func (r *Registry) IsValid(name string) bool {
	_, ok := r.settings[name]
	return ok
}

// Lookup returns the definition of name.
func (r *Registry) Lookup(name string) (*Setting, bool) {
	s, ok := r.settings[name]
	return s, ok
}

// ByShort returns the setting claiming the given short flag.
func (r *Registry) ByShort(short string) (*Setting, bool) {
	name, ok := r.shorts[short]
	if !ok {
		return nil, false
	}
	return r.settings[name], true
}

// Names returns every defined name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.settings))
	for name := range r.settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sections returns the sorted grouping labels used by definitions.
func (r *Registry) Sections() []string {
	seen := make(map[string]bool)
	for _, s := range r.settings {
		seen[s.section] = true
	}
	sections := make([]string, 0, len(seen))
	for section := range seen {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	return sections
}

// InSection returns the definitions of a section sorted by name.
func (r *Registry) InSection(section string) []*Setting {
	var out []*Setting
	for _, name := range r.Names() {
		if s := r.settings[name]; s.section == section {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of definitions.
func (r *Registry) Len() int {
	return len(r.settings)
}
