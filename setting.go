// setting.go: Setting definitions for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"strings"
)

// SettingType is the declared type of a setting.
type SettingType string

const (
	TypeString    SettingType = "string"
	TypeBoolean   SettingType = "boolean"
	TypeInteger   SettingType = "integer"
	TypeFile      SettingType = "file"
	TypeDirectory SettingType = "directory"
	TypeSetting   SettingType = "setting"
)

// knownTypes lists every SettingType accepted by Define.
var knownTypes = map[SettingType]bool{
	TypeString:    true,
	TypeBoolean:   true,
	TypeInteger:   true,
	TypeFile:      true,
	TypeDirectory: true,
	TypeSetting:   true,
}

// IsPath reports whether settings of this type name a filesystem path.
func (t SettingType) IsPath() bool {
	return t == TypeFile || t == TypeDirectory
}

// Hook is invoked with the newly resolved value whenever a setting changes,
// either through Set or through a config file reparse.
type Hook func(name string, value any) error

// FileMeta is the ownership and permission metadata of a file or directory
// setting. Empty fields are left unmanaged.
type FileMeta struct {
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	Group string `yaml:"group,omitempty" json:"group,omitempty"`
	Mode  string `yaml:"mode,omitempty" json:"mode,omitempty"`
}

// IsZero reports whether no field of the metadata is set.
func (m FileMeta) IsZero() bool {
	return m == FileMeta{}
}

// overlay returns m with every non-empty field of other applied on top.
func (m FileMeta) overlay(other FileMeta) FileMeta {
	if other.Owner != "" {
		m.Owner = other.Owner
	}
	if other.Group != "" {
		m.Group = other.Group
	}
	if other.Mode != "" {
		m.Mode = other.Mode
	}
	return m
}

// Spec describes a setting to be registered with Registry.Define.
type Spec struct {
	// Type is the declared type. When empty it is inferred from Default:
	// bool → boolean, int → integer, anything else → string.
	Type SettingType

	// Default is the value used when no tier provides one. String defaults
	// are interpolated like any other value.
	Default any

	// Description is mandatory.
	Description string

	// Short is an optional single-character alias for the CLI.
	Short string

	// Meta is the file metadata of file and directory settings.
	Meta FileMeta

	// Create asks the catalog to ensure a file setting exists, not only
	// manage its metadata.
	Create bool

	// Hook runs whenever the resolved value changes.
	Hook Hook

	// CallOnDefine runs Hook once at registration time with the interpolated
	// default.
	CallOnDefine bool

	// Derived marks a reserved name that cannot be written through Set.
	Derived bool
}

// Simple builds a Spec from the two-element (default, description) form.
func Simple(defaultValue any, description string) Spec {
	return Spec{Default: defaultValue, Description: description}
}

// Setting is a registered, immutable setting definition.
type Setting struct {
	name         string
	section      string
	typ          SettingType
	defaultValue any
	description  string
	short        string
	meta         FileMeta
	create       bool
	callOnDefine bool
	derived      bool
}

// Name returns the setting name.
func (s *Setting) Name() string { return s.name }

// Section returns the informational grouping label.
func (s *Setting) Section() string { return s.section }

// Type returns the declared type.
func (s *Setting) Type() SettingType { return s.typ }

// Default returns the raw default value.
func (s *Setting) Default() any { return s.defaultValue }

// Description returns the setting description.
func (s *Setting) Description() string { return s.description }

// Short returns the short flag, or "" when none is claimed.
func (s *Setting) Short() string { return s.short }

// Meta returns the metadata declared at registration.
func (s *Setting) Meta() FileMeta { return s.meta }

// Create reports whether a file setting should be created when missing.
func (s *Setting) Create() bool { return s.create }

// Derived reports whether the setting is reserved and not settable.
func (s *Setting) Derived() bool { return s.derived }

// IsBoolean reports whether the setting is boolean-typed.
func (s *Setting) IsBoolean() bool { return s.typ == TypeBoolean }

// toConfig renders the setting as a commented config file stanza. current
// is the uninterpolated value in effect.
func (s *Setting) toConfig(current any) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimSpace(s.description), "\n") {
		b.WriteString("    # ")
		b.WriteString(strings.TrimSpace(line))
		b.WriteString("\n")
	}
	if s.defaultValue != nil && s.defaultValue != "" {
		fmt.Fprintf(&b, "    # The default value is '%v'.\n", s.defaultValue)
	}
	if current != nil && current != s.defaultValue {
		fmt.Fprintf(&b, "    %s = %v\n", s.name, current)
	} else {
		fmt.Fprintf(&b, "    # %s = %v\n", s.name, s.defaultValue)
	}
	return b.String()
}

// inferType returns the declared type, inferring it from the default when
// Spec.Type is empty.
func inferType(spec Spec) SettingType {
	if spec.Type != "" {
		return spec.Type
	}
	switch spec.Default.(type) {
	case bool:
		return TypeBoolean
	case int:
		return TypeInteger
	default:
		return TypeString
	}
}
