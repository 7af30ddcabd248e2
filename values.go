// values.go: Value tiers and coercion for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Tier identifies a value source that can be written through Settings.Set.
// File tiers are only ever replaced as a whole by a parse.
type Tier int

const (
	// TierCLI holds values from command-line arguments. It outranks every
	// other source.
	TierCLI Tier = iota
	// TierMemory holds values set through the API. It ranks below the
	// file tiers and above defaults.
	TierMemory
)

// String returns the tier name used in logs and audit records.
func (t Tier) String() string {
	switch t {
	case TierCLI:
		return "cli"
	case TierMemory:
		return "memory"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// mainSection is the file section consulted for every run mode and
// environment.
const mainSection = "main"

// knownRunModes are the section names treated as run-mode sections even when
// they are not the current run mode.
var knownRunModes = map[string]bool{
	"user":   true,
	"agent":  true,
	"server": true,
	"master": true,
}

// SectionKind tells how a config file section takes part in resolution.
type SectionKind int

const (
	SectionMain SectionKind = iota
	SectionRunMode
	SectionEnvironment
)

// String returns the kind name.
func (k SectionKind) String() string {
	switch k {
	case SectionMain:
		return "main"
	case SectionRunMode:
		return "run_mode"
	default:
		return "environment"
	}
}

// Section is a classified config file section.
type Section struct {
	Kind SectionKind
	Name string
}

// Classify decides what a section name means for the given run mode. The
// parser keeps sections untyped; classification happens here, at resolve
// time.
func Classify(name, runMode string) Section {
	switch {
	case name == mainSection:
		return Section{Kind: SectionMain, Name: name}
	case name == runMode || knownRunModes[name]:
		return Section{Kind: SectionRunMode, Name: name}
	default:
		return Section{Kind: SectionEnvironment, Name: name}
	}
}

// fileValue is one value read from a config file.
type fileValue struct {
	value any
	meta  FileMeta
}

// fileTiers is an immutable snapshot of everything read from the config
// files. A parse builds a new snapshot and swaps the pointer; nothing mutates
// a snapshot after publication.
type fileTiers struct {
	sections map[string]map[string]fileValue
	order    []string
}

// emptyFileTiers is the snapshot in effect before any file is parsed.
func emptyFileTiers() *fileTiers {
	return &fileTiers{sections: make(map[string]map[string]fileValue)}
}

// lookup returns the value of name in section.
func (ft *fileTiers) lookup(section, name string) (fileValue, bool) {
	values, ok := ft.sections[section]
	if !ok {
		return fileValue{}, false
	}
	v, ok := values[name]
	return v, ok
}

// has reports whether the snapshot contains a section.
func (ft *fileTiers) has(section string) bool {
	_, ok := ft.sections[section]
	return ok
}

// sectionNames returns the sections in file order.
func (ft *fileTiers) sectionNames() []string {
	out := make([]string, len(ft.order))
	copy(out, ft.order)
	return out
}

// valueStore holds the tiers written directly by callers.
type valueStore struct {
	cli     map[string]any
	memory  map[string]any
	derived map[string]any
}

func newValueStore() *valueStore {
	return &valueStore{
		cli:     make(map[string]any),
		memory:  make(map[string]any),
		derived: make(map[string]any),
	}
}

// tier returns the map backing a writable tier.
func (vs *valueStore) tier(t Tier) (map[string]any, bool) {
	switch t {
	case TierCLI:
		return vs.cli, true
	case TierMemory:
		return vs.memory, true
	default:
		return nil, false
	}
}

// searchOrder returns the file sections consulted for env under runMode, in
// precedence order. An env naming main or a run mode is not an environment
// and adds nothing.
func searchOrder(env, runMode string) []string {
	order := make([]string, 0, 3)
	if env != "" && Classify(env, runMode).Kind == SectionEnvironment {
		order = append(order, env)
	}
	if runMode != "" && runMode != mainSection {
		order = append(order, runMode)
	}
	return append(order, mainSection)
}

// isDigits reports whether s is a non-empty run of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isInteger reports whether s is a run of ASCII digits with an optional
// leading minus sign.
func isInteger(s string) bool {
	return isDigits(strings.TrimPrefix(s, "-"))
}

// coerce converts an interpolated string to the setting's declared type.
// Native values are returned unchanged.
func coerce(setting *Setting, value any) (any, error) {
	str, ok := value.(string)
	if !ok {
		return value, nil
	}

	switch setting.typ {
	case TypeFile, TypeDirectory:
		return str, nil
	case TypeBoolean:
		switch str {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, invalidValue(setting, str, "expected true or false")
	case TypeInteger:
		if isInteger(str) {
			if n, err := strconv.Atoi(str); err == nil {
				return n, nil
			}
		}
		return nil, invalidValue(setting, str, "expected an integer")
	}

	switch {
	case str == "true":
		return true, nil
	case str == "false":
		return false, nil
	case isInteger(str):
		if n, err := strconv.Atoi(str); err == nil {
			return n, nil
		}
	}
	return str, nil
}

// normalizeValue accepts the value kinds the tiers can hold: strings,
// booleans and integers.
func normalizeValue(name string, value any) (any, error) {
	switch v := value.(type) {
	case nil, string, bool, int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	default:
		return nil, errors.New(ErrCodeInvalidSettingValue,
			fmt.Sprintf("setting %s cannot hold a %T", name, value)).
			WithContext("setting", name)
	}
}

// mungeBoolean turns "true"/"false" strings into booleans for boolean
// settings written through Set.
func mungeBoolean(setting *Setting, value any) any {
	if !setting.IsBoolean() {
		return value
	}
	if str, ok := value.(string); ok {
		switch str {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return value
}

func invalidValue(setting *Setting, value, reason string) error {
	return errors.New(ErrCodeInvalidSettingValue,
		fmt.Sprintf("invalid value %q for %s setting %s: %s", value, setting.typ, setting.name, reason)).
		WithContext("setting", setting.name).
		WithContext("value", value)
}

// sortedKeys returns the keys of m in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
