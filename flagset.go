// flagset.go: flash-flags view of the setting registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"sort"

	flashflags "github.com/agilira/flash-flags"
)

// FlagSet builds a flash-flags set with one flag per defined setting, for
// help and usage output. Argument values are still applied with ApplyArgs,
// which knows about --no- prefixes and short flags.
func (s *Settings) FlagSet(app, description, version string) *flashflags.FlagSet {
	fs := flashflags.New(app)
	if description != "" {
		fs.SetDescription(description)
	}
	if version != "" {
		fs.SetVersion(version)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, name := range s.registry.Names() {
		setting, _ := s.registry.Lookup(name)
		if setting.derived {
			continue
		}
		usage := setting.description
		if setting.short != "" {
			usage = fmt.Sprintf("%s (short: -%s)", usage, setting.short)
		}

		switch setting.typ {
		case TypeBoolean:
			def, _ := setting.defaultValue.(bool)
			fs.Bool(name, def, usage)
		case TypeInteger:
			def, _ := setting.defaultValue.(int)
			fs.Int(name, def, usage)
		default:
			def := ""
			if setting.defaultValue != nil {
				def = fmt.Sprint(setting.defaultValue)
			}
			fs.String(name, def, usage)
		}
	}
	return fs
}

// FlagNames returns the sorted names of the flags in fs.
func FlagNames(fs *flashflags.FlagSet) []string {
	var names []string
	fs.VisitAll(func(flag *flashflags.Flag) {
		names = append(names, flag.Name())
	})
	sort.Strings(names)
	return names
}
