// genconfig.go: Commented config file generation
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"strings"
)

// ToConfig renders every setting as a commented config file, grouped by
// definition section. Settings whose current value differs from the default
// are written active; the others are commented out.
func (s *Settings) ToConfig() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "# Generated by nodeconf for run mode %s.\n", s.runMode)
	for _, section := range s.registry.Sections() {
		settings := s.registry.InSection(section)
		written := false
		for _, setting := range settings {
			if setting.derived {
				continue
			}
			if !written {
				fmt.Fprintf(&b, "\n[%s]\n", section)
				written = true
			}
			current, _ := s.rawLocked(setting, "")
			b.WriteString(setting.toConfig(current))
			b.WriteString("\n")
		}
	}
	return b.String()
}
