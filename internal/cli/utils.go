// Shared helpers for the nodeconf command line tools
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package cli holds helpers shared by the nodeconf command line front ends.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var extendedDuration = regexp.MustCompile(`^(\d+)(d|w)$`)

// ParseDuration parses Go durations plus days (d) and weeks (w), e.g.
// "30d", "2w", "24h".
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := extendedDuration.FindStringSubmatch(s)
	if len(matches) != 3 {
		_, err := time.ParseDuration(s)
		return 0, err
	}

	value, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", matches[1])
	}
	switch matches[2] {
	case "d":
		return time.Duration(value) * 24 * time.Hour, nil
	default:
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
}

// FormatValue renders a resolved setting value for terminal output. nil
// prints as an empty string.
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CheckWritable reports an error when path exists and is read-only, or when
// it does not exist and its directory cannot be written.
func CheckWritable(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		dir := filepath.Dir(path)
		dirInfo, dirErr := os.Stat(dir)
		if dirErr != nil {
			return fmt.Errorf("cannot access directory %s: %w", dir, dirErr)
		}
		if !dirInfo.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
		if dirInfo.Mode().Perm()&0200 == 0 {
			return fmt.Errorf("directory %s is not writable (mode: %v)", dir, dirInfo.Mode())
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot stat %s: %w", path, err)
	}
	if info.Mode().Perm()&0200 == 0 {
		return fmt.Errorf("file %s is read-only (mode: %v)", path, info.Mode())
	}
	return nil
}
