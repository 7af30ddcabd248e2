// args.go: Command-line token handling for nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"strings"

	"github.com/agilira/go-errors"
)

// HandleArg applies one pre-tokenized option to the CLI tier. opt may carry
// leading dashes and a "no-" prefix. For boolean settings an empty value
// means true and "no-" means false; for other settings an empty value is an
// explicit empty string.
//
// Unknown names are ignored and reported through the boolean result.
func (s *Settings) HandleArg(opt, value string) (bool, error) {
	name := strings.TrimLeft(opt, "-")
	negated := false
	if trimmed := strings.TrimPrefix(name, "no-"); trimmed != name {
		if setting, ok := s.Lookup(trimmed); ok && setting.IsBoolean() {
			name, negated = trimmed, true
		}
	}

	setting, ok := s.Lookup(name)
	if !ok {
		if len([]rune(name)) == 1 {
			setting, ok = s.LookupShort(name)
		}
		if !ok {
			s.logger.Debug("ignoring unknown argument", "argument", opt)
			return false, nil
		}
	}

	if setting.IsBoolean() {
		b, err := booleanArg(setting, value, negated)
		if err != nil {
			return true, err
		}
		return true, s.Set(setting.name, b, TierCLI)
	}
	if value == "" {
		return true, s.Set(setting.name, "", TierCLI)
	}
	return true, s.Set(setting.name, mungeValue(value), TierCLI)
}

func booleanArg(setting *Setting, value string, negated bool) (bool, error) {
	if negated {
		return false, nil
	}
	switch strings.ToLower(value) {
	case "", "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.New(ErrCodeInvalidSettingValue,
		fmt.Sprintf("boolean option --%s does not take value %q", setting.name, value)).
		WithContext("setting", setting.name)
}

// ApplyArgs walks args, applying every option naming a defined setting.
// Supported forms are --name value, --name=value, --name, --no-name and
// -x value for short flags. Everything else, including options naming
// unknown settings, is returned in order.
func (s *Settings) ApplyArgs(args []string) ([]string, error) {
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			rest = append(rest, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			rest = append(rest, arg)
			continue
		}

		opt, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		setting, known := s.argSetting(opt)
		if !known {
			rest = append(rest, arg)
			continue
		}

		if !hasValue && !strings.HasPrefix(opt, "no-") && i+1 < len(args) {
			next := args[i+1]
			if setting.IsBoolean() {
				if lower := strings.ToLower(next); lower == "true" || lower == "false" {
					value = next
					i++
				}
			} else if !strings.HasPrefix(next, "-") {
				value = next
				i++
			}
		}

		if _, err := s.HandleArg(opt, value); err != nil {
			return nil, errors.Wrap(err, errors.ErrorCode(ErrorCode(err)), fmt.Sprintf("invalid argument %s", arg)).
				WithContext("argument", arg)
		}
	}
	return rest, nil
}

// argSetting finds the setting an option refers to.
func (s *Settings) argSetting(opt string) (*Setting, bool) {
	if setting, ok := s.Lookup(opt); ok {
		return setting, true
	}
	if trimmed := strings.TrimPrefix(opt, "no-"); trimmed != opt {
		if setting, ok := s.Lookup(trimmed); ok && setting.IsBoolean() {
			return setting, true
		}
	}
	if len([]rune(opt)) == 1 {
		return s.LookupShort(opt)
	}
	return nil, false
}
