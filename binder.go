// binder.go: Binding resolved settings to Go variables
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agilira/go-errors"
)

type bindKind uint8

const (
	bindString bindKind = iota
	bindInt
	bindBool
	bindDuration
)

type binding struct {
	target any
	name   string
	kind   bindKind
}

// Binder copies resolved settings into variables. Declare the bindings, then
// call Apply, again after every reparse if the variables must follow the
// files.
//
//	var server string
//	var interval time.Duration
//	err := s.Bind("").
//		BindString(&server, "server").
//		BindDuration(&interval, "filetimeout").
//		Apply()
type Binder struct {
	settings *Settings
	env      string
	bindings []binding
}

// Bind starts a Binder resolving in env. An empty env uses the run mode and
// main sections only.
func (s *Settings) Bind(env string) *Binder {
	return &Binder{settings: s, env: env, bindings: make([]binding, 0, 8)}
}

// BindString binds a setting formatted as a string.
func (b *Binder) BindString(target *string, name string) *Binder {
	b.bindings = append(b.bindings, binding{target: target, name: name, kind: bindString})
	return b
}

// BindInt binds an integer setting.
func (b *Binder) BindInt(target *int, name string) *Binder {
	b.bindings = append(b.bindings, binding{target: target, name: name, kind: bindInt})
	return b
}

// BindBool binds a boolean setting.
func (b *Binder) BindBool(target *bool, name string) *Binder {
	b.bindings = append(b.bindings, binding{target: target, name: name, kind: bindBool})
	return b
}

// BindDuration binds a duration. Integers are read as seconds, strings with
// time.ParseDuration.
func (b *Binder) BindDuration(target *time.Duration, name string) *Binder {
	b.bindings = append(b.bindings, binding{target: target, name: name, kind: bindDuration})
	return b
}

// Apply resolves every binding. Values are converted first and assigned only
// when all of them succeed, so a failed Apply leaves every target untouched.
func (b *Binder) Apply() error {
	values := make([]any, len(b.bindings))
	for i, bd := range b.bindings {
		raw, err := b.settings.Resolve(bd.name, b.env)
		if err != nil {
			return errors.Wrap(err, errors.ErrorCode(ErrorCode(err)), "failed to bind setting '"+bd.name+"'").
				WithContext("setting", bd.name)
		}
		v, err := convertBinding(bd.kind, raw)
		if err != nil {
			return errors.Wrap(err, ErrCodeInvalidSettingValue, "failed to bind setting '"+bd.name+"'").
				WithContext("setting", bd.name).
				WithContext("value", fmt.Sprint(raw))
		}
		values[i] = v
	}

	for i, bd := range b.bindings {
		switch bd.kind {
		case bindString:
			*bd.target.(*string) = values[i].(string)
		case bindInt:
			*bd.target.(*int) = values[i].(int)
		case bindBool:
			*bd.target.(*bool) = values[i].(bool)
		case bindDuration:
			*bd.target.(*time.Duration) = values[i].(time.Duration)
		}
	}
	return nil
}

func convertBinding(kind bindKind, value any) (any, error) {
	switch kind {
	case bindString:
		if value == nil {
			return "", nil
		}
		return fmt.Sprint(value), nil
	case bindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case string:
			return strconv.Atoi(strings.TrimSpace(v))
		}
	case bindBool:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(v))
		}
	case bindDuration:
		switch v := value.(type) {
		case int:
			return time.Duration(v) * time.Second, nil
		case string:
			v = strings.TrimSpace(v)
			if isInteger(v) {
				n, err := strconv.Atoi(v)
				return time.Duration(n) * time.Second, err
			}
			return time.ParseDuration(v)
		}
	}
	return nil, fmt.Errorf("cannot convert %T to the bound type", value)
}
