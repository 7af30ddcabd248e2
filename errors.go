// errors.go: Error codes for nodeconf operations
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	goerrors "errors"

	"github.com/agilira/go-errors"
)

// Error codes for nodeconf operations.
//
// Registration errors (duplicate definition, missing description, unknown
// type, short flag conflict) are fatal to startup. Parse errors fail the whole
// parse and leave the previously loaded values in place.
const (
	ErrCodeDuplicateDefinition    = "NODECONF_DUPLICATE_DEFINITION"
	ErrCodeMissingDescription     = "NODECONF_MISSING_DESCRIPTION"
	ErrCodeUnknownSettingType     = "NODECONF_UNKNOWN_SETTING_TYPE"
	ErrCodeShortFlagConflict      = "NODECONF_SHORT_FLAG_CONFLICT"
	ErrCodeUnknownSetting         = "NODECONF_UNKNOWN_SETTING"
	ErrCodeReadonlySetting        = "NODECONF_READONLY_SETTING"
	ErrCodeInvalidSettingValue    = "NODECONF_INVALID_SETTING_VALUE"
	ErrCodeInterpolationCycle     = "NODECONF_INTERPOLATION_CYCLE"
	ErrCodePropertyOutsideSection = "NODECONF_PROPERTY_OUTSIDE_SECTION"
	ErrCodeDuplicateSection       = "NODECONF_DUPLICATE_SECTION"
	ErrCodeUnparsableLine         = "NODECONF_UNPARSABLE_LINE"
	ErrCodeInvalidFileOption      = "NODECONF_INVALID_FILE_OPTION"
	ErrCodeIOError                = "NODECONF_IO_ERROR"
	ErrCodeInvalidConfig          = "NODECONF_INVALID_CONFIG"
	ErrCodeSchedulerBusy          = "NODECONF_SCHEDULER_BUSY"
	ErrCodeSchedulerStopped       = "NODECONF_SCHEDULER_STOPPED"
	ErrCodeHookFailed             = "NODECONF_HOOK_FAILED"
	ErrCodeWriterError            = "NODECONF_WRITER_ERROR"
	ErrCodeInvalidAuditConfig     = "NODECONF_INVALID_AUDIT_CONFIG"
	ErrCodeApplyFailed            = "NODECONF_APPLY_FAILED"
)

// ErrorCode returns the nodeconf error code carried by err, or "" when err
// (and everything it wraps) has no code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coder errors.ErrorCoder
	if goerrors.As(err, &coder) {
		return string(coder.ErrorCode())
	}
	return ""
}

// HasCode reports whether err carries the given error code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
