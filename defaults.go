// defaults.go: Standard nodeconf settings
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"path/filepath"
)

// Privileged directory layout.
const (
	SystemConfigDir = "/etc/nodeconf"
	SystemCodeDir   = "/etc/nodeconf/code"
	SystemVarDir    = "/opt/nodeconf/cache"
	SystemLogDir    = "/var/log/nodeconf"
	SystemRunDir    = "/var/run/nodeconf"
)

// UserBaseDir is the directory below the home directory holding everything
// of an unprivileged process.
const UserBaseDir = ".nodeconf"

// DefineStandardSettings registers the settings the surrounding tooling
// relies on. Directory defaults depend on whether the host process is
// privileged.
func DefineStandardSettings(s *Settings) error {
	configDir, codeDir, varDir, logDir, runDir := SystemConfigDir, SystemCodeDir, SystemVarDir, SystemLogDir, SystemRunDir
	if !s.host.IsPrivilegedUser() {
		base := filepath.Join(s.host.HomeDir(), UserBaseDir)
		configDir = filepath.Join(base, "etc")
		codeDir = "$config_dir/code"
		varDir = filepath.Join(base, "var")
		logDir = "$var_dir/log"
		runDir = "$var_dir/run"
	}

	return s.Define(mainSection, map[string]Spec{
		"config_dir": {
			Type:        TypeDirectory,
			Default:     configDir,
			Description: "The main configuration directory.",
			Short:       "c",
		},
		"code_dir": {
			Type:        TypeDirectory,
			Default:     codeDir,
			Description: "Where node code and modules are kept.",
		},
		"var_dir": {
			Type:        TypeDirectory,
			Default:     varDir,
			Description: "Where nodeconf stores dynamic and growing data.",
			Meta:        FileMeta{Mode: "0750"},
		},
		"log_dir": {
			Type:        TypeDirectory,
			Default:     logDir,
			Description: "The directory for log files.",
			Meta:        FileMeta{Owner: "$user", Group: "$group", Mode: "0750"},
		},
		"run_dir": {
			Type:        TypeDirectory,
			Default:     runDir,
			Description: "Where pid files and sockets are kept.",
			Meta:        FileMeta{Mode: "0755"},
		},
		"config": {
			Type:        TypeFile,
			Default:     "$config_dir/nodeconf.conf",
			Description: "The configuration file.",
		},
		"filetimeout": {
			Type:    TypeInteger,
			Default: int(DefaultFileTimeout.Seconds()),
			Description: "How often, in seconds, to check the configuration file for changes. " +
				"Zero or less disables reparsing.",
		},
		"mkusers": {
			Type:        TypeBoolean,
			Default:     false,
			Description: "Whether to create the users and groups named in file settings when they are missing.",
		},
		"user": {
			Default:     "nodeconf",
			Description: "The user owning the files nodeconf manages.",
		},
		"group": {
			Default:     "nodeconf",
			Description: "The group owning the files nodeconf manages.",
		},
		"environment": {
			Default:     "production",
			Description: "The environment this node belongs to.",
			Short:       "E",
		},
		"run_mode": {
			Default:     DefaultRunMode,
			Description: "The run mode of this process. Set at startup, not through configuration.",
			Derived:     true,
		},
	})
}
