// Package nodeconf provides layered node settings: a registry of typed
// settings, values read from INI config files and the command line,
// `$name` interpolation between settings, change-driven reparsing, and
// materialization of file and directory settings into resource
// descriptions for an external applier.
//
// # Settings and sections
//
// Settings are registered per definition section with Define. Every setting
// has a type (string, boolean, integer, file, directory), a default and a
// description. File and directory settings may carry owner, group and mode
// metadata:
//
//	s, err := nodeconf.New(nodeconf.Config{
//		RunMode:     "agent",
//		ConfigFiles: []string{"/etc/nodeconf/nodeconf.conf"},
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Define("agent", map[string]nodeconf.Spec{
//		"ssl_dir": {
//			Type:        nodeconf.TypeDirectory,
//			Default:     "$var_dir/ssl",
//			Description: "Where SSL certificates are kept.",
//			Meta:        nodeconf.FileMeta{Mode: "0771"},
//		},
//		"port": nodeconf.Simple(8140, "The port to connect to."),
//	})
//
// # Resolution order
//
// A value is looked up in this order, first hit wins:
//
//  1. the command line tier (ApplyArgs, HandleArg, Set with TierCLI)
//  2. the config file section named after the requested environment
//  3. the config file section named after the run mode
//  4. the config file [main] section
//  5. the memory tier (Set with TierMemory)
//  6. the registered default
//
// String values are interpolated: `$name` and `${name}` are replaced with
// the resolved value of another setting, and `$environment` with the
// environment being resolved. A reference cycle is reported as an error
// with code NODECONF_INTERPOLATION_CYCLE.
//
// # Config files
//
// Config files are INI documents. A value may carry file metadata in braces:
//
//	[main]
//	    var_dir = /var/lib/nodeconf
//	    log_dir = $var_dir/log {owner = nodeconf, group = nodeconf, mode = 750}
//
//	[production]
//	    ssl_dir = /srv/ssl
//
// ParseINI keeps every line, so an unmodified Document renders back byte for
// byte. ConfigWriter edits files in place through the same parser and writes
// them atomically.
//
// # Reparsing
//
// Reparse checks the modification time of every config file and, when one
// changed, parses them all again and swaps the result in at once. A file
// that fails to parse leaves the previous values in place. Scheduler calls
// Reparse on a timer whose interval is the filetimeout setting, read again
// after every run.
//
// # Catalogs
//
// Use turns the file and directory settings of some sections into
// ResourceDescriptor values, one per path, that an Applier can create on the
// host. After a successful reparse the used sections are materialized again
// and handed to the configured Applier.
//
// # Audit trail
//
// Writes to the command line and memory tiers, reparses, parse failures,
// catalogs and config file edits are recorded by an AuditLogger backed by
// SQLite or a JSON lines file.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package nodeconf
