// host.go: Host capabilities consumed by nodeconf
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Host is everything nodeconf needs to know about the machine it runs on.
// The engine never touches the filesystem except through Host.
type Host interface {
	CurrentTime() time.Time
	FileModTime(path string) (time.Time, error)
	ReadFile(path string) (string, error)
	IsPrivilegedUser() bool
	UserExists(name string) bool
	GroupExists(name string) bool
	HomeDir() string
}

// OSHost implements Host on top of the local operating system.
type OSHost struct{}

// NewOSHost returns the local host.
func NewOSHost() *OSHost {
	return &OSHost{}
}

// CurrentTime returns the cached clock.
func (h *OSHost) CurrentTime() time.Time {
	return timecache.CachedTime()
}

// FileModTime returns the modification time of a regular file. Directories
// and other non-regular files are errors.
func (h *OSHost) FileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, errors.Wrap(err, ErrCodeIOError, "cannot stat config file").
			WithContext("path", path)
	}
	if !info.Mode().IsRegular() {
		return time.Time{}, errors.New(ErrCodeIOError,
			fmt.Sprintf("%s is not a regular file", path)).
			WithContext("path", path)
	}
	return info.ModTime(), nil
}

// ReadFile returns the contents of path.
func (h *OSHost) ReadFile(path string) (string, error) {
	// #nosec G304 -- config paths come from the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, ErrCodeIOError, "cannot read config file").
			WithContext("path", path)
	}
	return string(data), nil
}

// IsPrivilegedUser reports whether the process runs as root.
func (h *OSHost) IsPrivilegedUser() bool {
	return os.Geteuid() == 0
}

// UserExists looks name up in the system user database.
func (h *OSHost) UserExists(name string) bool {
	_, err := user.Lookup(name)
	return err == nil
}

// GroupExists looks name up in the system group database.
func (h *OSHost) GroupExists(name string) bool {
	_, err := user.LookupGroup(name)
	return err == nil
}

// HomeDir returns the invoking user's home directory, or "" when unknown.
func (h *OSHost) HomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return ""
}
