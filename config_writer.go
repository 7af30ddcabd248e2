// config_writer.go: Editing nodeconf config files in place
//
// Philosophy:
// - Edits go through the round-trip parser, so comments, blank lines and
//   indentation of untouched lines survive byte for byte
// - Writes are atomic: temporary file in the same directory, then rename
// - Every edit is recorded in the audit trail
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agilira/go-errors"
)

// ConfigWriter edits one config file. It is safe for concurrent use.
type ConfigWriter struct {
	filePath string
	doc      *Document
	written  string // contents as last read or written
	audit    *AuditLogger

	mu sync.Mutex
}

// NewConfigWriter loads filePath for editing. A missing file starts out
// empty and is created by WriteConfig. auditLogger may be nil.
func NewConfigWriter(filePath string, auditLogger *AuditLogger) (*ConfigWriter, error) {
	if filePath == "" {
		return nil, errors.New(ErrCodeWriterError, "filePath cannot be empty")
	}
	w := &ConfigWriter{filePath: filepath.Clean(filePath), audit: auditLogger}
	if err := w.reload(); err != nil {
		return nil, err
	}
	return w, nil
}

// ConfigWriter returns a writer for path that audits into the trail of s.
func (s *Settings) ConfigWriter(path string) (*ConfigWriter, error) {
	return NewConfigWriter(path, s.audit)
}

func (w *ConfigWriter) reload() error {
	text := ""
	data, err := os.ReadFile(w.filePath) // #nosec G304 -- path chosen by the caller
	switch {
	case err == nil:
		text = string(data)
	case os.IsNotExist(err):
	default:
		return errors.Wrap(err, ErrCodeIOError, "cannot read config file").
			WithContext("path", w.filePath)
	}

	doc, err := ParseINI(w.filePath, text)
	if err != nil {
		return err
	}
	w.doc = doc
	w.written = text
	return nil
}

// Path returns the file being edited.
func (w *ConfigWriter) Path() string { return w.filePath }

// GetValue returns the parsed entry for name in section.
func (w *ConfigWriter) GetValue(section, name string) (Entry, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.Get(section, name)
}

// SetValue assigns value to name in section. Nothing is written until
// WriteConfig.
func (w *ConfigWriter) SetValue(section, name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var old interface{}
	if e, ok := w.doc.Get(section, name); ok {
		old = e.Value
	}
	if err := w.doc.Set(section, name, value); err != nil {
		return errors.Wrap(err, ErrCodeWriterError, "cannot set value").
			WithContext("section", section).
			WithContext("setting", name)
	}
	e, _ := w.doc.Get(section, name)
	w.audit.LogConfigWrite(w.filePath, section, name, old, e.Value)
	return nil
}

// DeleteValue removes name from section and reports whether it was there.
func (w *ConfigWriter) DeleteValue(section, name string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	e, ok := w.doc.Get(section, name)
	if !ok {
		return false, nil
	}
	removed, err := w.doc.Delete(section, name)
	if err != nil {
		return false, errors.Wrap(err, ErrCodeWriterError, "cannot delete value").
			WithContext("section", section).
			WithContext("setting", name)
	}
	if removed {
		w.audit.LogConfigWrite(w.filePath, section, name, e.Value, nil)
	}
	return removed, nil
}

// HasChanges reports whether the document differs from the file as last
// read or written.
func (w *ConfigWriter) HasChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.String() != w.written
}

// String renders the current document.
func (w *ConfigWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.doc.String()
}

// WriteConfig atomically replaces the file with the edited document. It does
// nothing when there are no changes.
func (w *ConfigWriter) WriteConfig() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	text := w.doc.String()
	if text == w.written {
		return nil
	}
	if err := atomicWrite(w.filePath, []byte(text)); err != nil {
		return err
	}
	w.written = text
	return nil
}

// WriteConfigAs writes the edited document to another path. The writer
// keeps editing its own file.
func (w *ConfigWriter) WriteConfigAs(filePath string) error {
	if filePath == "" {
		return errors.New(ErrCodeWriterError, "filePath cannot be empty")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return atomicWrite(filepath.Clean(filePath), []byte(w.doc.String()))
}

// Reset discards unwritten edits by reading the file again.
func (w *ConfigWriter) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reload()
}

// atomicWrite writes data to a temporary file next to path and renames it
// over path. An existing file keeps its permissions.
func atomicWrite(path string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp.*")
	if err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot create temporary file").
			WithContext("path", path)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return errors.Wrap(err, ErrCodeIOError, "cannot write temporary file").
			WithContext("path", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return errors.Wrap(err, ErrCodeIOError, "cannot close temporary file").
			WithContext("path", tmpPath)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return errors.Wrap(err, ErrCodeIOError, fmt.Sprintf("cannot set mode %o", perm)).
			WithContext("path", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return errors.Wrap(err, ErrCodeIOError, "cannot replace config file").
			WithContext("path", path)
	}
	return nil
}
