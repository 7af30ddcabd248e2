// catalog.go: Materialization of path settings into resource descriptions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/agilira/go-errors"
	"go.yaml.in/yaml/v3"
)

// Resource kinds.
const (
	KindFile      = "file"
	KindDirectory = "directory"
	KindUser      = "user"
	KindGroup     = "group"
)

// Ensure values.
const (
	EnsurePresent   = "present"
	EnsureDirectory = "directory"
	EnsureAbsent    = "absent"
)

// superusers are never emitted as user or group resources.
var (
	superUsers  = map[string]bool{"root": true}
	superGroups = map[string]bool{"root": true, "wheel": true}
)

// ResourceDescriptor describes one piece of host state. An empty field is
// left unmanaged.
type ResourceDescriptor struct {
	Kind   string   `yaml:"kind" json:"kind"`
	Path   string   `yaml:"path,omitempty" json:"path,omitempty"`
	Name   string   `yaml:"name,omitempty" json:"name,omitempty"`
	Ensure string   `yaml:"ensure,omitempty" json:"ensure,omitempty"`
	Owner  string   `yaml:"owner,omitempty" json:"owner,omitempty"`
	Group  string   `yaml:"group,omitempty" json:"group,omitempty"`
	Mode   string   `yaml:"mode,omitempty" json:"mode,omitempty"`
	Tags   []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// Use materializes the path settings of the given definition sections, or of
// every section when none is given. The sections are remembered so Reuse can
// materialize them again after a reparse.
//
// The result holds at most one descriptor per path, sorted by path, followed
// by the groups and users to create.
func (s *Settings) Use(sections ...string) ([]ResourceDescriptor, error) {
	s.mu.Lock()
	s.markUsed(sections)
	s.mu.Unlock()

	resources, err := s.materialize(sections)
	if err != nil {
		return nil, err
	}
	s.audit.LogCatalogUse(sections, len(resources))
	return resources, nil
}

func (s *Settings) markUsed(sections []string) {
	if len(sections) == 0 {
		sections = s.registry.Sections()
	}
	for _, section := range sections {
		found := false
		for _, used := range s.used {
			if used == section {
				found = true
				break
			}
		}
		if !found {
			s.used = append(s.used, section)
		}
	}
}

// UsedSections returns the sections passed to Use so far.
func (s *Settings) UsedSections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.used))
	copy(out, s.used)
	return out
}

// Reuse materializes every previously used section again and hands the
// result to the configured Applier.
func (s *Settings) Reuse(ctx context.Context) error {
	sections := s.UsedSections()
	if len(sections) == 0 {
		return nil
	}
	resources, err := s.materialize(sections)
	if err != nil {
		return err
	}
	return s.apply(ctx, resources)
}

// ApplyCatalog materializes sections like Use and applies the result.
func (s *Settings) ApplyCatalog(ctx context.Context, sections ...string) error {
	resources, err := s.Use(sections...)
	if err != nil {
		return err
	}
	return s.apply(ctx, resources)
}

func (s *Settings) apply(ctx context.Context, resources []ResourceDescriptor) error {
	if s.config.Applier == nil || len(resources) == 0 {
		return nil
	}
	if s.config.ApplyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ApplyTimeout)
		defer cancel()
	}
	if err := s.config.Applier.Apply(ctx, resources); err != nil {
		s.logger.Error("applying catalog failed", "resources", len(resources), "error", err)
		return errors.Wrap(err, ErrCodeApplyFailed, "cannot apply catalog").
			WithContext("resources", len(resources))
	}
	return nil
}

// materialize builds the descriptors of sections without recording them.
func (s *Settings) materialize(sections []string) ([]ResourceDescriptor, error) {
	privileged := s.host.IsPrivilegedUser()

	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(sections))
	for _, section := range sections {
		wanted[section] = true
	}

	byPath := make(map[string]ResourceDescriptor)
	owners := make(map[string]bool)
	groups := make(map[string]bool)

	for _, name := range s.registry.Names() {
		setting, _ := s.registry.Lookup(name)
		if !setting.typ.IsPath() {
			continue
		}
		if len(wanted) > 0 && !wanted[setting.section] {
			continue
		}

		value, err := s.resolveLocked(name, "", nil)
		if err != nil {
			return nil, err
		}
		path, ok := value.(string)
		if !ok || path == "" {
			continue
		}
		path = filepath.Clean(path)
		if path == "/dev" || strings.HasPrefix(path, "/dev/") {
			continue
		}
		if _, seen := byPath[path]; seen {
			continue
		}

		meta, err := s.metadataLocked(name, "")
		if err != nil {
			return nil, err
		}

		desc := ResourceDescriptor{
			Kind: KindFile,
			Path: path,
			Mode: meta.Mode,
			Tags: []string{setting.section, name},
		}
		switch {
		case setting.typ == TypeDirectory:
			desc.Kind = KindDirectory
			desc.Ensure = EnsureDirectory
		case setting.create:
			desc.Ensure = EnsurePresent
		}
		if privileged {
			desc.Owner = meta.Owner
			desc.Group = meta.Group
			if meta.Owner != "" {
				owners[meta.Owner] = true
			}
			if meta.Group != "" {
				groups[meta.Group] = true
			}
		}
		byPath[path] = desc
	}

	resources := make([]ResourceDescriptor, 0, len(byPath))
	for _, path := range sortedKeys(byPath) {
		resources = append(resources, byPath[path])
	}

	if privileged && s.mkusersLocked() {
		for _, group := range sortedKeys(groups) {
			if superGroups[group] || s.host.GroupExists(group) {
				continue
			}
			resources = append(resources, ResourceDescriptor{
				Kind: KindGroup, Name: group, Ensure: EnsurePresent, Tags: []string{"mkusers"},
			})
		}
		for _, owner := range sortedKeys(owners) {
			if superUsers[owner] || s.host.UserExists(owner) {
				continue
			}
			resources = append(resources, ResourceDescriptor{
				Kind: KindUser, Name: owner, Ensure: EnsurePresent, Tags: []string{"mkusers"},
			})
		}
	}
	return resources, nil
}

// mkusersLocked reports whether the mkusers setting is defined and true.
func (s *Settings) mkusersLocked() bool {
	if !s.registry.IsValid("mkusers") {
		return false
	}
	v, err := s.resolveLocked("mkusers", "", nil)
	if err != nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// catalogDocument is the YAML layout written by RenderCatalog.
type catalogDocument struct {
	Resources []ResourceDescriptor `yaml:"resources"`
}

// RenderCatalog writes resources to w as YAML.
func RenderCatalog(w io.Writer, resources []ResourceDescriptor) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(catalogDocument{Resources: resources}); err != nil {
		return errors.Wrap(err, ErrCodeIOError, "cannot render catalog")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, ErrCodeIOError, fmt.Sprintf("cannot flush catalog of %d resources", len(resources)))
	}
	return nil
}

// ParseCatalog reads a catalog written by RenderCatalog.
func ParseCatalog(r io.Reader) ([]ResourceDescriptor, error) {
	var doc catalogDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errors.Wrap(err, ErrCodeIOError, "cannot parse catalog")
	}
	return doc.Resources, nil
}
