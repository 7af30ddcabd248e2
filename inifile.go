// inifile.go: Round-trip INI parser for nodeconf config files
//
// The parser keeps every line of the input so that an unmodified document
// renders back byte for byte, and edits touch only the lines they change.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

var (
	sectionPattern  = regexp.MustCompile(`^\s*\[([^\[\]]+)\]\s*$`)
	settingPattern  = regexp.MustCompile(`^(\s*)([\p{L}\p{N}_.\-]+)\s*=\s*(.*)$`)
	fileInfoPattern = regexp.MustCompile(`\{\s*([^}]+)\s*\}\s*$`)
	fileInfoSplit   = regexp.MustCompile(`\s*,\s*`)
	fileInfoPart    = regexp.MustCompile(`^\s*(\w+)\s*=\s*(\w+)\s*$`)
	quotePattern    = regexp.MustCompile(`^["']|["']$`)
)

type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineSection
	lineSetting
	lineContinuation
)

// iniLine is one physical line of a document.
type iniLine struct {
	kind    lineKind
	text    string
	section string
	name    string
	indent  string
	raw     string // setting value including continuations
}

// Entry is a parsed setting value.
type Entry struct {
	Value any
	Meta  FileMeta
	Line  int
}

// Document is a parsed config file.
type Document struct {
	file            string
	lines           []*iniLine
	trailingNewline bool
	order           []string
	sections        map[string]map[string]Entry
}

// ParseINI parses text read from file. file is only used in error messages.
func ParseINI(file, text string) (*Document, error) {
	doc := &Document{file: file}
	if err := doc.load(text); err != nil {
		return nil, err
	}
	return doc, nil
}

// load replaces the document contents with text.
func (d *Document) load(text string) error {
	trailing := strings.HasSuffix(text, "\n")
	body := strings.TrimSuffix(text, "\n")

	var raw []string
	if text != "" {
		raw = strings.Split(body, "\n")
	}

	lines := make([]*iniLine, 0, len(raw))
	order := make([]string, 0)
	sections := make(map[string]map[string]Entry)
	current := ""
	var last *iniLine

	for i, physical := range raw {
		number := i + 1
		content := strings.TrimSuffix(physical, "\r")
		ln := &iniLine{text: physical, section: current}

		switch {
		case strings.TrimSpace(content) == "":
			ln.kind = lineBlank
			last = nil

		case isComment(content):
			ln.kind = lineComment
			last = nil

		case sectionPattern.MatchString(content):
			name := strings.TrimSpace(sectionPattern.FindStringSubmatch(content)[1])
			if _, dup := sections[name]; dup {
				return d.errorAt(ErrCodeDuplicateSection, number,
					fmt.Sprintf("section [%s] is defined more than once", name))
			}
			sections[name] = make(map[string]Entry)
			order = append(order, name)
			current = name
			ln.kind = lineSection
			ln.section = name
			last = nil

		case settingPattern.MatchString(content):
			m := settingPattern.FindStringSubmatch(content)
			if current == "" {
				return d.errorAt(ErrCodePropertyOutsideSection, number,
					fmt.Sprintf("setting %s appears before any section", m[2]))
			}
			ln.kind = lineSetting
			ln.indent = m[1]
			ln.name = m[2]
			ln.raw = m[3]
			last = ln

		case last != nil && startsIndented(content):
			ln.kind = lineContinuation
			ln.name = last.name
			last.raw += "\n" + strings.TrimSpace(content)

		default:
			return d.errorAt(ErrCodeUnparsableLine, number,
				fmt.Sprintf("cannot parse line %q", content))
		}
		lines = append(lines, ln)
	}

	for i, ln := range lines {
		if ln.kind != lineSetting {
			continue
		}
		value, meta, err := mungeFileValue(ln.name, ln.raw)
		if err != nil {
			return d.wrapAt(err, i+1)
		}
		sections[ln.section][ln.name] = Entry{Value: value, Meta: meta, Line: i + 1}
	}

	d.lines = lines
	d.trailingNewline = trailing
	d.order = order
	d.sections = sections
	return nil
}

func isComment(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, ";") {
		return true
	}
	if len(trimmed) >= 3 && strings.EqualFold(trimmed[:3], "rem") {
		return len(trimmed) == 3 || trimmed[3] == ' ' || trimmed[3] == '\t'
	}
	return false
}

func startsIndented(line string) bool {
	return len(line) > 0 && (line[0] == ' ' || line[0] == '\t')
}

// mungeFileValue splits off a trailing metadata block and converts the value
// to a native boolean or integer when it looks like one. Values of a setting
// literally named "mode" stay strings, since modes are octal.
func mungeFileValue(name, raw string) (any, FileMeta, error) {
	value, meta, err := extractFileInfo(raw)
	if err != nil {
		return nil, FileMeta{}, err
	}
	if name == "mode" {
		return value, meta, nil
	}
	return mungeValue(value), meta, nil
}

// mungeValue converts "true"/"false" in any case to booleans and integers,
// optionally negative, to ints. Anything else loses surrounding quotes and trailing blanks.
func mungeValue(value string) any {
	switch {
	case strings.EqualFold(value, "true"):
		return true
	case strings.EqualFold(value, "false"):
		return false
	case isInteger(value):
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return strings.TrimRight(quotePattern.ReplaceAllString(value, ""), " \t\r\n")
}

// extractFileInfo removes a trailing {owner = x, group = y, mode = z} block
// from raw. A brace opened by "$" is a ${name} reference, not a block.
func extractFileInfo(raw string) (string, FileMeta, error) {
	loc := fileInfoPattern.FindStringSubmatchIndex(raw)
	if loc == nil || (loc[0] > 0 && raw[loc[0]-1] == '$') {
		return strings.TrimRight(raw, " \t\r"), FileMeta{}, nil
	}

	var meta FileMeta
	params := strings.TrimSpace(raw[loc[2]:loc[3]])
	for _, part := range fileInfoSplit.Split(params, -1) {
		m := fileInfoPart.FindStringSubmatch(part)
		if m == nil {
			return "", FileMeta{}, errors.New(ErrCodeInvalidFileOption,
				fmt.Sprintf("cannot parse file option %q", part))
		}
		key, val := m[1], m[2]
		switch key {
		case "owner":
			meta.Owner = val
		case "group":
			meta.Group = val
		case "mode":
			if !isDigits(val) {
				return "", FileMeta{}, errors.New(ErrCodeInvalidFileOption,
					fmt.Sprintf("file mode %q must be a number", val)).
					WithContext("mode", val)
			}
			meta.Mode = val
		default:
			return "", FileMeta{}, errors.New(ErrCodeInvalidFileOption,
				fmt.Sprintf("invalid file option %q", key)).
				WithContext("option", key)
		}
	}

	value := raw[:loc[0]] + raw[loc[1]:]
	return strings.TrimRight(value, " \t\r"), meta, nil
}

func (d *Document) errorAt(code errors.ErrorCode, line int, msg string) error {
	return errors.New(code, fmt.Sprintf("%s:%d: %s", d.fileName(), line, msg)).
		WithContext("file", d.file).
		WithContext("line", line)
}

func (d *Document) wrapAt(err error, line int) error {
	code := errors.ErrorCode(ErrorCode(err))
	if code == "" {
		code = ErrCodeUnparsableLine
	}
	return errors.Wrap(err, code, fmt.Sprintf("%s:%d: invalid setting value", d.fileName(), line)).
		WithContext("file", d.file).
		WithContext("line", line)
}

func (d *Document) fileName() string {
	if d.file == "" {
		return "<config>"
	}
	return d.file
}

// File returns the name the document was parsed from.
func (d *Document) File() string { return d.file }

// Sections returns the section names in file order.
func (d *Document) Sections() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// HasSection reports whether the document declares section.
func (d *Document) HasSection(section string) bool {
	_, ok := d.sections[section]
	return ok
}

// Get returns the entry for name in section.
func (d *Document) Get(section, name string) (Entry, bool) {
	e, ok := d.sections[section][name]
	return e, ok
}

// Entries returns a copy of the entries of section.
func (d *Document) Entries(section string) map[string]Entry {
	src := d.sections[section]
	out := make(map[string]Entry, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// String renders the document. An unedited document renders exactly as it
// was parsed.
func (d *Document) String() string {
	var b strings.Builder
	for i, ln := range d.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(ln.text)
	}
	if d.trailingNewline && len(d.lines) > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// Set assigns value to name in section, editing the existing line in place
// when there is one. A missing section is appended, except main, which is
// inserted at the top.
func (d *Document) Set(section, name, value string) error {
	if !settingPattern.MatchString(name + " = x") {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("invalid setting name %q", name)).
			WithContext("setting", name)
	}
	if !sectionPattern.MatchString("[" + section + "]") {
		return errors.New(ErrCodeInvalidConfig, fmt.Sprintf("invalid section name %q", section)).
			WithContext("section", section)
	}

	if idx := d.find(section, name); idx >= 0 {
		return d.replace(idx, d.settingEnd(idx), renderSetting(d.lines[idx].indent, name, value))
	}

	rendered := renderSetting("", name, value)
	if header := d.sectionHeader(section); header >= 0 {
		at := header + 1
		for i := header + 1; i < len(d.lines); i++ {
			ln := d.lines[i]
			if ln.kind == lineSection {
				break
			}
			if ln.kind == lineSetting || ln.kind == lineContinuation {
				at = i + 1
			}
		}
		return d.replace(at, at, rendered)
	}

	block := append([]string{"[" + section + "]"}, rendered...)
	if section == mainSection {
		return d.replace(0, 0, block)
	}
	return d.replace(len(d.lines), len(d.lines), block)
}

// Delete removes name from section. It reports whether anything was removed.
func (d *Document) Delete(section, name string) (bool, error) {
	idx := d.find(section, name)
	if idx < 0 {
		return false, nil
	}
	if err := d.replace(idx, d.settingEnd(idx), nil); err != nil {
		return false, err
	}
	return true, nil
}

func renderSetting(indent, name, value string) []string {
	parts := strings.Split(value, "\n")
	out := make([]string, 0, len(parts))
	out = append(out, indent+name+" = "+parts[0])
	for _, p := range parts[1:] {
		out = append(out, indent+"    "+p)
	}
	return out
}

func (d *Document) find(section, name string) int {
	for i, ln := range d.lines {
		if ln.kind == lineSetting && ln.section == section && ln.name == name {
			return i
		}
	}
	return -1
}

func (d *Document) sectionHeader(section string) int {
	for i, ln := range d.lines {
		if ln.kind == lineSection && ln.section == section {
			return i
		}
	}
	return -1
}

// settingEnd returns the index after the last continuation of the setting at
// idx.
func (d *Document) settingEnd(idx int) int {
	end := idx + 1
	for end < len(d.lines) && d.lines[end].kind == lineContinuation {
		end++
	}
	return end
}

// replace swaps lines[from:to] for texts and reparses the result. On
// failure the document is left unchanged.
func (d *Document) replace(from, to int, texts []string) error {
	savedLines, savedTrailing := d.lines, d.trailingNewline

	repl := make([]*iniLine, len(texts))
	for i, t := range texts {
		repl[i] = &iniLine{text: t}
	}
	lines := make([]*iniLine, 0, len(d.lines)-(to-from)+len(repl))
	lines = append(lines, d.lines[:from]...)
	lines = append(lines, repl...)
	lines = append(lines, d.lines[to:]...)
	if to == len(d.lines) && len(repl) > 0 {
		d.trailingNewline = true
	}
	d.lines = lines

	if err := d.load(d.String()); err != nil {
		d.lines, d.trailingNewline = savedLines, savedTrailing
		return err
	}
	return nil
}

// Collection is several documents parsed as one logical configuration.
// A section may be declared in only one of them.
type Collection struct {
	docs []*Document
}

// NewCollection groups docs, rejecting sections declared by more than one.
func NewCollection(docs ...*Document) (*Collection, error) {
	owner := make(map[string]string)
	for _, doc := range docs {
		for _, section := range doc.order {
			if prev, dup := owner[section]; dup {
				return nil, errors.New(ErrCodeDuplicateSection,
					fmt.Sprintf("section [%s] is defined in both %s and %s", section, prev, doc.fileName())).
					WithContext("section", section).
					WithContext("file", doc.file)
			}
			owner[section] = doc.fileName()
		}
	}
	return &Collection{docs: docs}, nil
}

// Documents returns the documents of the collection.
func (c *Collection) Documents() []*Document {
	out := make([]*Document, len(c.docs))
	copy(out, c.docs)
	return out
}

// tiers builds a file tier snapshot from the collection.
func (c *Collection) tiers() *fileTiers {
	ft := emptyFileTiers()
	for _, doc := range c.docs {
		for _, section := range doc.order {
			values := make(map[string]fileValue, len(doc.sections[section]))
			for name, e := range doc.sections[section] {
				values[name] = fileValue{value: e.Value, meta: e.Meta}
			}
			ft.sections[section] = values
			ft.order = append(ft.order, section)
		}
	}
	return ft
}
