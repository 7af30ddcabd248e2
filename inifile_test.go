// inifile_test.go: Tests for the round-trip INI parser
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package nodeconf

import (
	"strings"
	"testing"
)

const sampleConfig = `# Global settings
[main]
    logdir = /var/log/node
    ; an old comment
    ssldir = $vardir/ssl {owner = node, group = node, mode = 750}
rem legacy comment
    modulepath = /etc/modules
        /usr/share/modules

[agent]
server = master.example.com
runinterval=1800
splay = TRUE
`

func TestParseINIRoundTrip(t *testing.T) {
	inputs := []string{
		sampleConfig,
		"",
		"[main]",
		"[main]\r\nname = value\r\n",
		"\n\n# only comments\n\n",
		"[main]\n  name   =   spaced value   \n",
	}
	for _, input := range inputs {
		doc, err := ParseINI("round.conf", input)
		if err != nil {
			t.Fatalf("ParseINI(%q) failed: %v", input, err)
		}
		if got := doc.String(); got != input {
			t.Errorf("Round trip mismatch:\nwant %q\ngot  %q", input, got)
		}
	}
}

func TestParseINIValues(t *testing.T) {
	doc, err := ParseINI("sample.conf", sampleConfig)
	if err != nil {
		t.Fatalf("ParseINI failed: %v", err)
	}

	if got := strings.Join(doc.Sections(), ","); got != "main,agent" {
		t.Errorf("Expected sections main,agent, got %s", got)
	}

	tests := []struct {
		section, name string
		want          any
	}{
		{"main", "logdir", "/var/log/node"},
		{"main", "ssldir", "$vardir/ssl"},
		{"main", "modulepath", "/etc/modules\n/usr/share/modules"},
		{"agent", "server", "master.example.com"},
		{"agent", "runinterval", 1800},
		{"agent", "splay", true},
	}
	for _, tt := range tests {
		e, ok := doc.Get(tt.section, tt.name)
		if !ok {
			t.Errorf("[%s] %s not found", tt.section, tt.name)
			continue
		}
		if e.Value != tt.want {
			t.Errorf("[%s] %s: expected %v, got %v", tt.section, tt.name, tt.want, e.Value)
		}
	}

	e, _ := doc.Get("main", "ssldir")
	if e.Meta != (FileMeta{Owner: "node", Group: "node", Mode: "750"}) {
		t.Errorf("Unexpected metadata: %+v", e.Meta)
	}
	if e.Line != 5 {
		t.Errorf("Expected ssldir on line 5, got %d", e.Line)
	}
	if len(doc.Entries("agent")) != 3 {
		t.Errorf("Expected 3 agent entries, got %d", len(doc.Entries("agent")))
	}
}

func TestParseINIQuotedValues(t *testing.T) {
	doc, err := ParseINI("", "[main]\nname = \"quoted value\"\nother = 'single'\n")
	if err != nil {
		t.Fatalf("ParseINI failed: %v", err)
	}
	if e, _ := doc.Get("main", "name"); e.Value != "quoted value" {
		t.Errorf("Expected quotes stripped, got %q", e.Value)
	}
	if e, _ := doc.Get("main", "other"); e.Value != "single" {
		t.Errorf("Expected quotes stripped, got %q", e.Value)
	}
}

func TestParseINIBracedValues(t *testing.T) {
	tests := []struct {
		line string
		want any
		meta FileMeta
	}{
		{"ssldir = ${vardir}/ssl", "${vardir}/ssl", FileMeta{}},
		{"ssldir = ${vardir}", "${vardir}", FileMeta{}},
		{"ssldir = ${vardir}/x {mode = 0750}", "${vardir}/x", FileMeta{Mode: "0750"}},
		{"ssldir = ${vardir}/x {owner = node, group = node}", "${vardir}/x", FileMeta{Owner: "node", Group: "node"}},
		{"ssldir = /x {owner = node} /y", "/x {owner = node} /y", FileMeta{}},
		{"filetimeout = -1", -1, FileMeta{}},
		{"filetimeout = -", "-", FileMeta{}},
	}
	for _, tt := range tests {
		doc, err := ParseINI("braces.conf", "[main]\n"+tt.line+"\n")
		if err != nil {
			t.Errorf("ParseINI(%q) failed: %v", tt.line, err)
			continue
		}
		e, ok := doc.Get("main", strings.Fields(tt.line)[0])
		if !ok {
			t.Errorf("%q: setting not found", tt.line)
			continue
		}
		if e.Value != tt.want {
			t.Errorf("%q: expected value %v (%T), got %v (%T)", tt.line, tt.want, tt.want, e.Value, e.Value)
		}
		if e.Meta != tt.meta {
			t.Errorf("%q: expected metadata %+v, got %+v", tt.line, tt.meta, e.Meta)
		}
	}
}

func TestParseINIErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  string
		line  string
	}{
		{"outside section", "name = value\n[main]\n", ErrCodePropertyOutsideSection, "bad.conf:1:"},
		{"duplicate section", "[main]\na = 1\n[agent]\n[main]\n", ErrCodeDuplicateSection, "bad.conf:4:"},
		{"garbage", "[main]\nthis is not a setting\n", ErrCodeUnparsableLine, "bad.conf:2:"},
		{"bad file option", "[main]\nlogdir = /x {color = red}\n", ErrCodeInvalidFileOption, "bad.conf:2:"},
		{"non-numeric mode", "[main]\nlogdir = /x {mode = rwx}\n", ErrCodeInvalidFileOption, "bad.conf:2:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseINI("bad.conf", tt.input)
			expectCode(t, err, tt.code)
			if !strings.Contains(err.Error(), tt.line) {
				t.Errorf("Expected location %s in %v", tt.line, err)
			}
		})
	}
}

func TestDocumentSetEditsInPlace(t *testing.T) {
	doc, err := ParseINI("edit.conf", sampleConfig)
	if err != nil {
		t.Fatalf("ParseINI failed: %v", err)
	}

	if err := doc.Set("main", "logdir", "/srv/log"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	want := strings.Replace(sampleConfig, "    logdir = /var/log/node", "    logdir = /srv/log", 1)
	if got := doc.String(); got != want {
		t.Errorf("In-place edit changed other lines:\nwant %q\ngot  %q", want, got)
	}

	if err := doc.Set("main", "modulepath", "/opt/modules"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if strings.Contains(doc.String(), "/usr/share/modules") {
		t.Error("Continuation lines of the replaced value must be removed")
	}
	if e, _ := doc.Get("main", "modulepath"); e.Value != "/opt/modules" {
		t.Errorf("Expected new modulepath, got %v", e.Value)
	}
}

func TestDocumentSetAddsSettingsAndSections(t *testing.T) {
	doc, err := ParseINI("edit.conf", "[agent]\nserver = a\n\n[other]\nx = 1\n")
	if err != nil {
		t.Fatalf("ParseINI failed: %v", err)
	}

	if err := doc.Set("agent", "port", "8140"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := doc.Set("main", "vardir", "/var/lib/node"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := doc.Set("production", "manifest", "site.pp"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	want := "[main]\nvardir = /var/lib/node\n" +
		"[agent]\nserver = a\nport = 8140\n\n[other]\nx = 1\n" +
		"[production]\nmanifest = site.pp\n"
	if got := doc.String(); got != want {
		t.Errorf("Unexpected document:\nwant %q\ngot  %q", want, got)
	}
	if e, _ := doc.Get("agent", "port"); e.Value != 8140 {
		t.Errorf("Added value should be parsed, got %v", e.Value)
	}
}

func TestDocumentSetRejectsInvalidInput(t *testing.T) {
	doc, _ := ParseINI("edit.conf", "[main]\n")
	expectCode(t, doc.Set("main", "bad name", "x"), ErrCodeInvalidConfig)
	expectCode(t, doc.Set("bad]section", "name", "x"), ErrCodeInvalidConfig)

	err := doc.Set("main", "logdir", "/x {color = red}")
	expectCode(t, err, ErrCodeInvalidFileOption)
	if doc.String() != "[main]\n" {
		t.Errorf("A failed edit must leave the document unchanged, got %q", doc.String())
	}
}

func TestDocumentDelete(t *testing.T) {
	doc, err := ParseINI("edit.conf", sampleConfig)
	if err != nil {
		t.Fatalf("ParseINI failed: %v", err)
	}

	removed, err := doc.Delete("main", "modulepath")
	if err != nil || !removed {
		t.Fatalf("Delete failed: %v, %v", removed, err)
	}
	if strings.Contains(doc.String(), "modules") {
		t.Errorf("Deleted value and its continuation should be gone:\n%s", doc.String())
	}
	if !strings.Contains(doc.String(), "rem legacy comment") {
		t.Error("Comments must survive a delete")
	}

	removed, err = doc.Delete("main", "modulepath")
	if err != nil || removed {
		t.Errorf("Second delete should report nothing removed, got %v, %v", removed, err)
	}
}

func TestCollectionRejectsSectionsAcrossFiles(t *testing.T) {
	a, _ := ParseINI("a.conf", "[main]\nx = 1\n")
	b, _ := ParseINI("b.conf", "[agent]\ny = 2\n")
	c, _ := ParseINI("c.conf", "[main]\nz = 3\n")

	coll, err := NewCollection(a, b)
	if err != nil {
		t.Fatalf("NewCollection failed: %v", err)
	}
	if len(coll.Documents()) != 2 {
		t.Errorf("Expected 2 documents, got %d", len(coll.Documents()))
	}
	tiers := coll.tiers()
	if v, ok := tiers.lookup("agent", "y"); !ok || v.value != 2 {
		t.Errorf("Expected agent.y = 2 in tiers, got %v", v.value)
	}

	_, err = NewCollection(a, b, c)
	expectCode(t, err, ErrCodeDuplicateSection)
	if !strings.Contains(err.Error(), "a.conf") || !strings.Contains(err.Error(), "c.conf") {
		t.Errorf("Expected both files in the error, got %v", err)
	}
}
