// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package manifest defines the structure of `.common-repo.yaml` files and
// parses them into an ordered operation list.
package manifest

import (
	"io"
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// FileNames are the manifest file names looked for at a repository or
// project root, in preference order.
var FileNames = []string{".common-repo.yaml", ".commonrepo.yaml"}

// OpTag names one of the operation variants a manifest item can hold.
type OpTag string

// The closed set of operation tags (spec.md §6.1).
const (
	OpRepo         OpTag = "repo"
	OpInclude      OpTag = "include"
	OpExclude      OpTag = "exclude"
	OpTemplate     OpTag = "template"
	OpTemplateVars OpTag = "template_vars"
	OpTools        OpTag = "tools"
	OpRename       OpTag = "rename"
	OpYAML         OpTag = "yaml"
	OpJSON         OpTag = "json"
	OpTOML         OpTag = "toml"
	OpINI          OpTag = "ini"
	OpMarkdown     OpTag = "markdown"
)

// Manifest is an ordered sequence of operations, as read from YAML.
type Manifest []Operation

// Operation is a single tagged-union manifest entry. Exactly one of the
// payload pointers is non-nil, matching Tag.
type Operation struct {
	Tag OpTag

	Repo         *RepoOp
	Include      *IncludeOp
	Exclude      *ExcludeOp
	Template     *TemplateOp
	TemplateVars *TemplateVarsOp
	Tools        *ToolsOp
	Rename       *RenameOp
	YAML         *MergeOp
	JSON         *MergeOp
	TOML         *MergeOp
	INI          *MergeOp
	Markdown     *MergeOp
}

// RepoOp is the payload of a `repo` operation.
type RepoOp struct {
	URL  string    `yaml:"url"`
	Ref  string    `yaml:"ref"`
	Path string    `yaml:"path,omitempty"`
	With Manifest  `yaml:"with,omitempty"`
}

// IncludeOp is the payload of an `include` operation.
type IncludeOp struct {
	Patterns []string `yaml:"patterns"`
}

// ExcludeOp is the payload of an `exclude` operation.
type ExcludeOp struct {
	Patterns []string `yaml:"patterns"`
}

// TemplateOp is the payload of a `template` operation.
type TemplateOp struct {
	Patterns []string `yaml:"patterns"`
}

// TemplateVarsOp is the payload of a `template_vars` operation.
type TemplateVarsOp struct {
	Vars map[string]string `yaml:"vars"`
}

// ToolsOp is the payload of a `tools` operation.
type ToolsOp struct {
	Tools []ToolRequirement `yaml:"tools"`
}

// ToolRequirement names a host tool and the version range it must satisfy.
type ToolRequirement struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// RenameOp is the payload of a `rename` operation.
type RenameOp struct {
	Mappings []RenameMapping `yaml:"mappings"`
}

// RenameMapping is one (regex, replacement) pair of a rename operation.
type RenameMapping struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// ArrayMode controls how a merger combines two sequences.
type ArrayMode string

const (
	ArrayAppend       ArrayMode = "append"
	ArrayReplace      ArrayMode = "replace"
	ArrayAppendUnique ArrayMode = "append_unique"
)

// Position controls where a merge inserts content relative to an anchor.
type Position string

const (
	PositionStart Position = "start"
	PositionEnd   Position = "end"
)

// MergeOp is the shared payload shape of yaml/json/toml/ini/markdown
// operations. Not every field applies to every format; see spec.md §6.1.
type MergeOp struct {
	Source string    `yaml:"source"`
	Dest   string    `yaml:"dest"`
	Path   string    `yaml:"path,omitempty"`

	Append *bool     `yaml:"append,omitempty"`

	ArrayMode ArrayMode `yaml:"array_mode,omitempty"` // yaml, toml
	Position  Position  `yaml:"position,omitempty"`   // json, markdown

	PreserveComments bool `yaml:"preserve_comments,omitempty"` // toml

	Section         string `yaml:"section,omitempty"`          // ini, markdown
	AllowDuplicates bool   `yaml:"allow_duplicates,omitempty"` // ini

	Level         int  `yaml:"level,omitempty"`          // markdown
	CreateSection bool `yaml:"create_section,omitempty"` // markdown
}

// AppendMode reports the effective append/replace choice, applying each
// format's documented default.
func (m *MergeOp) AppendMode(def bool) bool {
	if m.Append == nil {
		return def
	}
	return *m.Append
}

// Load reads and parses the manifest at path, recursively resolving any
// `repo`'s nested `with` list (already present inline in the YAML, so this
// is a straight parse, not a traversal of separate files).
func Load(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "opening manifest %q", path).Tag(corerr.Filesystem).Err()
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, errors.Annotate(err, "parsing manifest %q", path).Err()
	}
	return m, nil
}

// Parse reads a YAML manifest document from r.
func Parse(r io.Reader) (Manifest, error) {
	body, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Annotate(err, "reading manifest body").Tag(corerr.Filesystem).Err()
	}
	var m Manifest
	if err := yaml.Unmarshal(body, &m); err != nil {
		return nil, errors.Annotate(err, "invalid manifest YAML").Tag(corerr.ManifestParse).Err()
	}
	if err := m.validateNoNestedRepo(false); err != nil {
		return nil, err
	}
	return m, nil
}

// validateNoNestedRepo enforces spec.md §4.4's "nested `repo` inside a
// `with` list is forbidden" rule. The top-level manifest (insideWith=false)
// may contain `repo` operations; none of their `with` lists may.
func (m Manifest) validateNoNestedRepo(insideWith bool) error {
	for i, op := range m {
		if op.Tag == OpRepo {
			if insideWith {
				return errors.Reason("operation #%d: nested `repo` is not allowed inside a `with` list", i).Tag(corerr.Validation).Err()
			}
			if err := op.Repo.With.validateNoNestedRepo(true); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler, dispatching on the operation's
// single top-level key. Unknown tags fail parsing (spec.md §4.2).
func (op *Operation) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw yaml.MapSlice
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return errors.Reason("operation must have exactly one key, got %d", len(raw)).Tag(corerr.ManifestParse).Err()
	}
	item := raw[0]
	tag, ok := item.Key.(string)
	if !ok {
		return errors.Reason("operation tag must be a string, got %T", item.Key).Tag(corerr.ManifestParse).Err()
	}

	// Re-marshal just the payload so we can unmarshal it into the concrete
	// struct for this tag, matching the shape of the original YAML value.
	payload, err := yaml.Marshal(item.Value)
	if err != nil {
		return errors.Annotate(err, "re-marshaling %q payload", tag).Tag(corerr.ManifestParse).Err()
	}

	op.Tag = OpTag(tag)
	switch op.Tag {
	case OpRepo:
		op.Repo = &RepoOp{}
		err = yaml.Unmarshal(payload, op.Repo)
	case OpInclude:
		op.Include = &IncludeOp{}
		err = yaml.Unmarshal(payload, op.Include)
	case OpExclude:
		op.Exclude = &ExcludeOp{}
		err = yaml.Unmarshal(payload, op.Exclude)
	case OpTemplate:
		op.Template = &TemplateOp{}
		err = yaml.Unmarshal(payload, op.Template)
	case OpTemplateVars:
		op.TemplateVars = &TemplateVarsOp{}
		err = yaml.Unmarshal(payload, op.TemplateVars)
	case OpTools:
		op.Tools = &ToolsOp{}
		err = yaml.Unmarshal(payload, op.Tools)
	case OpRename:
		op.Rename = &RenameOp{}
		err = yaml.Unmarshal(payload, op.Rename)
	case OpYAML:
		op.YAML = &MergeOp{}
		err = yaml.Unmarshal(payload, op.YAML)
	case OpJSON:
		op.JSON = &MergeOp{}
		err = yaml.Unmarshal(payload, op.JSON)
	case OpTOML:
		op.TOML = &MergeOp{}
		err = yaml.Unmarshal(payload, op.TOML)
	case OpINI:
		op.INI = &MergeOp{}
		err = yaml.Unmarshal(payload, op.INI)
	case OpMarkdown:
		op.Markdown = &MergeOp{}
		err = yaml.Unmarshal(payload, op.Markdown)
	default:
		return errors.Reason("unknown operation tag %q", tag).Tag(corerr.ManifestParse).Err()
	}
	if err != nil {
		return errors.Annotate(err, "parsing %q operation", tag).Tag(corerr.ManifestParse).Err()
	}
	return nil
}

// MergeOpFor returns the operation's merge payload and format name, or
// (nil, "", false) if op is not a merge variant.
func (op *Operation) MergeOpFor() (*MergeOp, string, bool) {
	switch op.Tag {
	case OpYAML:
		return op.YAML, "yaml", true
	case OpJSON:
		return op.JSON, "json", true
	case OpTOML:
		return op.TOML, "toml", true
	case OpINI:
		return op.INI, "ini", true
	case OpMarkdown:
		return op.Markdown, "markdown", true
	default:
		return nil, "", false
	}
}
