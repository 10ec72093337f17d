// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compose implements phase 4, Composition (spec.md §4.6): variable
// union, template substitution, and filesystem composition interleaved
// with each node's deferred merge operations.
package compose

import (
	"context"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/merge/inimerge"
	"infra.chromium.org/commonrepo/internal/merge/jsonmerge"
	"infra.chromium.org/commonrepo/internal/merge/mdmerge"
	"infra.chromium.org/commonrepo/internal/merge/tomlmerge"
	"infra.chromium.org/commonrepo/internal/merge/yamlmerge"
	"infra.chromium.org/commonrepo/internal/order"
	"infra.chromium.org/commonrepo/internal/process"
	"infra.chromium.org/commonrepo/internal/template"
	"infra.chromium.org/commonrepo/internal/tree"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// Result is phase 4's output: the composed filesystem plus the unioned
// template variable mapping, which phase 5 also needs (it is re-derived
// there from only the local node, per spec.md §4.7, but callers that want
// to inspect the full inherited union can use this).
type Result struct {
	FS   *vfs.Filesystem
	Vars map[string]string
}

// Run executes phase 4 over seq (phase 3's OperationOrder) and byNode
// (phase 2's per-node results, from process.BuildAll). The synthetic local
// node — the final entry in seq — contributes no IntermediateFS and is
// skipped here; its own content and merges are phase 5's job.
func Run(ctx context.Context, seq order.OperationOrder, byNode map[*tree.RepoNode]*process.IntermediateFS) (*Result, error) {
	vars := map[string]string{}
	for _, node := range seq {
		ifs, ok := byNode[node]
		if !ok {
			continue // the synthetic local node
		}
		for k, v := range ifs.TemplateVars {
			vars[k] = v
		}
	}

	composite := vfs.New()
	for _, node := range seq {
		ifs, ok := byNode[node]
		if !ok {
			continue
		}

		for _, e := range ifs.FS.Files() {
			f := e.File
			if f.IsTemplate {
				f = f.Clone()
				f.Content = template.Substitute(f.Content, vars)
			}
			if err := composite.Add(e.Path, f); err != nil {
				return nil, errors.Annotate(err, "composing %s from %s", e.Path, node.Key()).Tag(corerr.Filesystem).Err()
			}
		}

		for i, op := range ifs.DeferredMerges {
			if err := MergeOne(ctx, op, composite); err != nil {
				return nil, errors.Annotate(err, "merge #%d from %s", i, node.Key()).Err()
			}
		}
	}

	return &Result{FS: composite, Vars: vars}, nil
}

// MergeOne runs a single merge operation against fsys: it reads op's
// source file (required) and destination file (optional, empty if
// absent), merges, and writes the result back to the destination path
// (spec.md §4.9). Exported so phase 5's local merges can reuse the exact
// same execution path as phase 4's deferred merges.
func MergeOne(ctx context.Context, op manifest.Operation, fsys *vfs.Filesystem) error {
	m, format, ok := op.MergeOpFor()
	if !ok {
		return errors.Reason("not a merge operation: %q", op.Tag).Tag(corerr.Validation).Err()
	}

	srcFile, ok := fsys.Get(m.Source)
	if !ok {
		return errors.Reason("merge source %q not found", m.Source).Tag(corerr.Merge).Err()
	}
	var destBytes []byte
	var destMode = srcFile.Mode
	if destFile, ok := fsys.Get(m.Dest); ok {
		destBytes = destFile.Content
		destMode = destFile.Mode
	}

	var merged []byte
	var err error
	switch format {
	case "yaml":
		merged, err = yamlmerge.Merge(ctx, srcFile.Content, destBytes, m.Path, m.ArrayMode)
	case "json":
		merged, err = jsonmerge.Merge(ctx, srcFile.Content, destBytes, m.Path, m.AppendMode(true), m.Position)
	case "toml":
		merged, err = tomlmerge.Merge(ctx, srcFile.Content, destBytes, m.Path, m.ArrayMode, m.PreserveComments)
	case "ini":
		merged, err = inimerge.Merge(srcFile.Content, destBytes, m.Section, m.AppendMode(true), m.AllowDuplicates)
	case "markdown":
		level := m.Level
		if level == 0 {
			level = 2
		}
		merged, err = mdmerge.Merge(srcFile.Content, destBytes, m.Section, level, m.AppendMode(false), m.Position, m.CreateSection)
	default:
		return errors.Reason("unknown merge format %q", format).Tag(corerr.Validation).Err()
	}
	if err != nil {
		return errors.Annotate(err, "merging %q into %q", m.Source, m.Dest).Tag(corerr.Merge).Err()
	}

	return fsys.Add(m.Dest, vfs.NewWithMeta(merged, destMode, srcFile.ModTime))
}
