// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package localmerge implements phase 5, Local Merge (spec.md §4.7): load
// the working directory's own files, template them using only the local
// variables, overlay them onto phase 4's composite, and run the root
// manifest's merge operations against the result exactly once.
package localmerge

import (
	"context"
	"os"
	"path/filepath"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/compose"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/template"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// skipDirs is the fixed block-list of build/tool/VCS artefact directories
// never walked into; names are matched exactly, case included (spec.md §4.7; dot-prefixed
// directories such as .git are already excluded by the dot-prefix rule and
// need no entry here).
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	"target":       true,
	"__pycache__":  true,
	"bin":          true,
}

// Load walks root, populating a Filesystem with every file except the
// manifest itself, anything under a skip-listed directory, and anything
// dot-prefixed (file or directory).
func Load(root string, manifestNames []string) (*vfs.Filesystem, error) {
	out := vfs.New()
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if isDotPrefixed(name) || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if isDotPrefixed(name) {
			return nil
		}
		for _, mn := range manifestNames {
			if name == mn {
				return nil
			}
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return out.Add(filepath.ToSlash(rel), vfs.NewWithMeta(content, info.Mode().Perm(), info.ModTime()))
	})
	if err != nil {
		return nil, errors.Annotate(err, "walking local directory %q", root).Tag(corerr.Filesystem).Err()
	}
	return out, nil
}

func isDotPrefixed(name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// Run executes phase 5: it templates local against localVars, overlays it
// onto composite (local wins on any collision), then runs rootOps' merge
// operations against the result, in manifest order, exactly once.
func Run(ctx context.Context, composite *vfs.Filesystem, local *vfs.Filesystem, localVars map[string]string, rootOps manifest.Manifest) error {
	for _, e := range local.Files() {
		if !e.File.IsTemplate {
			continue
		}
		e.File.Content = template.Substitute(e.File.Content, localVars)
	}

	composite.Merge(local)

	for i, op := range rootOps {
		if _, _, ok := op.MergeOpFor(); !ok {
			continue
		}
		if err := compose.MergeOne(ctx, op, composite); err != nil {
			return errors.Annotate(err, "local merge #%d", i).Err()
		}
	}
	return nil
}

// ApplyLocalOnly applies rootOps' template and template_vars operations to
// local before the overlay (spec.md §4.7). Every other operation, including
// include, exclude and rename, is ignored here.
func ApplyLocalOnly(local *vfs.Filesystem, rootOps manifest.Manifest) (map[string]string, error) {
	vars := map[string]string{}
	for i, op := range rootOps {
		switch op.Tag {
		case manifest.OpTemplateVars:
			for k, v := range op.TemplateVars.Vars {
				vars[k] = v
			}
		case manifest.OpTemplate:
			matched := map[string]bool{}
			for _, pat := range op.Template.Patterns {
				paths, err := local.Glob(pat)
				if err != nil {
					return nil, errors.Annotate(err, "local template operation #%d", i).Tag(corerr.Validation).Err()
				}
				for _, p := range paths {
					matched[p] = true
				}
			}
			for p := range matched {
				if f, ok := local.Get(p); ok {
					f.IsTemplate = true
				}
			}
		}
	}
	return vars, nil
}
