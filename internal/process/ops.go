// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"regexp"

	"go.chromium.org/luci/common/data/stringset"
	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// applyInclude replaces ifs.FS with the subset of files matching any of
// the patterns (spec.md §4.4: "computes the intersection with glob
// patterns and replaces the filesystem with the matching subset").
func applyInclude(ifs *IntermediateFS, op *manifest.IncludeOp) error {
	matched := stringset.New(0)
	for _, pat := range op.Patterns {
		paths, err := ifs.FS.Glob(pat)
		if err != nil {
			return errors.Annotate(err, "include pattern %q", pat).Tag(corerr.Validation).Err()
		}
		matched.AddAll(paths)
	}
	out := vfs.New()
	for _, e := range ifs.FS.Files() {
		if matched.Has(e.Path) {
			out.Add(e.Path, e.File)
		}
	}
	ifs.FS = out
	return nil
}

// applyExclude removes files matching any pattern.
func applyExclude(ifs *IntermediateFS, op *manifest.ExcludeOp) error {
	toRemove := stringset.New(0)
	for _, pat := range op.Patterns {
		paths, err := ifs.FS.Glob(pat)
		if err != nil {
			return errors.Annotate(err, "exclude pattern %q", pat).Tag(corerr.Validation).Err()
		}
		toRemove.AddAll(paths)
	}
	toRemove.Iter(func(p string) bool {
		ifs.FS.Remove(p)
		return true
	})
	return nil
}

// applyRename runs each mapping against a snapshot of paths taken at the
// start of that mapping, so later mappings observe earlier renames but a
// single mapping never chases its own output (spec.md §4.4).
func applyRename(ifs *IntermediateFS, op *manifest.RenameOp) error {
	for _, mapping := range op.Mappings {
		re, err := regexp.Compile(mapping.From)
		if err != nil {
			return errors.Annotate(err, "rename `from` %q", mapping.From).Tag(corerr.Validation).Err()
		}
		paths := ifs.FS.Paths()
		for _, p := range paths {
			if !re.MatchString(p) {
				continue
			}
			newPath := re.ReplaceAllString(p, mapping.To)
			if newPath == p {
				continue
			}
			if err := ifs.FS.Rename(p, newPath); err != nil {
				return errors.Annotate(err, "renaming %q to %q", p, newPath).Tag(corerr.Validation).Err()
			}
		}
	}
	return nil
}

// applyTemplate tags every file matching a pattern with IsTemplate=true.
// Substitution itself happens later, in phase 4.
func applyTemplate(ifs *IntermediateFS, op *manifest.TemplateOp) error {
	matched := stringset.New(0)
	for _, pat := range op.Patterns {
		paths, err := ifs.FS.Glob(pat)
		if err != nil {
			return errors.Annotate(err, "template pattern %q", pat).Tag(corerr.Validation).Err()
		}
		matched.AddAll(paths)
	}
	matched.Iter(func(p string) bool {
		if f, ok := ifs.FS.Get(p); ok {
			f.IsTemplate = true
		}
		return true
	})
	return nil
}
