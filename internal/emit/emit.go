// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package emit implements phase 6 (spec.md §4.8): materializing a final
// Filesystem onto disk under an output root.
package emit

import (
	"os"
	"path/filepath"
	"runtime"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// Write materializes every file in fsys under root: parent directories are
// created lazily, existing files are truncated, and permission bits are
// applied where the host supports them. Directories implied by absent
// files are never created, and empty directories are never preserved
// (spec.md §4.8).
func Write(fsys *vfs.Filesystem, root string) error {
	for _, e := range fsys.Files() {
		target := filepath.Join(root, filepath.FromSlash(e.Path))

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Annotate(err, "creating parent directories for %s", e.Path).Tag(corerr.Filesystem).Err()
		}
		if err := os.WriteFile(target, e.File.Content, 0o644); err != nil {
			return errors.Annotate(err, "writing %s", e.Path).Tag(corerr.Filesystem).Err()
		}
		if err := chmodIfSupported(target, e.File.Mode); err != nil {
			return errors.Annotate(err, "setting permissions on %s", e.Path).Tag(corerr.Filesystem).Err()
		}
	}
	return nil
}

// chmodIfSupported applies mode on POSIX hosts and is a silent no-op on
// others (spec.md §4.8: "on other hosts, skip silently"). A failure on a
// POSIX host is a hard filesystem error, not best-effort.
func chmodIfSupported(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode.Perm())
}
