// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cache implements the two caches the pipeline needs (spec.md §3,
// §4.4, §6.2): an on-disk blob cache keyed by (url, ref), owned by the
// fetcher, and an in-memory per-node cache keyed by (url[#ops-fingerprint],
// ref) with get-or-compute-under-lock semantics.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// BlobCache durably stores a repository's materialized filesystem, keyed by
// (url, ref), across pipeline invocations (spec.md §6.2).
type BlobCache interface {
	Has(url, ref string) bool
	Load(url, ref string) (*vfs.Filesystem, error)
	Save(url, ref, sourceDir string) error
}

// DiskBlobCache is a BlobCache backed by a directory tree under Root, one
// subdirectory per (url, ref) pair named by the SHA-256 of "url@ref".
type DiskBlobCache struct {
	Root string
}

// NewDiskBlobCache returns a DiskBlobCache rooted at root, creating it if
// necessary.
func NewDiskBlobCache(root string) (*DiskBlobCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Annotate(err, "creating blob cache root %q", root).Tag(corerr.Filesystem).Err()
	}
	return &DiskBlobCache{Root: root}, nil
}

func (c *DiskBlobCache) dir(url, ref string) string {
	sum := sha256.Sum256([]byte(url + "@" + ref))
	return filepath.Join(c.Root, hex.EncodeToString(sum[:]))
}

// Has reports whether a snapshot for (url, ref) is present.
func (c *DiskBlobCache) Has(url, ref string) bool {
	st, err := os.Stat(c.dir(url, ref))
	return err == nil && st.IsDir()
}

// Save copies sourceDir (a fetcher's working checkout) into the cache slot
// for (url, ref), replacing anything already there.
func (c *DiskBlobCache) Save(url, ref, sourceDir string) error {
	dst := c.dir(url, ref)
	if err := os.RemoveAll(dst); err != nil {
		return errors.Annotate(err, "clearing stale cache slot for %s@%s", url, ref).Tag(corerr.Filesystem).Err()
	}
	if err := copy.Copy(sourceDir, dst); err != nil {
		return errors.Annotate(err, "saving %s@%s into blob cache", url, ref).Tag(corerr.Filesystem).Err()
	}
	return nil
}

// Load reads the cached snapshot for (url, ref) into an in-memory
// Filesystem. Every regular file under the cache slot becomes one entry,
// with its path relative to the slot root and its POSIX mode preserved.
func (c *DiskBlobCache) Load(url, ref string) (*vfs.Filesystem, error) {
	root := c.dir(url, ref)
	out := vfs.New()
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		f := vfs.NewWithMeta(content, info.Mode().Perm(), info.ModTime())
		return out.Add(filepath.ToSlash(rel), f)
	})
	if err != nil {
		return nil, errors.Annotate(err, "loading cached snapshot for %s@%s", url, ref).Tag(corerr.Filesystem).Err()
	}
	return out, nil
}
