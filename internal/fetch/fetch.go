// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fetch implements the Fetcher collaborator (spec.md §6.2): it
// materializes a remote repository at a given ref into an in-memory
// Filesystem, and owns saving a successful clone into the on-disk blob
// cache.
package fetch

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	git "gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"github.com/google/uuid"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// Fetcher materializes a (url, ref, subpath) triple into a Filesystem.
// Implementations must be content-addressed and idempotent for equal
// triples (spec.md §6.2).
type Fetcher interface {
	Fetch(ctx context.Context, url, ref, subpath string) (*vfs.Filesystem, error)
}

// GitFetcher is the default Fetcher, backed by a real git clone via
// gopkg.in/src-d/go-git.v4. Every successful clone is staged into blobCache
// before being walked into a Filesystem, since the blob cache is owned by
// the fetcher (spec.md §5).
type GitFetcher struct {
	StagingDir string // parent of per-fetch temp dirs; os.TempDir() if empty
	BlobCache  cache.BlobCache
}

// Fetch clones url at ref into a scratch directory, optionally restricted
// to subpath, and returns the result as a Filesystem with subpath's prefix
// stripped from every key.
func (f *GitFetcher) Fetch(ctx context.Context, url, ref, subpath string) (*vfs.Filesystem, error) {
	parent := f.StagingDir
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, "commonrepo-fetch-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Annotate(err, "allocating staging dir for %s@%s", url, ref).Tag(corerr.Filesystem).Err()
	}
	defer os.RemoveAll(dir)

	if err := cloneAndCheckout(ctx, dir, url, ref); err != nil {
		return nil, errors.Annotate(err, "fetching %s@%s", url, ref).Tag(corerr.Network).Err()
	}
	os.RemoveAll(filepath.Join(dir, ".git"))

	if f.BlobCache != nil {
		if err := f.BlobCache.Save(url, ref, dir); err != nil {
			logging.Warningf(ctx, "failed to stage %s@%s into blob cache: %s", url, ref, err)
		}
	}

	return walkToFilesystem(dir, subpath)
}

func cloneAndCheckout(ctx context.Context, dir, url, ref string) error {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL: url,
	})
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}

	// Try resolving ref as a branch, tag, or raw commit hash, in that order.
	candidates := []plumbing.Revision{
		plumbing.Revision("origin/" + ref),
		plumbing.Revision(ref),
	}
	var hash *plumbing.Hash
	for _, rev := range candidates {
		if h, rerr := repo.ResolveRevision(rev); rerr == nil {
			hash = h
			break
		}
	}
	if hash == nil {
		return errors.Reason("ref %q not found in %s", ref, url).Err()
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: *hash})
}

// walkToFilesystem reads every regular file under dir/subpath into a
// Filesystem, with subpath's prefix stripped from each resulting key.
func walkToFilesystem(dir, subpath string) (*vfs.Filesystem, error) {
	root := dir
	if subpath != "" {
		root = filepath.Join(dir, filepath.FromSlash(subpath))
	}
	if st, err := os.Stat(root); err != nil || !st.IsDir() {
		return nil, errors.Reason("subpath %q does not exist in repository", subpath).Tag(corerr.Fetch).Err()
	}

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
		key := filepath.ToSlash(rel)
		return out.Add(key, vfs.NewWithMeta(content, info.Mode().Perm(), info.ModTime()))
	})
	if err != nil {
		return nil, errors.Annotate(err, "reading fetched tree").Tag(corerr.Filesystem).Err()
	}
	return out, nil
}

// IsManifestPath reports whether rel is a commonrepo manifest file name,
// ignoring any directory prefix.
func IsManifestPath(rel string) bool {
	base := rel
	if i := strings.LastIndexByte(rel, '/'); i >= 0 {
		base = rel[i+1:]
	}
	return base == ".common-repo.yaml" || base == ".commonrepo.yaml"
}
