// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tree implements phase 1, Discovery (spec.md §4.3): building the
// inheritance tree by recursively reading each remote manifest and cloning
// missing repos level by level in parallel.
package tree

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/fetch"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// RepoNode is a node in the inheritance tree (spec.md §3).
type RepoNode struct {
	URL     string
	Ref     string
	Subpath string
	Ops     manifest.Manifest
	Children []*RepoNode

	// CycleStub marks a node whose (URL, Ref) already appears among its own
	// ancestors; it is never fetched or expanded further, existing only so
	// the post-build cycle check in detectCycles has something to find.
	CycleStub bool
}

// Key returns the node's "{url}@{ref}" identity, or "local@HEAD" for the
// synthetic root.
func (n *RepoNode) Key() string {
	if n.URL == "local" {
		return "local@HEAD"
	}
	return n.URL + "@" + n.Ref
}

// RepoTree is the root plus every (url, ref) reachable from it.
type RepoTree struct {
	Root *RepoNode
	Keys map[string]bool
}

type pendingNode struct {
	node *RepoNode
	path []string // ancestor keys, root included as first entry
}

// Discover builds the RepoTree for root, fetching every inherited
// repository (subject to the blob-cache network fallback of spec.md §7)
// and rejecting cycles.
func Discover(ctx context.Context, root manifest.Manifest, fetcher fetch.Fetcher, blobCache cache.BlobCache, workerLimit int) (*RepoTree, error) {
	if workerLimit <= 0 {
		workerLimit = 8
	}

	rootNode := &RepoNode{URL: "local", Ref: "HEAD"}
	var rootOps manifest.Manifest
	var pending []*pendingNode
	for _, op := range root {
		if op.Tag == manifest.OpRepo {
			child := &RepoNode{
				URL:     op.Repo.URL,
				Ref:     op.Repo.Ref,
				Subpath: op.Repo.Path,
				Ops:     op.Repo.With,
			}
			rootNode.Children = append(rootNode.Children, child)
			pending = append(pending, &pendingNode{node: child, path: []string{rootNode.Key()}})
		} else {
			rootOps = append(rootOps, op)
		}
	}
	rootNode.Ops = rootOps

	keys := map[string]bool{}
	for len(pending) > 0 {
		var toFetch []*pendingNode
		for _, p := range pending {
			if containsKey(p.path, p.node.Key()) {
				p.node.CycleStub = true
				continue
			}
			toFetch = append(toFetch, p)
		}
		if len(toFetch) == 0 {
			break
		}

		next, err := fetchLevel(ctx, toFetch, fetcher, blobCache, workerLimit, keys)
		if err != nil {
			return nil, err
		}
		pending = next
	}

	t := &RepoTree{Root: rootNode, Keys: keys}
	if err := detectCycles(t.Root, nil); err != nil {
		return nil, err
	}
	return t, nil
}

type fetchOutcome struct {
	manifestOps manifest.Manifest
	err         error
}

// fetchLevel fetches every node in toFetch concurrently (bounded by
// workerLimit), discovers each one's own manifest, and returns the next
// level's pending nodes.
func fetchLevel(ctx context.Context, toFetch []*pendingNode, fetcher fetch.Fetcher, blobCache cache.BlobCache, workerLimit int, keys map[string]bool) ([]*pendingNode, error) {
	outcomes := make([]fetchOutcome, len(toFetch))
	sem := make(chan struct{}, workerLimit)
	var grp errgroup.Group

	for i, p := range toFetch {
		i, p := i, p
		grp.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			fsys, err := fetcher.Fetch(ctx, p.node.URL, p.node.Ref, p.node.Subpath)
			if err != nil && corerr.Network.In(err) && blobCache != nil && blobCache.Has(p.node.URL, p.node.Ref) {
				logging.Warningf(ctx, "network fetch of %s failed (%s), falling back to cached snapshot", p.node.Key(), err)
				fsys, err = blobCache.Load(p.node.URL, p.node.Ref)
				if err == nil && p.node.Subpath != "" {
					// The cached snapshot holds the whole repository; keep only
					// the subpath, with its prefix stripped, as the fetcher does.
					prefix := strings.TrimSuffix(p.node.Subpath, "/") + "/"
					sub := vfs.New()
					for _, e := range fsys.Files() {
						if strings.HasPrefix(e.Path, prefix) {
							sub.Add(strings.TrimPrefix(e.Path, prefix), e.File)
						}
					}
					fsys = sub
				}
			}
			if err != nil {
				outcomes[i] = fetchOutcome{err: errors.Annotate(err, "fetching %s", p.node.Key()).Err()}
				return nil
			}

			mOps, mErr := readNodeManifest(fsys)
			outcomes[i] = fetchOutcome{manifestOps: mOps, err: mErr}
			return nil
		})
	}
	// Errors are gathered from outcomes, not the group's return value: every
	// goroutine above always returns nil so all concurrent fetches complete
	// before any error is surfaced (spec.md §4.3's parallelism contract).
	_ = grp.Wait()

	var firstErr error
	var next []*pendingNode
	for i, p := range toFetch {
		o := outcomes[i]
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		keys[p.node.Key()] = true
		for _, op := range o.manifestOps {
			if op.Tag != manifest.OpRepo {
				continue
			}
			child := &RepoNode{
				URL:     op.Repo.URL,
				Ref:     op.Repo.Ref,
				Subpath: op.Repo.Path,
				Ops:     op.Repo.With,
			}
			p.node.Children = append(p.node.Children, child)
			childPath := append(append([]string{}, p.path...), p.node.Key())
			next = append(next, &pendingNode{node: child, path: childPath})
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return next, nil
}

// readNodeManifest looks for a commonrepo manifest at fsys's root and
// parses it, returning (nil, nil) if no manifest is present (a leaf
// repository). fsys has already had its node's subpath prefix stripped (by
// the fetcher, fetch.Fetcher.Fetch's contract, or by fetchLevel for a
// cached snapshot), so no further path
// adjustment is needed here — that would look for the manifest under the
// subpath a second time and always miss.
func readNodeManifest(fsys *vfs.Filesystem) (manifest.Manifest, error) {
	for _, name := range manifest.FileNames {
		f, ok := fsys.Get(name)
		if !ok {
			continue
		}
		m, err := manifest.Parse(bytes.NewReader(f.Content))
		if err != nil {
			return nil, errors.Annotate(err, "parsing manifest %q", name).Err()
		}
		return m, nil
	}
	return nil, nil
}

func containsKey(path []string, key string) bool {
	for _, k := range path {
		if k == key {
			return true
		}
	}
	return false
}

// detectCycles walks the tree root-to-leaf, failing if a node's key repeats
// a key already on its path (spec.md §4.3 step 4).
func detectCycles(node *RepoNode, path []string) error {
	key := node.Key()
	for i, k := range path {
		if k == key {
			cyc := append(append([]string{}, path[i:]...), key)
			return errors.Reason("cycle detected: %s", strings.Join(cyc, " -> ")).Tag(corerr.CycleDetected).Err()
		}
	}
	if node.CycleStub {
		return nil
	}
	newPath := append(append([]string{}, path...), key)
	for _, c := range node.Children {
		if err := detectCycles(c, newPath); err != nil {
			return err
		}
	}
	return nil
}
