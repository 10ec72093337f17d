// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package process implements phase 2, Per-Node Processing (spec.md §4.4):
// for each node in the tree, load its filesystem snapshot, apply its
// non-merge, non-template operations, and collect template variables and
// deferred merge operations into an IntermediateFS.
package process

import (
	"context"
	"strings"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/tree"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// IntermediateFS is a processed filesystem paired with its node's source,
// the template variables it contributed, and the merge operations it
// deferred to phase 4 (spec.md §3).
type IntermediateFS struct {
	URL            string
	Ref            string
	FS             *vfs.Filesystem
	TemplateVars   map[string]string
	DeferredMerges []manifest.Operation
}

// BuildAll walks root's children in post-order (spec.md §4.4's ordering
// invariant), producing one IntermediateFS per non-local node, keyed by
// node identity so phase 3/4 can look results up by *tree.RepoNode.
//
// The synthetic local node itself is never processed here: its operations
// apply only to the local filesystem, in phase 5.
func BuildAll(ctx context.Context, root *tree.RepoNode, blobCache cache.BlobCache, nc *cache.NodeCache[*IntermediateFS]) (map[*tree.RepoNode]*IntermediateFS, error) {
	out := map[*tree.RepoNode]*IntermediateFS{}
	for _, child := range root.Children {
		if err := buildSubtree(ctx, child, blobCache, nc, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildSubtree(ctx context.Context, node *tree.RepoNode, blobCache cache.BlobCache, nc *cache.NodeCache[*IntermediateFS], out map[*tree.RepoNode]*IntermediateFS) error {
	for _, child := range node.Children {
		if err := buildSubtree(ctx, child, blobCache, nc, out); err != nil {
			return err
		}
	}

	fp, err := Fingerprint(node.Ops)
	if err != nil {
		return err
	}
	key, err := cache.NewKey(node.URL, node.Ref, fp)
	if err != nil {
		return err
	}

	ifs, err := nc.GetOrCompute(key, func() (*IntermediateFS, error) {
		return build(ctx, node, blobCache)
	})
	if err != nil {
		return errors.Annotate(err, "processing %s", node.Key()).Err()
	}
	out[node] = ifs
	return nil
}

// build is the per-key producer function the NodeCache memoizes.
func build(ctx context.Context, node *tree.RepoNode, blobCache cache.BlobCache) (*IntermediateFS, error) {
	full, err := blobCache.Load(node.URL, node.Ref)
	if err != nil {
		return nil, errors.Annotate(err, "loading cached snapshot for %s", node.Key()).Tag(corerr.Filesystem).Err()
	}
	fsys := restrictToSubpath(full, node.Subpath)

	ifs := &IntermediateFS{
		URL:          node.URL,
		Ref:          node.Ref,
		FS:           fsys,
		TemplateVars: map[string]string{},
	}

	for i, op := range node.Ops {
		if err := applyOp(ctx, op, ifs); err != nil {
			return nil, errors.Annotate(err, "operation #%d in %s", i, node.Key()).Err()
		}
	}
	return ifs, nil
}

func applyOp(ctx context.Context, op manifest.Operation, ifs *IntermediateFS) error {
	switch op.Tag {
	case manifest.OpRepo:
		return errors.Reason("nested `repo` is not allowed inside a `with` list").Tag(corerr.Validation).Err()
	case manifest.OpInclude:
		return applyInclude(ifs, op.Include)
	case manifest.OpExclude:
		return applyExclude(ifs, op.Exclude)
	case manifest.OpRename:
		return applyRename(ifs, op.Rename)
	case manifest.OpTemplate:
		return applyTemplate(ifs, op.Template)
	case manifest.OpTemplateVars:
		for k, v := range op.TemplateVars.Vars {
			ifs.TemplateVars[k] = v
		}
		return nil
	case manifest.OpTools:
		return op.Tools.ValidateAll(ctx)
	case manifest.OpYAML, manifest.OpJSON, manifest.OpTOML, manifest.OpINI, manifest.OpMarkdown:
		ifs.DeferredMerges = append(ifs.DeferredMerges, op)
		return nil
	default:
		return errors.Reason("unknown operation tag %q", op.Tag).Tag(corerr.ManifestParse).Err()
	}
}

// restrictToSubpath returns a Filesystem containing only files under
// subpath, with that prefix stripped from their keys. An empty subpath
// returns full unmodified.
func restrictToSubpath(full *vfs.Filesystem, subpath string) *vfs.Filesystem {
	if subpath == "" {
		return full
	}
	prefix := strings.TrimSuffix(subpath, "/") + "/"
	out := vfs.New()
	for _, e := range full.Files() {
		if strings.HasPrefix(e.Path, prefix) {
			out.Add(strings.TrimPrefix(e.Path, prefix), e.File)
		}
	}
	return out
}
