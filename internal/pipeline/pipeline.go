// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package pipeline wires the six phases (spec.md §2) into the single
// entry point commands use: Run reads a root manifest and a working
// directory and produces a final, composed Filesystem, optionally
// emitting it to an output root.
package pipeline

import (
	"context"
	"os"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/compose"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/emit"
	"infra.chromium.org/commonrepo/internal/fetch"
	"infra.chromium.org/commonrepo/internal/localmerge"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/order"
	"infra.chromium.org/commonrepo/internal/process"
	"infra.chromium.org/commonrepo/internal/tree"
)

// Options configures a single pipeline run.
type Options struct {
	// WorkingDir is the project root: where the root manifest and local
	// files are loaded from.
	WorkingDir string

	// Fetcher and BlobCache are phase 1's collaborators (spec.md §6.2).
	Fetcher   fetch.Fetcher
	BlobCache cache.BlobCache

	// WorkerLimit bounds phase 1's per-level concurrency; <= 0 uses the
	// Discover default.
	WorkerLimit int
}

// Result is the pipeline's output: the final composed-and-locally-merged
// filesystem, plus the tree and order it was built from. The `validate`
// command does not build a Result: it calls Discover only.
type Result struct {
	Tree  *tree.RepoTree
	Order order.OperationOrder
	FS    *compose.Result
}

// Discover runs phases 1 and 3 (phase 2's processing is skipped): parse the
// root manifest, build and order the inheritance tree. Used standalone by the `validate` command, and as the
// first half of Run.
func Discover(ctx context.Context, opts Options) (*tree.RepoTree, order.OperationOrder, manifest.Manifest, error) {
	rootManifestPath, err := findManifest(opts.WorkingDir)
	if err != nil {
		return nil, nil, nil, err
	}
	rootManifest, err := manifest.Load(rootManifestPath)
	if err != nil {
		return nil, nil, nil, err
	}

	t, err := tree.Discover(ctx, rootManifest, opts.Fetcher, opts.BlobCache, opts.WorkerLimit)
	if err != nil {
		return nil, nil, nil, err
	}
	seq := order.Build(t)
	return t, seq, t.Root.Ops, nil
}

// Run executes the full six-phase pipeline and returns the final
// filesystem. It does not emit; call emit.Write on the result to
// materialize it, so callers can implement dry-run by simply not calling
// Write.
func Run(ctx context.Context, opts Options) (*Result, error) {
	t, seq, rootOps, err := Discover(ctx, opts)
	if err != nil {
		return nil, err
	}

	nc := cache.NewNodeCache[*process.IntermediateFS]()
	byNode, err := process.BuildAll(ctx, t.Root, opts.BlobCache, nc)
	if err != nil {
		return nil, err
	}

	composed, err := compose.Run(ctx, seq, byNode)
	if err != nil {
		return nil, err
	}

	local, err := localmerge.Load(opts.WorkingDir, manifest.FileNames)
	if err != nil {
		return nil, err
	}
	localVars, err := localmerge.ApplyLocalOnly(local, rootOps)
	if err != nil {
		return nil, err
	}
	if err := localmerge.Run(ctx, composed.FS, local, localVars, rootOps); err != nil {
		return nil, err
	}

	logging.Infof(ctx, "composed %d files from %d tree nodes", composed.FS.Len(), len(seq))
	return &Result{Tree: t, Order: seq, FS: composed}, nil
}

// Emit materializes result's final filesystem under outRoot (phase 6).
func Emit(result *Result, outRoot string) error {
	return emit.Write(result.FS.FS, outRoot)
}

func findManifest(dir string) (string, error) {
	for _, name := range manifest.FileNames {
		p := dir + "/" + name
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", errors.Reason("no manifest (%v) found in %q", manifest.FileNames, dir).Tag(corerr.ManifestParse).Err()
}
