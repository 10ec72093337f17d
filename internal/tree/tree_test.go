// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package tree

import (
	"context"
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// fakeFetcher serves canned Filesystems keyed by "url@ref", recording every
// call it receives.
type fakeFetcher struct {
	snapshots map[string]*vfs.Filesystem
	calls     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, ref, subpath string) (*vfs.Filesystem, error) {
	key := url + "@" + ref
	f.calls = append(f.calls, key)
	fs, ok := f.snapshots[key]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", key)
	}
	return fs, nil
}

func manifestFS(yamlBody string) *vfs.Filesystem {
	fs := vfs.New()
	fs.Add(".common-repo.yaml", vfs.New([]byte(yamlBody)))
	return fs
}

// subpathFetcher serves canned Filesystems representing a repo's full,
// unstripped tree, then strips the requested subpath's prefix from every
// key before returning — mirroring fetch.Fetcher's documented contract
// (fetch.go: "with subpath's prefix stripped from every key") so a test
// can catch a caller that re-applies the subpath on top of an
// already-stripped result.
type subpathFetcher struct {
	fullTrees map[string]*vfs.Filesystem
}

func (f *subpathFetcher) Fetch(ctx context.Context, url, ref, subpath string) (*vfs.Filesystem, error) {
	full, ok := f.fullTrees[url+"@"+ref]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s@%s", url, ref)
	}
	if subpath == "" {
		return full, nil
	}
	prefix := subpath + "/"
	out := vfs.New()
	for _, e := range full.Files() {
		if rest, ok := stripPrefix(e.Path, prefix); ok {
			out.Add(rest, e.File)
		}
	}
	return out, nil
}

func stripPrefix(path, prefix string) (string, bool) {
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return "", false
	}
	return path[len(prefix):], true
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	Convey("Builds a two-level tree and fetches each repo once", t, func() {
		fetcher := &fakeFetcher{snapshots: map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": manifestFS(`
- include:
    patterns: ["*.txt"]
`),
			"https://example.com/b.git@main": manifestFS(`[]`),
		}}

		root := manifest.Manifest{
			{Tag: manifest.OpRepo, Repo: &manifest.RepoOp{URL: "https://example.com/a.git", Ref: "main"}},
			{Tag: manifest.OpRepo, Repo: &manifest.RepoOp{URL: "https://example.com/b.git", Ref: "main"}},
		}

		tr, err := Discover(context.Background(), root, fetcher, nil, 4)
		So(err, ShouldBeNil)
		So(len(tr.Root.Children), ShouldEqual, 2)
		So(len(fetcher.calls), ShouldEqual, 2)
		So(tr.Keys["https://example.com/a.git@main"], ShouldBeTrue)
		So(tr.Keys["https://example.com/b.git@main"], ShouldBeTrue)
	})

	Convey("Detects a two-node cycle", t, func() {
		fetcher := &fakeFetcher{snapshots: map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": manifestFS(`
- repo:
    url: https://example.com/b.git
    ref: main
`),
			"https://example.com/b.git@main": manifestFS(`
- repo:
    url: https://example.com/a.git
    ref: main
`),
		}}

		root := manifest.Manifest{
			{Tag: manifest.OpRepo, Repo: &manifest.RepoOp{URL: "https://example.com/a.git", Ref: "main"}},
		}

		_, err := Discover(context.Background(), root, fetcher, nil, 4)
		So(err, ShouldNotBeNil)
	})

	Convey("A leaf repo with no manifest stops recursion", t, func() {
		fetcher := &fakeFetcher{snapshots: map[string]*vfs.Filesystem{
			"https://example.com/leaf.git@v1": vfs.New(),
		}}
		root := manifest.Manifest{
			{Tag: manifest.OpRepo, Repo: &manifest.RepoOp{URL: "https://example.com/leaf.git", Ref: "v1"}},
		}

		tr, err := Discover(context.Background(), root, fetcher, nil, 4)
		So(err, ShouldBeNil)
		So(len(tr.Root.Children), ShouldEqual, 1)
		So(len(tr.Root.Children[0].Children), ShouldEqual, 0)
	})

	Convey("Recurses into a subpath-scoped repo's own manifest", t, func() {
		full := vfs.New()
		full.Add("unrelated.txt", vfs.New([]byte("not part of the subtree")))
		full.Add("sub/.common-repo.yaml", vfs.New([]byte(`
- repo:
    url: https://example.com/c.git
    ref: main
`)))
		fetcher := &subpathFetcher{fullTrees: map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": full,
			"https://example.com/c.git@main": vfs.New(),
		}}

		root := manifest.Manifest{
			{Tag: manifest.OpRepo, Repo: &manifest.RepoOp{URL: "https://example.com/a.git", Ref: "main", Path: "sub"}},
		}

		tr, err := Discover(context.Background(), root, fetcher, nil, 4)
		So(err, ShouldBeNil)
		So(len(tr.Root.Children), ShouldEqual, 1)
		// The nested manifest under "sub/" must be found at its stripped
		// root, not re-prefixed with "sub/" a second time — otherwise this
		// grandchild would never be discovered.
		So(len(tr.Root.Children[0].Children), ShouldEqual, 1)
		So(tr.Root.Children[0].Children[0].URL, ShouldEqual, "https://example.com/c.git")
	})
}
