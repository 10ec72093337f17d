// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra.chromium.org/commonrepo/internal/vfs"
)

// fakeFetcher and fakeBlobCache share one snapshots map: Fetch returns a
// node's canned tree, and the blob cache is pre-populated with the same
// snapshots to stand in for a real Fetcher's post-clone Save.
type fakeFetcher struct {
	snapshots map[string]*vfs.Filesystem
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, ref, subpath string) (*vfs.Filesystem, error) {
	key := url + "@" + ref
	fs, ok := f.snapshots[key]
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", key)
	}
	return fs, nil
}

type fakeBlobCache struct {
	snapshots map[string]*vfs.Filesystem
}

func (f *fakeBlobCache) Has(url, ref string) bool { return f.snapshots[url+"@"+ref] != nil }
func (f *fakeBlobCache) Load(url, ref string) (*vfs.Filesystem, error) {
	return f.snapshots[url+"@"+ref].Clone(), nil
}
func (f *fakeBlobCache) Save(url, ref, sourceDir string) error { return nil }

func TestDiscover(t *testing.T) {
	t.Parallel()

	Convey("Finds the working directory's manifest and builds an ordered tree", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, ".common-repo.yaml"), []byte(`
- repo:
    url: https://example.com/a.git
    ref: main
`), 0o644), ShouldBeNil)

		snaps := map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": vfs.New(),
		}
		opts := Options{
			WorkingDir: dir,
			Fetcher:    &fakeFetcher{snapshots: snaps},
			BlobCache:  &fakeBlobCache{snapshots: snaps},
		}

		tr, seq, rootOps, err := Discover(context.Background(), opts)
		So(err, ShouldBeNil)
		So(len(tr.Root.Children), ShouldEqual, 1)
		So(len(seq), ShouldEqual, 2)
		So(rootOps, ShouldBeEmpty)
	})

	Convey("A missing manifest is an error", t, func() {
		dir := t.TempDir()
		opts := Options{WorkingDir: dir}
		_, _, _, err := Discover(context.Background(), opts)
		So(err, ShouldNotBeNil)
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	Convey("Runs all six phases end to end without emitting to disk", t, func() {
		dir := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, ".common-repo.yaml"), []byte(`
- repo:
    url: https://example.com/a.git
    ref: main
`), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "LOCAL.md"), []byte("local content"), 0o644), ShouldBeNil)

		remoteFS := vfs.New()
		remoteFS.Add("README.md", vfs.New([]byte("from remote")))
		snaps := map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": remoteFS,
		}
		opts := Options{
			WorkingDir: dir,
			Fetcher:    &fakeFetcher{snapshots: snaps},
			BlobCache:  &fakeBlobCache{snapshots: snaps},
		}

		result, err := Run(context.Background(), opts)
		So(err, ShouldBeNil)

		f, ok := result.FS.FS.Get("README.md")
		So(ok, ShouldBeTrue)
		So(string(f.Content), ShouldEqual, "from remote")

		f, ok = result.FS.FS.Get("LOCAL.md")
		So(ok, ShouldBeTrue)
		So(string(f.Content), ShouldEqual, "local content")

		// Nothing was materialized to disk yet.
		_, err = os.Stat(filepath.Join(dir, "README.md"))
		So(os.IsNotExist(err), ShouldBeTrue)
	})

	Convey("Emit writes the composed result to an output root", t, func() {
		dir := t.TempDir()
		out := t.TempDir()
		So(os.WriteFile(filepath.Join(dir, ".common-repo.yaml"), []byte(`[]`), 0o644), ShouldBeNil)
		So(os.WriteFile(filepath.Join(dir, "LOCAL.md"), []byte("hi"), 0o644), ShouldBeNil)

		opts := Options{WorkingDir: dir}
		result, err := Run(context.Background(), opts)
		So(err, ShouldBeNil)

		So(Emit(result, out), ShouldBeNil)
		body, err := os.ReadFile(filepath.Join(out, "LOCAL.md"))
		So(err, ShouldBeNil)
		So(string(body), ShouldEqual, "hi")
	})
}
