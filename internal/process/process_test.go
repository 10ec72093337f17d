// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package process

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/tree"
	"infra.chromium.org/commonrepo/internal/vfs"
)

// fakeBlobCache serves one canned Filesystem per (url, ref), ignoring Save.
type fakeBlobCache struct {
	snapshots map[string]*vfs.Filesystem
}

func (f *fakeBlobCache) Has(url, ref string) bool { return f.snapshots[url+"@"+ref] != nil }
func (f *fakeBlobCache) Load(url, ref string) (*vfs.Filesystem, error) {
	return f.snapshots[url+"@"+ref].Clone(), nil
}
func (f *fakeBlobCache) Save(url, ref, sourceDir string) error { return nil }

func TestBuildAll(t *testing.T) {
	t.Parallel()

	Convey("Applies include/rename/template/template_vars and defers merges", t, func() {
		full := vfs.New()
		full.Add("keep.yaml", vfs.New([]byte("a: 1\n")))
		full.Add("drop.txt", vfs.New([]byte("nope")))
		full.Add("old_name.md", vfs.New([]byte("# hi")))

		bc := &fakeBlobCache{snapshots: map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": full,
		}}

		node := &tree.RepoNode{
			URL: "https://example.com/a.git",
			Ref: "main",
			Ops: manifest.Manifest{
				{Tag: manifest.OpInclude, Include: &manifest.IncludeOp{Patterns: []string{"*.yaml", "*.md"}}},
				{Tag: manifest.OpRename, Rename: &manifest.RenameOp{Mappings: []manifest.RenameMapping{
					{From: `^old_(.*)$`, To: "new_$1"},
				}}},
				{Tag: manifest.OpTemplate, Template: &manifest.TemplateOp{Patterns: []string{"*.yaml"}}},
				{Tag: manifest.OpTemplateVars, TemplateVars: &manifest.TemplateVarsOp{Vars: map[string]string{"x": "1"}}},
				{Tag: manifest.OpYAML, YAML: &manifest.MergeOp{Source: "keep.yaml", Dest: "keep.yaml"}},
			},
		}
		root := &tree.RepoNode{URL: "local", Ref: "HEAD", Children: []*tree.RepoNode{node}}

		nc := cache.NewNodeCache[*IntermediateFS]()
		byNode, err := BuildAll(context.Background(), root, bc, nc)
		So(err, ShouldBeNil)

		ifs := byNode[node]
		So(ifs, ShouldNotBeNil)
		So(ifs.FS.Len(), ShouldEqual, 2) // drop.txt excluded by include
		_, ok := ifs.FS.Get("drop.txt")
		So(ok, ShouldBeFalse)
		_, ok = ifs.FS.Get("old_name.md")
		So(ok, ShouldBeFalse)
		_, ok = ifs.FS.Get("new_name.md")
		So(ok, ShouldBeTrue)

		f, _ := ifs.FS.Get("keep.yaml")
		So(f.IsTemplate, ShouldBeTrue)

		So(ifs.TemplateVars["x"], ShouldEqual, "1")
		So(len(ifs.DeferredMerges), ShouldEqual, 1)
	})

	Convey("Memoizes by (url, ref, ops fingerprint)", t, func() {
		full := vfs.New()
		full.Add("f.txt", vfs.New([]byte("x")))
		bc := &fakeBlobCache{snapshots: map[string]*vfs.Filesystem{
			"https://example.com/a.git@main": full,
		}}

		nodeA := &tree.RepoNode{URL: "https://example.com/a.git", Ref: "main"}
		nodeB := &tree.RepoNode{URL: "https://example.com/a.git", Ref: "main"}
		root := &tree.RepoNode{URL: "local", Ref: "HEAD", Children: []*tree.RepoNode{nodeA, nodeB}}

		nc := cache.NewNodeCache[*IntermediateFS]()
		byNode, err := BuildAll(context.Background(), root, bc, nc)
		So(err, ShouldBeNil)
		So(byNode[nodeA], ShouldEqual, byNode[nodeB])
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	Convey("Empty ops yield an empty fingerprint", t, func() {
		fp, err := Fingerprint(nil)
		So(err, ShouldBeNil)
		So(fp, ShouldEqual, "")
	})

	Convey("Different ops yield different fingerprints", t, func() {
		a := manifest.Manifest{{Tag: manifest.OpInclude, Include: &manifest.IncludeOp{Patterns: []string{"*.go"}}}}
		b := manifest.Manifest{{Tag: manifest.OpInclude, Include: &manifest.IncludeOp{Patterns: []string{"*.md"}}}}

		fpA, err := Fingerprint(a)
		So(err, ShouldBeNil)
		fpB, err := Fingerprint(b)
		So(err, ShouldBeNil)
		So(fpA, ShouldNotEqual, fpB)
		So(fpA, ShouldNotEqual, "")
	})
}
