// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package yamlmerge

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra.chromium.org/commonrepo/internal/manifest"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	Convey("Merges a source mapping into an empty destination at the root path", t, func() {
		out, err := Merge(context.Background(), []byte("port: 5432\n"), nil, "", manifest.ArrayReplace)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "port: 5432")
	})

	Convey("Merges at a nested dotted path, preserving sibling keys", t, func() {
		dest := []byte("database:\n  host: localhost\n")
		src := []byte("port: 5432\n")
		out, err := Merge(context.Background(), src, dest, "database", manifest.ArrayReplace)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "host: localhost")
		So(string(out), ShouldContainSubstring, "port: 5432")
	})

	Convey("append_unique array mode unions without duplicating", t, func() {
		dest := []byte("tags: [a, b]\n")
		src := []byte("tags: [b, c]\n")
		out, err := Merge(context.Background(), src, dest, "", manifest.ArrayAppendUnique)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "- a")
		So(string(out), ShouldContainSubstring, "- b")
		So(string(out), ShouldContainSubstring, "- c")
	})

	Convey("Output is always trailing-newline terminated", t, func() {
		out, err := Merge(context.Background(), []byte("a: 1"), nil, "", manifest.ArrayReplace)
		So(err, ShouldBeNil)
		So(out[len(out)-1], ShouldEqual, byte('\n'))
	})
}
