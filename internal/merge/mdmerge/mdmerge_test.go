// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mdmerge

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"infra.chromium.org/commonrepo/internal/manifest"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	Convey("Replaces an existing section's body, leaving surrounding sections untouched", t, func() {
		dest := []byte("# Title\n\n## Install\n\nold instructions\n\n## Usage\n\nusage text\n")
		src := []byte("new instructions\n")
		out, err := Merge(src, dest, "Install", 2, false, manifest.Position(""), false)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "new instructions")
		So(string(out), ShouldNotContainSubstring, "old instructions")
		So(string(out), ShouldContainSubstring, "## Usage")
		So(string(out), ShouldContainSubstring, "usage text")
	})

	Convey("appendMode appends to the existing body instead of replacing it", t, func() {
		dest := []byte("## Install\n\nstep one\n")
		src := []byte("step two\n")
		out, err := Merge(src, dest, "Install", 2, true, manifest.Position(""), false)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "step one")
		So(string(out), ShouldContainSubstring, "step two")
	})

	Convey("Missing section with create_section=false is an error", t, func() {
		dest := []byte("# Title\n")
		_, err := Merge([]byte("body"), dest, "Missing", 2, false, manifest.Position(""), false)
		So(err, ShouldNotBeNil)
	})

	Convey("Missing section with create_section=true inserts a new heading block at the end", t, func() {
		dest := []byte("# Title\n\nsome intro\n")
		out, err := Merge([]byte("new body\n"), dest, "Notes", 2, false, manifest.PositionEnd, true)
		So(err, ShouldBeNil)
		So(string(out), ShouldContainSubstring, "## Notes")
		So(string(out), ShouldContainSubstring, "new body")
	})

	Convey("A level mismatch does not match a same-named heading at a different level", t, func() {
		dest := []byte("### Install\n\nnested\n")
		_, err := Merge([]byte("x"), dest, "Install", 2, false, manifest.Position(""), false)
		So(err, ShouldNotBeNil)
	})

	Convey("Output is always trailing-newline terminated", t, func() {
		dest := []byte("## Install\n\nstep one")
		out, err := Merge([]byte("step two"), dest, "Install", 2, false, manifest.Position(""), false)
		So(err, ShouldBeNil)
		So(out[len(out)-1], ShouldEqual, byte('\n'))
	})
}
