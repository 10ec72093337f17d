// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package path

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParse(t *testing.T) {
	t.Parallel()

	Convey("Empty and root paths parse to zero segments", t, func() {
		segs, err := Parse("")
		So(err, ShouldBeNil)
		So(segs, ShouldBeEmpty)

		segs, err = Parse("/")
		So(err, ShouldBeNil)
		So(segs, ShouldBeEmpty)
	})

	Convey("Dot-separated keys", t, func() {
		segs, err := Parse("a.b.c")
		So(err, ShouldBeNil)
		So(segs, ShouldResemble, []Segment{{Key: "a"}, {Key: "b"}, {Key: "c"}})
	})

	Convey("Backslash escapes a literal dot", t, func() {
		segs, err := Parse(`a\.b.c`)
		So(err, ShouldBeNil)
		So(segs, ShouldResemble, []Segment{{Key: "a.b"}, {Key: "c"}})
	})

	Convey("Bracketed numeric index", t, func() {
		segs, err := Parse("a[2].b")
		So(err, ShouldBeNil)
		So(segs, ShouldResemble, []Segment{{Key: "a"}, {Index: 2, IsIndex: true}, {Key: "b"}})
	})

	Convey("Bracketed quoted key is never treated as an index", t, func() {
		segs, err := Parse(`a["2"]`)
		So(err, ShouldBeNil)
		So(segs, ShouldResemble, []Segment{{Key: "a"}, {Key: "2"}})
	})

	Convey("Unterminated bracket is an error", t, func() {
		_, err := Parse("a[2")
		So(err, ShouldNotBeNil)
	})
}

func TestGetSetMergeValue(t *testing.T) {
	t.Parallel()

	Convey("Get/Set round-trip through nested maps and a list index", t, func() {
		doc := map[string]interface{}{
			"a": map[string]interface{}{
				"list": []interface{}{"x", "y"},
			},
		}
		segs, err := Parse("a.list[1]")
		So(err, ShouldBeNil)
		So(Get(doc, segs), ShouldEqual, "y")

		doc2, err := Set(doc, segs, "z", true)
		So(err, ShouldBeNil)
		segs2, _ := Parse("a.list[1]")
		So(Get(doc2, segs2), ShouldEqual, "z")
	})

	Convey("MergeValue: scalar replaces scalar", t, func() {
		So(MergeValue(context.Background(), "old", "new", "", ""), ShouldEqual, "new")
	})

	Convey("MergeValue: append mode concatenates sequences", t, func() {
		out := MergeValue(context.Background(), []interface{}{"a"}, []interface{}{"b"}, "append", "")
		So(out, ShouldResemble, []interface{}{"a", "b"})
	})

	Convey("MergeValue: append_unique skips duplicates", t, func() {
		out := MergeValue(context.Background(), []interface{}{"a", "b"}, []interface{}{"b", "c"}, "append_unique", "")
		So(out, ShouldResemble, []interface{}{"a", "b", "c"})
	})

	Convey("MergeValue: replace mode takes the source sequence outright", t, func() {
		out := MergeValue(context.Background(), []interface{}{"a"}, []interface{}{"b"}, "replace", "")
		So(out, ShouldResemble, []interface{}{"b"})
	})

	Convey("MergeValue: mapping recurses by key, preserving target-only keys", t, func() {
		dst := map[string]interface{}{"a": 1, "b": 2}
		src := map[string]interface{}{"b": 20, "c": 3}
		out := MergeValue(context.Background(), dst, src, "", "")
		So(out, ShouldResemble, map[string]interface{}{"a": 1, "b": 20, "c": 3})
	})

	Convey("MergeValue: type mismatch replaces target and does not panic", t, func() {
		out := MergeValue(context.Background(), map[string]interface{}{"a": 1}, []interface{}{"b"}, "", "root")
		So(out, ShouldResemble, []interface{}{"b"})

		out = MergeValue(context.Background(), []interface{}{"a"}, map[string]interface{}{"b": 2}, "", "root")
		So(out, ShouldResemble, map[string]interface{}{"b": 2})

		out = MergeValue(context.Background(), map[string]interface{}{"a": 1}, "scalar", "", "root")
		So(out, ShouldEqual, "scalar")
	})
}
