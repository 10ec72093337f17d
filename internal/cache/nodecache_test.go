// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cache

import (
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestKeyString(t *testing.T) {
	t.Parallel()

	Convey("Renders without a fingerprint suffix when ops are empty", t, func() {
		k := Key{URL: "https://example.com/a.git", Ref: "main"}
		So(k.String(), ShouldEqual, "https://example.com/a.git@main")
	})

	Convey("Renders with the #ops- suffix when a fingerprint is set", t, func() {
		k := Key{URL: "https://example.com/a.git", Ref: "main", OpsFingerprint: "deadbeef"}
		So(k.String(), ShouldEqual, "https://example.com/a.git#ops-deadbeef@main")
	})
}

func TestNewKey(t *testing.T) {
	t.Parallel()

	Convey("Rejects an empty url or ref", t, func() {
		_, err := NewKey("", "main", "")
		So(err, ShouldNotBeNil)
		_, err = NewKey("https://example.com/a.git", "", "")
		So(err, ShouldNotBeNil)
	})
}

func TestNodeCacheGetOrCompute(t *testing.T) {
	t.Parallel()

	Convey("Computes once and returns the cached value on a later call", t, func() {
		nc := NewNodeCache[int]()
		var calls int32
		build := func() (int, error) {
			atomic.AddInt32(&calls, 1)
			return 42, nil
		}

		k := Key{URL: "https://example.com/a.git", Ref: "main"}
		v1, err := nc.GetOrCompute(k, build)
		So(err, ShouldBeNil)
		v2, err := nc.GetOrCompute(k, build)
		So(err, ShouldBeNil)

		So(v1, ShouldEqual, 42)
		So(v2, ShouldEqual, 42)
		So(calls, ShouldEqual, 1)
	})

	Convey("Runs the builder exactly once under concurrent callers", t, func() {
		nc := NewNodeCache[int]()
		var calls int32
		build := func() (int, error) {
			atomic.AddInt32(&calls, 1)
			return 7, nil
		}

		k := Key{URL: "https://example.com/a.git", Ref: "main"}
		var wg sync.WaitGroup
		results := make([]int, 20)
		errs := make([]error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = nc.GetOrCompute(k, build)
			}(i)
		}
		wg.Wait()

		for i := range results {
			So(errs[i], ShouldBeNil)
			So(results[i], ShouldEqual, 7)
		}
		So(calls, ShouldEqual, 1)
	})
}
