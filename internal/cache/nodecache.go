// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package cache

import (
	"fmt"
	"sync"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// Key identifies one cacheable per-node build (spec.md §4.4): the url,
// optionally suffixed with a fingerprint of its operation list, and the
// ref.
type Key struct {
	URL         string
	OpsFingerprint string // empty when the node has no operations
	Ref         string
}

// String renders the key the way spec.md §3 documents it: "{url}@{ref}" or
// "{url}#ops-{hex}@{ref}".
func (k Key) String() string {
	if k.OpsFingerprint == "" {
		return fmt.Sprintf("%s@%s", k.URL, k.Ref)
	}
	return fmt.Sprintf("%s#ops-%s@%s", k.URL, k.OpsFingerprint, k.Ref)
}

// NodeCache memoizes per-node build results keyed by Key, guaranteeing
// at-most-one producer runs for a given key at a time even under
// concurrent callers (spec.md §4.4, §5).
//
// V is the pipeline's IntermediateFS type; kept generic here so this
// package has no dependency on the phase-2 processing package.
type NodeCache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
}

type entry[V any] struct {
	once  sync.Once
	value V
	err   error
}

// NewNodeCache returns an empty NodeCache.
func NewNodeCache[V any]() *NodeCache[V] {
	return &NodeCache[V]{entries: map[string]*entry[V]{}}
}

// GetOrCompute returns the cached value for key, computing it via build
// exactly once across all concurrent callers. A build panic is not
// recovered; a build that never returns leaves every concurrent waiter
// blocked, which is treated as a LockPoisoned condition by callers that
// choose to wrap this with a timeout.
func (c *NodeCache[V]) GetOrCompute(key Key, build func() (V, error)) (V, error) {
	k := key.String()

	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &entry[V]{}
		c.entries[k] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.value, e.err = build()
	})
	return e.value, e.err
}

// mustNotBeEmpty is a tiny guard used by Key construction call sites; kept
// here so a Key is never silently built with an empty URL.
func mustNotBeEmpty(field, value string) error {
	if value == "" {
		return errors.Reason("cache key field %q must not be empty", field).Tag(corerr.LockPoisoned).Err()
	}
	return nil
}

// NewKey validates and constructs a Key.
func NewKey(url, ref, opsFingerprint string) (Key, error) {
	if err := mustNotBeEmpty("url", url); err != nil {
		return Key{}, err
	}
	if err := mustNotBeEmpty("ref", ref); err != nil {
		return Key{}, err
	}
	return Key{URL: url, Ref: ref, OpsFingerprint: opsFingerprint}, nil
}
