// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package corerr defines the error-kind tags used throughout the pipeline.
//
// Every fatal condition the pipeline can produce is annotated with exactly
// one of these tags (see spec.md §7), so callers can classify a failure
// without string-matching its message.
package corerr

import (
	"go.chromium.org/luci/common/errors"
)

// Kind tags classify pipeline errors. They are checked with Kind.In(err).
var (
	// ManifestParse tags invalid YAML or an unknown operation tag.
	ManifestParse = errors.BoolTag{Key: errors.NewTagKey("manifest parse error")}

	// Validation tags structurally valid but semantically rejected input,
	// e.g. a nested `repo` under `with`, or a bad markdown heading level.
	Validation = errors.BoolTag{Key: errors.NewTagKey("validation error")}

	// CycleDetected tags a circular inheritance chain.
	CycleDetected = errors.BoolTag{Key: errors.NewTagKey("cycle detected")}

	// Fetch tags a failure to retrieve an inherited repository.
	Fetch = errors.BoolTag{Key: errors.NewTagKey("fetch error")}

	// Network subclasses Fetch: failures the cache fallback applies to.
	Network = errors.BoolTag{Key: errors.NewTagKey("network error")}

	// ToolValidation tags a missing or version-incompatible host tool.
	ToolValidation = errors.BoolTag{Key: errors.NewTagKey("tool validation error")}

	// Merge tags a structured-document merger failure.
	Merge = errors.BoolTag{Key: errors.NewTagKey("merge error")}

	// Template tags an unrecoverable template-engine error.
	Template = errors.BoolTag{Key: errors.NewTagKey("template error")}

	// Filesystem tags an emit or load I/O failure.
	Filesystem = errors.BoolTag{Key: errors.NewTagKey("filesystem error")}

	// LockPoisoned tags a cache lock that entered an unrecoverable state.
	LockPoisoned = errors.BoolTag{Key: errors.NewTagKey("lock poisoned")}
)
