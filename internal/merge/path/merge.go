// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package path

import (
	"context"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
)

// Get navigates doc along segs, returning the value found there (or nil if
// any intermediate mapping key or sequence index is absent).
func Get(doc interface{}, segs []Segment) interface{} {
	cur := doc
	for _, s := range segs {
		switch {
		case s.IsIndex:
			seq, ok := cur.([]interface{})
			if !ok || s.Index < 0 || s.Index >= len(seq) {
				return nil
			}
			cur = seq[s.Index]
		default:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil
			}
			cur = m[s.Key]
		}
	}
	return cur
}

// Set navigates doc along segs and stores value there, creating missing
// intermediate mappings (and, when extendArrays is set, extending sequences
// with nils up to the needed index, per the YAML merger's documented
// behavior). Returns the possibly-new root, since setting into a nil root
// replaces it with a fresh mapping.
func Set(doc interface{}, segs []Segment, value interface{}, extendArrays bool) (interface{}, error) {
	if len(segs) == 0 {
		return value, nil
	}
	return setAt(doc, segs, value, extendArrays)
}

func setAt(doc interface{}, segs []Segment, value interface{}, extendArrays bool) (interface{}, error) {
	s := segs[0]
	rest := segs[1:]

	if s.IsIndex {
		seq, ok := doc.([]interface{})
		if !ok {
			if doc != nil {
				return nil, errors.Reason("path %s: expected a sequence, found %T", String(segs), doc).Tag(corerr.Merge).Err()
			}
			seq = nil
		}
		for len(seq) <= s.Index {
			if !extendArrays && len(seq) != s.Index {
				return nil, errors.Reason("path %s: index %d out of range (len %d)", String(segs), s.Index, len(seq)).Tag(corerr.Merge).Err()
			}
			seq = append(seq, nil)
		}
		child, err := setAt(seq[s.Index], rest, value, extendArrays)
		if err != nil {
			return nil, err
		}
		seq[s.Index] = child
		return seq, nil
	}

	m, ok := doc.(map[string]interface{})
	if !ok {
		if doc != nil {
			return nil, errors.Reason("path %s: expected a mapping, found %T", String(segs), doc).Tag(corerr.Merge).Err()
		}
		m = map[string]interface{}{}
	}
	child, err := setAt(m[s.Key], rest, value, extendArrays)
	if err != nil {
		return nil, err
	}
	m[s.Key] = child
	return m, nil
}

// MergeValue implements the generic merge rule of spec.md §4.9:
//
//	scalar over anything: replace
//	sequence into sequence: apply arrayMode
//	mapping into mapping: recurse by key, keep target-only keys
//	type mismatch: replace with src, emit a diagnostic
//
// at is the path at which dst/src were found, used only to label the
// diagnostic logged for a type mismatch; pass path.String(segs) from the
// call site, or "" at the root.
func MergeValue(ctx context.Context, dst, src interface{}, arrayMode manifest.ArrayMode, at string) interface{} {
	switch s := src.(type) {
	case map[string]interface{}:
		d, ok := dst.(map[string]interface{})
		if !ok {
			if dst != nil {
				logging.Warningf(ctx, "merge %s: replacing %T with mapping, type mismatch", at, dst)
			}
			return cloneMap(s)
		}
		out := cloneMap(d)
		for k, v := range s {
			out[k] = MergeValue(ctx, out[k], v, arrayMode, at+"."+k)
		}
		return out
	case []interface{}:
		d, ok := dst.([]interface{})
		if !ok {
			if dst != nil {
				logging.Warningf(ctx, "merge %s: replacing %T with sequence, type mismatch", at, dst)
			}
			return append([]interface{}{}, s...)
		}
		return mergeSequences(d, s, arrayMode)
	default:
		if dst != nil {
			switch dst.(type) {
			case map[string]interface{}, []interface{}:
				logging.Warningf(ctx, "merge %s: replacing %T with scalar, type mismatch", at, dst)
			}
		}
		return src
	}
}

func mergeSequences(dst, src []interface{}, mode manifest.ArrayMode) []interface{} {
	switch mode {
	case manifest.ArrayReplace:
		return append([]interface{}{}, src...)
	case manifest.ArrayAppendUnique:
		out := append([]interface{}{}, dst...)
		for _, v := range src {
			if !containsEqual(out, v) {
				out = append(out, v)
			}
		}
		return out
	case manifest.ArrayAppend, "":
		fallthrough
	default:
		out := append([]interface{}{}, dst...)
		return append(out, src...)
	}
}

func containsEqual(haystack []interface{}, needle interface{}) bool {
	for _, v := range haystack {
		if deepEqual(v, needle) {
			return true
		}
	}
	return false
}

func deepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !deepEqual(v, bv[k]) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
