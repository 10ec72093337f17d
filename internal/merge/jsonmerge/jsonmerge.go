// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package jsonmerge implements the `json` merge operation (spec.md §4.9).
package jsonmerge

import (
	"bytes"
	"context"
	"encoding/json"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/merge/path"
)

// Merge merges srcBytes into destBytes at the given dotted path.
//
// JSON's array mode is reduced to append vs replace (no append_unique);
// `position` of start/end controls whether append prepends or appends.
func Merge(ctx context.Context, srcBytes, destBytes []byte, rawPath string, append_ bool, position manifest.Position) ([]byte, error) {
	segs, err := path.Parse(rawPath)
	if err != nil {
		return nil, err
	}

	src, err := decode(srcBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing json source").Tag(corerr.Merge).Err()
	}
	dest, err := decode(destBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing json dest").Tag(corerr.Merge).Err()
	}

	existing := path.Get(dest, segs)

	arrayMode := manifest.ArrayReplace
	if append_ {
		arrayMode = manifest.ArrayAppend
	}
	merged := path.MergeValue(ctx, existing, src, arrayMode, rawPath)

	if append_ && position == manifest.PositionStart {
		merged = prependArrays(existing, src, merged)
	}

	dest, err = path.Set(dest, segs, merged, true)
	if err != nil {
		return nil, err
	}

	out, err := json.MarshalIndent(dest, "", "  ")
	if err != nil {
		return nil, errors.Annotate(err, "serializing merged json").Tag(corerr.Merge).Err()
	}
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// prependArrays redoes the merge when position=start was requested:
// wherever both sides hold a sequence at the same place (at the merge point
// or nested under mappings), source entries come first.
func prependArrays(existing, src, merged interface{}) interface{} {
	switch s := src.(type) {
	case []interface{}:
		if d, ok := existing.([]interface{}); ok {
			out := append([]interface{}{}, s...)
			return append(out, d...)
		}
	case map[string]interface{}:
		d, ok1 := existing.(map[string]interface{})
		m, ok2 := merged.(map[string]interface{})
		if ok1 && ok2 {
			for k, v := range s {
				m[k] = prependArrays(d[k], v, m[k])
			}
		}
	}
	return merged
}

func decode(raw []byte) (interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
