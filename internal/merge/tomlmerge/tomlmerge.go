// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tomlmerge implements the `toml` merge operation (spec.md §4.9).
//
// Not part of the teacher's own dependency set — cloudbuildhelper never
// touches TOML. Adopted from the rest of the example pack (go-toml/v2 shows
// up across fulmenhq-goneat, google-oss-rebuild, mindersec-minder).
package tomlmerge

import (
	"bytes"
	"context"

	toml "github.com/pelletier/go-toml/v2"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/merge/path"
)

// Merge merges srcBytes into destBytes at the given dotted path.
//
// go-toml/v2 dropped the mutable-tree API of v1 in favor of a pure
// decode/encode model, so both documents are decoded, merged and
// re-encoded, and their comments are dropped whatever preserveComments says.
// preserveComments only switches the encoder to indented tables; callers
// that need byte-exact comment retention should prefer an
// `include`/local-file strategy instead of a toml merge.
func Merge(ctx context.Context, srcBytes, destBytes []byte, rawPath string, arrayMode manifest.ArrayMode, preserveComments bool) ([]byte, error) {
	segs, err := path.Parse(rawPath)
	if err != nil {
		return nil, err
	}

	src, err := decode(srcBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing toml source").Tag(corerr.Merge).Err()
	}
	dest, err := decode(destBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing toml dest").Tag(corerr.Merge).Err()
	}

	existing := path.Get(dest, segs)
	merged := path.MergeValue(ctx, existing, src, arrayMode, rawPath)
	dest, err = path.Set(dest, segs, merged, true)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if preserveComments {
		enc.SetIndentTables(true)
	}
	if err := enc.Encode(dest); err != nil {
		return nil, errors.Annotate(err, "serializing merged toml").Tag(corerr.Merge).Err()
	}
	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func decode(raw []byte) (interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	var v map[string]interface{}
	if err := toml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// normalize converts go-toml/v2's decoded []interface{} elements (which may
// themselves contain map[string]interface{}) into the plain generic shape
// path.MergeValue expects; go-toml already uses map[string]interface{}
// natively so this mostly only needs to deep-walk slices.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return t
	}
}
