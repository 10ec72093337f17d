// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package yamlmerge implements the `yaml` merge operation (spec.md §4.9).
package yamlmerge

import (
	"bytes"
	"context"

	"gopkg.in/yaml.v2"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
	"infra.chromium.org/commonrepo/internal/merge/path"
)

// Merge merges srcBytes into destBytes at the given dotted path and returns
// the serialized result, always trailing-newline terminated. destBytes may
// be empty, in which case an empty mapping is the starting document.
func Merge(ctx context.Context, srcBytes, destBytes []byte, rawPath string, arrayMode manifest.ArrayMode) ([]byte, error) {
	segs, err := path.Parse(rawPath)
	if err != nil {
		return nil, err
	}

	src, err := decode(srcBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing yaml source").Tag(corerr.Merge).Err()
	}
	dest, err := decode(destBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing yaml dest").Tag(corerr.Merge).Err()
	}

	existing := path.Get(dest, segs)
	merged := path.MergeValue(ctx, existing, src, arrayMode, rawPath)
	dest, err = path.Set(dest, segs, merged, true)
	if err != nil {
		return nil, err
	}

	out, err := yaml.Marshal(dest)
	if err != nil {
		return nil, errors.Annotate(err, "serializing merged yaml").Tag(corerr.Merge).Err()
	}
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

// decode parses raw YAML into a generic tree using map[string]interface{}
// for mappings (yaml.v2 natively produces map[interface{}]interface{}; this
// normalizes so the shared path/merge engine can work with both YAML and
// JSON documents uniformly).
func decode(raw []byte) (interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}
	var v interface{}
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[toString(k)] = normalize(val)
		}
		return out
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

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return yamlScalarString(v)
}

func yamlScalarString(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(bytes.TrimSpace(b))
}
