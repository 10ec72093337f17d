// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package path implements the dot-path navigation language shared by the
// YAML and JSON mergers (spec.md §4.9): dot-separated keys, a backslash
// escape for a literal dot, and bracketed keys/indices.
package path

import (
	"strconv"
	"strings"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// Segment is one step of a parsed path: either a mapping key or a sequence
// index.
type Segment struct {
	Key      string
	Index    int
	IsIndex  bool
}

// Parse splits raw into segments. An empty string or "/" means the document
// root (zero segments).
func Parse(raw string) ([]Segment, error) {
	if raw == "" || raw == "/" {
		return nil, nil
	}

	var segs []Segment
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, Segment{Key: cur.String()})
			cur.Reset()
		}
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '\\' && i+1 < len(runes):
			cur.WriteRune(runes[i+1])
			i++
		case r == '.':
			flush()
		case r == '[':
			flush()
			end, seg, err := parseBracket(runes, i)
			if err != nil {
				return nil, err
			}
			segs = append(segs, seg)
			i = end
			// A bracket group may be directly followed by a '.' or another
			// '[', both handled by the outer loop; nothing else to do.
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return segs, nil
}

// parseBracket parses a `[...]` group starting at runes[start] == '['.
// Returns the index of the closing ']' and the parsed segment.
func parseBracket(runes []rune, start int) (int, Segment, error) {
	i := start + 1
	var body strings.Builder
	quote := rune(0)
	quoted := false
	for ; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			switch {
			case r == '\\' && i+1 < len(runes):
				body.WriteRune(runes[i+1])
				i++
			case r == quote:
				quote = 0
			default:
				body.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			quoted = true
		case r == ']':
			content := body.String()
			if n, err := strconv.Atoi(content); err == nil && !quoted {
				return i, Segment{Index: n, IsIndex: true}, nil
			}
			return i, Segment{Key: content}, nil
		default:
			body.WriteRune(r)
		}
	}
	return 0, Segment{}, errors.Reason("unterminated bracket in path starting at %q", string(runes[start:])).Tag(corerr.Merge).Err()
}

// String renders segs back into dotted-path form, for diagnostics.
func String(segs []Segment) string {
	if len(segs) == 0 {
		return "/"
	}
	var b strings.Builder
	for i, s := range segs {
		if s.IsIndex {
			b.WriteString("[")
			b.WriteString(strconv.Itoa(s.Index))
			b.WriteString("]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(s.Key)
	}
	return b.String()
}
