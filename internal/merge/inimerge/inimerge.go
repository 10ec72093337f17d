// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package inimerge implements the `ini` merge operation (spec.md §4.9),
// built on gopkg.in/ini.v1's native section model rather than the shared
// dot-path engine (INI has no nested-document structure to path into).
package inimerge

import (
	"bytes"
	"strings"

	"gopkg.in/ini.v1"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// Merge merges srcBytes into destBytes.
//
// If section is non-empty, every key from every source section (named or
// the implicit default one) is merged into that single destination
// section. If section is empty, each source section merges into the
// destination section of the same name.
//
// appendMode preserves destination values for keys the source also
// defines; replace mode lets the source win. Keys are compared
// case-insensitively. allowDuplicates does not change the output: a source
// key that collides with one already in the destination section is always
// handled by the append/replace rule above, and no shadow (duplicate)
// entries are ever written.
func Merge(srcBytes, destBytes []byte, section string, appendMode, allowDuplicates bool) ([]byte, error) {
	destCfg, err := loadOrEmpty(destBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing ini dest").Tag(corerr.Merge).Err()
	}
	srcCfg, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, srcBytes)
	if err != nil {
		return nil, errors.Annotate(err, "parsing ini source").Tag(corerr.Merge).Err()
	}

	for _, srcSec := range srcCfg.Sections() {
		destName := srcSec.Name()
		if section != "" {
			destName = section
		}
		destSec, err := destCfg.NewSection(destName)
		if err != nil {
			return nil, errors.Annotate(err, "creating ini section %q", destName).Tag(corerr.Merge).Err()
		}
		mergeSection(destSec, srcSec, appendMode, allowDuplicates)
	}

	var buf bytes.Buffer
	if _, err := destCfg.WriteTo(&buf); err != nil {
		return nil, errors.Annotate(err, "serializing merged ini").Tag(corerr.Merge).Err()
	}
	out := buf.Bytes()
	if len(out) == 0 || out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return out, nil
}

func mergeSection(dest, src *ini.Section, appendMode, allowDuplicates bool) {
	seen := map[string]bool{}
	for _, k := range dest.Keys() {
		seen[strings.ToLower(k.Name())] = true
	}
	for _, k := range src.Keys() {
		lower := strings.ToLower(k.Name())
		if existing := dest.HasKey(k.Name()); existing || hasKeyFold(dest, lower) {
			if appendMode {
				continue // target value wins, source entry discarded
			}
			deleteKeyFold(dest, lower)
			dest.NewKey(k.Name(), k.Value())
			continue
		}
		if seen[lower] && !allowDuplicates {
			continue
		}
		dest.NewKey(k.Name(), k.Value())
		seen[lower] = true
	}
}

func hasKeyFold(sec *ini.Section, lower string) bool {
	for _, k := range sec.Keys() {
		if strings.ToLower(k.Name()) == lower {
			return true
		}
	}
	return false
}

func deleteKeyFold(sec *ini.Section, lower string) {
	for _, k := range sec.Keys() {
		if strings.ToLower(k.Name()) == lower {
			sec.DeleteKey(k.Name())
		}
	}
}

func loadOrEmpty(raw []byte) (*ini.File, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ini.Empty(), nil
	}
	return ini.Load(raw)
}
