// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package template implements the pipeline's ${NAME} substitution engine
// (spec.md §4.6, §6.2): literal, single-pass, and silent about unresolved
// names.
package template

import "regexp"

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Substitute replaces every `${NAME}` occurrence in content with vars[NAME].
// A name absent from vars is left verbatim, per spec.md §9's open-question
// resolution: unresolved placeholders are retained, not an error.
//
// Substitution is literal: the replacement text is never itself rescanned
// for further placeholders.
func Substitute(content []byte, vars map[string]string) []byte {
	return placeholder.ReplaceAllFunc(content, func(match []byte) []byte {
		name := string(placeholder.FindSubmatch(match)[1])
		if val, ok := vars[name]; ok {
			return []byte(val)
		}
		return match
	})
}
