// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mdmerge implements the `markdown` merge operation (spec.md
// §4.9): byte-precise splicing of a document section addressed by
// (level, heading text).
//
// Deliberately built on the standard library (regexp/strings line scanning,
// in the style of the teacher's gitignore/excluder.go) rather than any
// Markdown AST library in the pack: this operation must touch only the
// addressed section's body and leave every other byte verbatim, which an
// AST-render round-trip (reformatting, normalizing whitespace) cannot
// guarantee. See SPEC_FULL.md for the full rationale.
package mdmerge

import (
	"regexp"
	"strings"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/manifest"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*$`)

// Merge merges srcBytes into the section (level, heading) of destBytes.
func Merge(srcBytes, destBytes []byte, heading string, level int, appendMode bool, position manifest.Position, createSection bool) ([]byte, error) {
	if level < 1 || level > 6 {
		return nil, errors.Reason("markdown heading level %d out of range [1,6]", level).Tag(corerr.Validation).Err()
	}

	lines := splitLines(destBytes)
	srcLines := trimBlankEdges(splitLines(srcBytes))

	idx, found := findHeading(lines, heading, level)
	if !found {
		if !createSection {
			return nil, errors.Reason("markdown section (level=%d, heading=%q) not found and create_section is false", level, heading).Tag(corerr.Merge).Err()
		}
		return joinLines(insertSection(lines, heading, level, srcLines, position)), nil
	}

	end := findSectionEnd(lines, idx, level)
	body := lines[idx+1 : end]

	var newBody []string
	if appendMode {
		trimmed := trimBlankEdges(body)
		switch {
		case len(trimmed) == 0:
			newBody = srcLines
		case len(srcLines) == 0:
			newBody = trimmed
		default:
			newBody = append(append([]string{}, trimmed...), "")
			newBody = append(newBody, srcLines...)
		}
	} else {
		newBody = srcLines
	}

	var spliced []string
	if len(newBody) > 0 {
		spliced = append([]string{""}, newBody...)
		if end < len(lines) {
			spliced = append(spliced, "")
		}
	}

	result := append([]string{}, lines[:idx+1]...)
	result = append(result, spliced...)
	result = append(result, lines[end:]...)
	return joinLines(result), nil
}

func findHeading(lines []string, heading string, level int) (int, bool) {
	for i, l := range lines {
		m := headingPattern.FindStringSubmatch(l)
		if m != nil && len(m[1]) == level && m[2] == heading {
			return i, true
		}
	}
	return -1, false
}

// findSectionEnd returns the index of the next heading at level <= start's
// level, or len(lines) if none follows.
func findSectionEnd(lines []string, start, level int) int {
	for i := start + 1; i < len(lines); i++ {
		if m := headingPattern.FindStringSubmatch(lines[i]); m != nil && len(m[1]) <= level {
			return i
		}
	}
	return len(lines)
}

// insertSection builds a brand-new heading+body block when create_section
// is true and no matching heading exists, placed per position (default
// end).
func insertSection(lines []string, heading string, level int, body []string, position manifest.Position) []string {
	block := append([]string{strings.Repeat("#", level) + " " + heading, ""}, body...)

	if position == manifest.PositionStart {
		i := 0
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
		out := append([]string{}, lines[:i]...)
		out = append(out, block...)
		out = append(out, "")
		out = append(out, lines[i:]...)
		return out
	}

	out := append([]string{}, lines...)
	if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
		out = append(out, "")
	}
	return append(out, block...)
}

func trimBlankEdges(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

func splitLines(content []byte) []string {
	s := string(content)
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return []string{""}
	}
	return strings.Split(s, "\n")
}

// joinLines re-assembles lines, guaranteeing a trailing newline (spec.md
// §4.9: "All mergers guarantee a trailing newline").
func joinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
