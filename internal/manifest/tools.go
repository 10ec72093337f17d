// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package manifest

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"go.chromium.org/luci/common/errors"

	"infra.chromium.org/commonrepo/internal/corerr"
)

// versionFlags are tried in order against a tool's executable to extract a
// version string; the first one whose combined stdout/stderr output yields a semver-looking token
// wins. This mirrors how many CLI tools differ on `--version` vs `version`.
var versionFlags = [][]string{
	{"--version"},
	{"version"},
	{"-version"},
}

var versionToken = regexp.MustCompile(`v?\d+\.\d+(\.\d+)?`)

// Validate checks that the named tool is on PATH and that its reported
// version satisfies Version, a constraint of the form ">=1.2.0",
// "<=1.2.0", "==1.2.0" or a bare "1.2.0" (treated as ">=").
//
// A missing constraint only checks presence on PATH.
func (t *ToolRequirement) Validate(ctx context.Context) error {
	resolved, err := exec.LookPath(t.Name)
	if err != nil {
		return errors.Annotate(err, "tool %q is not on PATH", t.Name).Tag(corerr.ToolValidation).Err()
	}
	if t.Version == "" {
		return nil
	}

	op, want := parseConstraint(t.Version)
	if !semver.IsValid(want) {
		return errors.Reason("tool %q: bad version constraint %q", t.Name, t.Version).Tag(corerr.ToolValidation).Err()
	}

	got, err := detectVersion(ctx, resolved)
	if err != nil {
		return errors.Annotate(err, "tool %q: could not determine installed version", t.Name).Tag(corerr.ToolValidation).Err()
	}

	cmp := semver.Compare(got, want)
	ok := false
	switch op {
	case ">=":
		ok = cmp >= 0
	case "<=":
		ok = cmp <= 0
	case "==":
		ok = cmp == 0
	}
	if !ok {
		return errors.Reason("tool %q: installed version %s does not satisfy %s%s", t.Name, got, op, want).Tag(corerr.ToolValidation).Err()
	}
	return nil
}

// parseConstraint splits a leading comparator off a version constraint,
// defaulting to ">=" when none is present, and normalizes it to the "vX.Y.Z"
// form semver.Compare expects.
func parseConstraint(raw string) (op, ver string) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, ">="):
		op, ver = ">=", raw[2:]
	case strings.HasPrefix(raw, "<="):
		op, ver = "<=", raw[2:]
	case strings.HasPrefix(raw, "=="):
		op, ver = "==", raw[2:]
	default:
		op, ver = ">=", raw
	}
	ver = strings.TrimSpace(ver)
	if !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return op, ver
}

// detectVersion runs resolved with each of versionFlags until one yields a
// parseable semver token in its combined output.
func detectVersion(ctx context.Context, resolved string) (string, error) {
	var lastErr error
	for _, args := range versionFlags {
		out, err := exec.CommandContext(ctx, resolved, args...).CombinedOutput()
		if err != nil {
			lastErr = err
			continue
		}
		if m := versionToken.FindString(string(out)); m != "" {
			if !strings.HasPrefix(m, "v") {
				m = "v" + m
			}
			return m, nil
		}
	}
	if lastErr != nil {
		return "", errors.Annotate(lastErr, "no version flag succeeded").Err()
	}
	return "", fmt.Errorf("no version token found in output of any version flag")
}

// ValidateAll runs Validate for every tool, collecting every violation
// rather than stopping at the first (so a manifest author sees the whole
// picture in one run).
func (t *ToolsOp) ValidateAll(ctx context.Context) error {
	var msgs []string
	for _, tool := range t.Tools {
		if err := tool.Validate(ctx); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return errors.Reason("tool validation failed:\n  %s", strings.Join(msgs, "\n  ")).Tag(corerr.ToolValidation).Err()
}
