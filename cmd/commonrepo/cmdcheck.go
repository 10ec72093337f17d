// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/errors"
)

// cmdCheck documents, rather than implements, the drift-report collaborator
// spec.md §1 places out of scope: comparing a project's current state
// against what a sync would produce, without writing anything, and
// summarizing what changed. The core pipeline this repository implements
// exposes everything such a tool would need (Run without Emit, diffed
// against a fresh local load) but does not itself compute or format a
// diff.
var cmdCheck = &subcommands.Command{
	UsageLine: "check",
	ShortDesc: "(not implemented) report drift between local files and a sync",
	LongDesc: `check is intentionally unimplemented.

Computing and formatting drift between the working directory and what a
sync would produce is an external collaborator per this tool's own
specification (non-goal: "does not attempt three-way conflict resolution
beyond the defined merge semantics"; drift reporting is listed as an
out-of-scope collaborator alongside version comparison for update
commands). Build it on top of "commonrepo sync -dry-run -json-output",
which already exposes the computed filesystem without writing it.`,
	CommandRun: func() subcommands.CommandRun {
		c := &cmdCheckRun{}
		c.init(c.exec, false)
		return c
	},
}

type cmdCheckRun struct {
	commandBase
}

func (c *cmdCheckRun) exec(ctx context.Context) error {
	return errors.Reason("`commonrepo check` is not implemented; see `commonrepo help check`").Tag(isCLIError).Err()
}
