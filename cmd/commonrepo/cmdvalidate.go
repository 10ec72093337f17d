// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/pipeline"
)

var cmdValidate = &subcommands.Command{
	UsageLine: "validate",
	ShortDesc: "parse the manifest, discover the tree, and check for cycles",
	LongDesc: `Runs discovery and ordering (phases 1 and 3) only: parses the root
manifest, fetches every inherited repository, detects inheritance cycles,
and computes the operation order. Never processes content and never
writes anything, so it is safe to run against an untrusted manifest before
committing to a full sync.`,
	CommandRun: func() subcommands.CommandRun {
		c := &cmdValidateRun{}
		c.init(c.exec, false)
		return c
	},
}

type cmdValidateRun struct {
	commandBase
}

type validateOutput struct {
	OK       bool     `json:"ok"`
	NodeKeys []string `json:"node_keys"`
}

func (c *cmdValidateRun) exec(ctx context.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.Annotate(err, "getting working directory").Err()
	}
	opts, err := c.buildOptions(wd)
	if err != nil {
		return err
	}

	_, seq, _, err := pipeline.Discover(ctx, opts)
	if err != nil {
		return err
	}

	out := validateOutput{OK: true}
	for _, n := range seq {
		out.NodeKeys = append(out.NodeKeys, n.Key())
	}
	logging.Infof(ctx, "manifest is valid: %d nodes, no cycles", len(seq))
	return c.writeJSONOutput(&out)
}
