// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"infra.chromium.org/commonrepo/internal/pipeline"
)

var cmdSync = &subcommands.Command{
	UsageLine: "sync [-out DIR]",
	ShortDesc: "run the full composition pipeline and write the result",
	LongDesc: `Runs all six phases (discovery, processing, ordering, composition,
local merge, emit) and materializes the final filesystem under -out (the
working directory by default). Pass -dry-run to compute the result without
writing anything.`,
	CommandRun: func() subcommands.CommandRun {
		c := &cmdSyncRun{}
		c.init(c.exec, true)
		c.Flags.StringVar(&c.out, "out", "", "Output root directory (defaults to the working directory).")
		return c
	},
}

type cmdSyncRun struct {
	commandBase
	out string
}

type syncOutput struct {
	FilesWritten int      `json:"files_written"`
	TotalBytes   int64    `json:"total_bytes"`
	OutputRoot   string   `json:"output_root"`
	DryRun       bool     `json:"dry_run"`
	NodesVisited int      `json:"nodes_visited"`
	NodeKeys     []string `json:"node_keys"`
}

func (c *cmdSyncRun) exec(ctx context.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.Annotate(err, "getting working directory").Err()
	}
	outRoot := c.out
	if outRoot == "" {
		outRoot = wd
	}

	opts, err := c.buildOptions(wd)
	if err != nil {
		return err
	}
	result, err := pipeline.Run(ctx, opts)
	if err != nil {
		return err
	}

	out := syncOutput{
		OutputRoot:   outRoot,
		DryRun:       c.dryRun,
		NodesVisited: len(result.Order),
	}
	for _, n := range result.Order {
		out.NodeKeys = append(out.NodeKeys, n.Key())
	}
	out.FilesWritten = result.FS.FS.Len()
	for _, e := range result.FS.FS.Files() {
		out.TotalBytes += int64(len(e.File.Content))
	}
	size := humanize.Bytes(uint64(out.TotalBytes))

	if c.dryRun {
		logging.Infof(ctx, "dry-run: would write %d files (%s) under %s", out.FilesWritten, size, outRoot)
	} else {
		if err := pipeline.Emit(result, outRoot); err != nil {
			return err
		}
		logging.Infof(ctx, "wrote %d files (%s) under %s", out.FilesWritten, size, outRoot)
	}

	return c.writeJSONOutput(&out)
}
