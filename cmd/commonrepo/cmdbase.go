// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
	"go.chromium.org/luci/common/system/signals"

	"infra.chromium.org/commonrepo/internal/cache"
	"infra.chromium.org/commonrepo/internal/corerr"
	"infra.chromium.org/commonrepo/internal/fetch"
	"infra.chromium.org/commonrepo/internal/pipeline"
)

// execCb is the signature of a function that executes a subcommand.
type execCb func(ctx context.Context) error

// commandBase defines flags common to every subcommand.
type commandBase struct {
	subcommands.CommandRunBase

	exec execCb

	logConfig   logging.Config // -log-* flags
	cacheDir    string         // -cache-dir
	workerLimit int            // -worker-limit
	dryRun      bool           // -dry-run
	jsonOutput  string         // -json-output ("-" for stdout)
}

// init registers the flags shared by every subcommand.
func (c *commandBase) init(exec execCb, wantsDryRun bool) {
	c.exec = exec

	c.logConfig.Level = logging.Info
	c.logConfig.AddFlags(&c.Flags)

	home, _ := homedir.Dir()
	defaultCache := filepath.Join(home, ".cache", "commonrepo")
	c.Flags.StringVar(&c.cacheDir, "cache-dir", defaultCache, "Directory holding the on-disk blob cache of fetched repositories.")
	c.Flags.IntVar(&c.workerLimit, "worker-limit", 8, "Max concurrent fetches per tree level.")
	c.Flags.StringVar(&c.jsonOutput, "json-output", "", `Where to write a JSON summary ("-" for stdout).`)
	if wantsDryRun {
		c.Flags.BoolVar(&c.dryRun, "dry-run", false, "Compute the final filesystem but do not write it to disk.")
	}
}

// ModifyContext implements cli.ContextModificator.
func (c *commandBase) ModifyContext(ctx context.Context) context.Context {
	return c.logConfig.Set(ctx)
}

// Run implements subcommands.CommandRun.
func (c *commandBase) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)

	if len(args) != 0 {
		return handleErr(ctx, errors.Reason("unexpected positional arguments %q", args).Tag(isCLIError).Err())
	}

	ctx, cancel := context.WithCancel(ctx)
	signals.HandleInterrupt(cancel)

	if err := c.exec(ctx); err != nil {
		return handleErr(ctx, err)
	}
	return 0
}

// buildOptions assembles pipeline.Options from the common flags: a git
// fetcher staged through an on-disk blob cache rooted at -cache-dir.
func (c *commandBase) buildOptions(workingDir string) (pipeline.Options, error) {
	blobCache, err := cache.NewDiskBlobCache(c.cacheDir)
	if err != nil {
		return pipeline.Options{}, errors.Annotate(err, "initializing blob cache at %q", c.cacheDir).Tag(isCLIError).Err()
	}
	return pipeline.Options{
		WorkingDir:  workingDir,
		Fetcher:     &fetch.GitFetcher{BlobCache: blobCache},
		BlobCache:   blobCache,
		WorkerLimit: c.workerLimit,
	}, nil
}

// writeJSONOutput writes r as indented JSON to -json-output, if set.
func (c *commandBase) writeJSONOutput(r interface{}) error {
	if c.jsonOutput == "" {
		return nil
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Annotate(err, "marshaling JSON summary").Err()
	}
	b = append(b, '\n')
	if c.jsonOutput == "-" {
		_, err := os.Stdout.Write(b)
		return errors.Annotate(err, "writing JSON summary to stdout").Err()
	}
	return errors.Annotate(os.WriteFile(c.jsonOutput, b, 0o644), "writing %q", c.jsonOutput).Err()
}

// isCLIError tags errors caused by bad CLI flags or invocation.
var isCLIError = errors.BoolTag{Key: errors.NewTagKey("bad CLI invocation")}

func errBadFlag(flag, msg string) error {
	return errors.Reason("bad %q: %s", flag, msg).Tag(isCLIError).Err()
}

// handleErr logs err (if any) and returns the process exit code, per
// spec.md §6.3: 0 on success, 2 on any fatal pipeline or CLI error. Exit
// code 1 is reserved for the out-of-scope sync-check/drift-report
// collaborator (spec.md §1) and is never returned by this binary's own
// commands.
func handleErr(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Contains(err, context.Canceled):
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return 2
	default:
		logging.Errorf(ctx, "%s", err)
		if corerr.CycleDetected.In(err) || corerr.Fetch.In(err) || corerr.Network.In(err) {
			errors.Log(ctx, err)
		}
		return 2
	}
}
