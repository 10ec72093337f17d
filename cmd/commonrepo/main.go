// Copyright 2024 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command commonrepo composes a project's files from a declarative
// manifest that inherits content from remote repositories and merges it
// with the project's own local files.
package main

import (
	"context"
	"os"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/logging/gologger"
)

// Version is the build version, normally stamped at build time.
const Version = "0.1.0"

// UserAgent identifies this tool in log lines and in git operations.
const UserAgent = "commonrepo/" + Version

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "commonrepo",
		Title: "commonrepo: compose project files from inherited and local content",
		Context: func(ctx context.Context) context.Context {
			return gologger.StdConfig.Use(ctx)
		},
		Commands: []*subcommands.Command{
			subcommands.CmdHelp,
			subcommands.Section("Pipeline"),
			cmdSync,
			cmdValidate,
			subcommands.Section("Out of scope (see §1, Non-goals)"),
			cmdCheck,
		},
	}
}

func main() {
	os.Exit(subcommands.Run(getApplication(), nil))
}
