// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command tdvault recovers account sessions from Telegram Desktop
// vaults.
//
// Usage:
//
//	tdvault recover [flags] <vault>...
//	tdvault decode <token>...
//	tdvault filename [-data NAME] <index>...
//	tdvault version
package main

import (
	"flag"
	"regexp"

	"github.com/grailbio/tdvault/cmdutil"
	"github.com/grailbio/tdvault/log"
	"v.io/x/lib/cmdline"
)

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "tdvault",
		Short:    "Recover account sessions from Telegram Desktop vaults",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdRecover(),
			newCmdDecode(),
			newCmdFilename(),
			cmdutil.CreateVersionCommand("version", "tdvault"),
		},
	}
}

func main() {
	log.AddFlags(flag.CommandLine)
	cmdline.HideGlobalFlagsExcept(regexp.MustCompile(`^log$`))
	cmdline.Main(newCmdRoot())
}
