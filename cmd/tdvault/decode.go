// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/netip"
	"strconv"

	"github.com/grailbio/tdvault/cmdutil"
	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/secret"
	"github.com/grailbio/tdvault/session"
	"github.com/grailbio/tdvault/vault"
	"v.io/x/lib/cmdline"
)

func newCmdDecode() *cmdline.Command {
	return &cmdline.Command{
		Runner:   cmdutil.RunnerFunc(runDecode),
		Name:     "decode",
		Short:    "Describe session tokens",
		ArgsName: "<token>...",
		Long: `
Decode prints the datacenter, endpoint and a fingerprint of the authorization
key of each session token. The key itself is never printed.
`,
	}
}

func runDecode(env *cmdline.Env, args []string) error {
	if len(args) == 0 {
		return env.UsageErrorf("no tokens given")
	}
	for _, tok := range args {
		s, err := session.Decode(tok)
		if err != nil {
			return err
		}
		known := ""
		if id, ok := dc.Production.ByAddr(s.Addr); !ok || id != int(s.DC) {
			known = " (not in the production table)"
		}
		fmt.Fprintf(env.Stdout, "dc %d %v key %s%s\n",
			s.DC, netip.AddrPortFrom(s.Addr, s.Port), secret.Fingerprint(s.Key[:]), known)
	}
	return nil
}

var filenameDataFlag string

func newCmdFilename() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner:   cmdutil.RunnerFunc(runFilename),
		Name:     "filename",
		Short:    "Print the account file names of account indices",
		ArgsName: "<index>...",
	}
	cmd.Flags.StringVar(&filenameDataFlag, "data", vault.DefaultDataName, "Data name of the profile.")
	return cmd
}

func runFilename(env *cmdline.Env, args []string) error {
	if len(args) == 0 {
		return env.UsageErrorf("no indices given")
	}
	for _, arg := range args {
		i, err := strconv.Atoi(arg)
		if err != nil || i < 0 {
			return env.UsageErrorf("invalid index %q", arg)
		}
		fmt.Fprintf(env.Stdout, "%d %s\n", i, vault.AccountFile(filenameDataFlag, i))
	}
	return nil
}
