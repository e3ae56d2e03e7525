// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/tdvault/cmdutil"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/secret"
	"github.com/grailbio/tdvault/shutdown"
	"github.com/grailbio/tdvault/traverse"
	"github.com/grailbio/tdvault/vault"
	"github.com/grailbio/tdvault/vaultfs"
	"golang.org/x/term"
	"v.io/x/lib/cmdline"
)

// passcodeEnv names the environment variable consulted when no
// passcode flag is given.
const passcodeEnv = "TDVAULT_PASSCODE"

var (
	jsonFlag           bool
	sortFlag           string
	passcodeFlag       string
	passcodePromptFlag bool
	dataFlag           string
	parallelismFlag    int
	vaultsFlag         int
	matchFlag          string
	lenientDigestFlag  bool
	discoverFlag       bool
	progressFlag       bool
)

func newCmdRecover() *cmdline.Command {
	cmd := &cmdline.Command{
		Runner:   cmdutil.RunnerFunc(runRecover),
		Name:     "recover",
		Short:    "Recover sessions from vaults",
		ArgsName: "<vault>...",
		Long: `
Recover decrypts each vault, a local tdata directory or an s3://bucket/prefix,
and prints one session token per recovered account. Vaults are never modified
unless -sort is given, in which case local vaults are moved into the success or
unsuccessful directory under the -sort directory after processing.

The passcode is taken from -passcode, from an interactive prompt with
-passcode-prompt, or from the ` + passcodeEnv + ` environment variable.
`,
	}
	cmd.Flags.BoolVar(&jsonFlag, "json", false, "Print one JSON object per account.")
	cmd.Flags.StringVar(&sortFlag, "sort", "", "Move processed local vaults into DIR/success or DIR/unsuccessful.")
	cmd.Flags.StringVar(&passcodeFlag, "passcode", "", "Local passcode of the vaults.")
	cmd.Flags.BoolVar(&passcodePromptFlag, "passcode-prompt", false, "Read the passcode from the terminal.")
	cmd.Flags.StringVar(&dataFlag, "data", vault.DefaultDataName, "Data name of the profile to recover.")
	cmd.Flags.IntVar(&parallelismFlag, "parallelism", 0, "Accounts recovered concurrently per vault; 0 selects a default.")
	cmd.Flags.IntVar(&vaultsFlag, "vaults", 0, "Vaults recovered concurrently; 0 selects a default.")
	cmd.Flags.StringVar(&matchFlag, "match", "", "Glob over vault base names; only matching vaults are recovered.")
	cmd.Flags.BoolVar(&lenientDigestFlag, "lenient-digest", false, "Ignore container digest mismatches.")
	cmd.Flags.BoolVar(&discoverFlag, "discover", false, "Treat arguments as directories holding vaults.")
	cmd.Flags.BoolVar(&progressFlag, "progress", false, "Log batch progress.")
	return cmd
}

func runRecover(env *cmdline.Env, args []string) error {
	if len(args) == 0 {
		return env.UsageErrorf("no vaults given")
	}
	ctx := context.Background()
	passcode, err := readPasscode(env)
	if err != nil {
		return err
	}
	shutdown.Register(func() { secret.Zero(passcode) })

	opts := vault.BatchOptions{
		Options: vault.Options{
			Passcode:    passcode,
			DataName:    dataFlag,
			Parallelism: parallelismFlag,
		},
		Match:  matchFlag,
		Vaults: vaultsFlag,
	}
	opts.Container.LenientDigest = lenientDigestFlag
	if progressFlag {
		opts.Reporter = traverse.NewLogReporter("vaults")
	}

	roots := args
	if discoverFlag {
		roots = nil
		for _, arg := range args {
			found, err := vault.Discover(ctx, arg, opts)
			if err != nil {
				return err
			}
			log.Debug.Printf("%s: %d vaults", arg, len(found))
			roots = append(roots, found...)
		}
	}
	results, err := vault.RecoverBatch(ctx, roots, opts)
	if err != nil {
		return err
	}

	var recovered, failed int
	for _, r := range results {
		if err := printResult(env.Stdout, r); err != nil {
			return err
		}
		if r.Err != nil {
			failed++
			cmdutil.WriteWrappedMessage(env.Stderr, fmt.Sprintf("%v\n", r.Err))
		}
		for _, a := range r.Accounts {
			if a.OK() {
				recovered++
			} else {
				log.Error.Printf("%s: account %d: %v", r.Path, a.Index, a.Err)
			}
		}
		if sortFlag != "" {
			if err := sortVault(r, sortFlag); err != nil {
				log.Error.Printf("%s: %v", r.Path, err)
			}
		}
	}
	log.Printf("recovered %d sessions from %d vaults, %d vaults failed", recovered, len(results), failed)
	if recovered == 0 && len(results) > 0 {
		return errors.E("no sessions recovered")
	}
	return nil
}

func readPasscode(env *cmdline.Env) ([]byte, error) {
	switch {
	case passcodeFlag != "":
		return []byte(passcodeFlag), nil
	case passcodePromptFlag:
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return nil, errors.E(errors.Invalid, "-passcode-prompt requires a terminal")
		}
		fmt.Fprint(env.Stderr, "Passcode: ")
		p, err := term.ReadPassword(fd)
		fmt.Fprintln(env.Stderr)
		if err != nil {
			return nil, errors.E("read passcode", err)
		}
		return p, nil
	case env.Vars[passcodeEnv] != "":
		return []byte(env.Vars[passcodeEnv]), nil
	}
	return nil, nil
}

type accountLine struct {
	Path   string `json:"path"`
	Index  int    `json:"index"`
	File   string `json:"file,omitempty"`
	UserID uint64 `json:"user_id,omitempty"`
	DC     int    `json:"dc,omitempty"`
	Token  string `json:"token,omitempty"`
	Error  string `json:"error,omitempty"`
	Kind   string `json:"kind,omitempty"`
}

func printResult(w io.Writer, r vault.Result) error {
	if !jsonFlag {
		for _, a := range r.Accounts {
			if a.OK() {
				if _, err := fmt.Fprintln(w, a.Token); err != nil {
					return err
				}
			}
		}
		return nil
	}
	enc := json.NewEncoder(w)
	if r.Err != nil {
		return enc.Encode(accountLine{Path: r.Path, Index: -1, Error: r.Err.Error(), Kind: errors.KindOf(r.Err).Name()})
	}
	for _, a := range r.Accounts {
		line := accountLine{Path: r.Path, Index: a.Index, File: a.File}
		if a.OK() {
			line.UserID, line.DC, line.Token = a.UserID, a.DC, a.Token
		} else {
			line.Error, line.Kind = a.Err.Error(), errors.KindOf(a.Err).Name()
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// sortVault moves a local vault into the success or unsuccessful
// holding area under dir.
func sortVault(r vault.Result, dir string) error {
	if _, _, ok := vaultfs.ParseURL(r.Path); ok {
		return errors.E(errors.NotAllowed, "-sort applies to local vaults only")
	}
	if errors.Is(errors.NotExist, r.Err) && !exists(r.Path) {
		return nil
	}
	area := vault.UnsuccessfulDir
	if r.OK() {
		area = vault.SuccessDir
	}
	dst := filepath.Join(dir, area)
	if err := os.MkdirAll(dst, 0700); err != nil {
		return errors.E(err)
	}
	dst = filepath.Join(dst, filepath.Base(strings.TrimSuffix(r.Path, string(filepath.Separator))))
	if exists(dst) {
		return errors.E(errors.Invalid, fmt.Sprintf("%s already exists", dst))
	}
	if err := os.Rename(r.Path, dst); err != nil {
		return errors.E("move vault", err)
	}
	log.Debug.Printf("%s: moved to %s", r.Path, dst)
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
