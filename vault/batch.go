// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault

import (
	"context"
	"fmt"

	"github.com/gobwas/glob"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/traverse"
	"github.com/grailbio/tdvault/vaultfs"
)

// Holding areas into which callers sort processed vaults. Discover
// skips them.
const (
	SuccessDir      = "success"
	UnsuccessfulDir = "unsuccessful"
)

// BatchOptions configures RecoverBatch.
type BatchOptions struct {
	Options
	// Match is a glob over vault base names; empty matches all.
	Match string
	// Vaults bounds the number of vaults recovered concurrently.
	// Zero selects traverse.Parallel.
	Vaults int
	// FS configures how vault roots are opened.
	FS vaultfs.Options
	// Reporter, if set, receives progress events.
	Reporter traverse.Reporter
}

// Result is the outcome of recovering one vault of a batch.
type Result struct {
	Path     string
	Accounts []Account
	// Err is set when the vault as a whole failed.
	Err error
}

// OK tells whether at least one account of the vault was recovered.
func (r Result) OK() bool {
	if r.Err != nil {
		return false
	}
	for _, a := range r.Accounts {
		if a.OK() {
			return true
		}
	}
	return false
}

// RecoverBatch recovers the vaults at roots whose base names match
// opts.Match, and returns one result per matching vault in the order
// of roots. A failing vault does not affect the others. Vaults not
// started before ctx is done fail with Canceled. An error is returned
// only for an invalid Match pattern.
func RecoverBatch(ctx context.Context, roots []string, opts BatchOptions) ([]Result, error) {
	selected := roots
	if opts.Match != "" {
		g, err := glob.Compile(opts.Match)
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("match pattern %q", opts.Match), err)
		}
		selected = nil
		for _, root := range roots {
			if g.Match(vaultfs.Base(root)) {
				selected = append(selected, root)
			} else {
				log.Debug.Printf("vault %s: skipped by pattern %q", root, opts.Match)
			}
		}
	}
	results := make([]Result, len(selected))
	t := traverse.Limit(opts.Vaults)
	t.Reporter = opts.Reporter
	err := t.Each(len(selected), func(i int) error {
		r := &results[i]
		r.Path = selected[i]
		if err := ctx.Err(); err != nil {
			r.Err = errors.E(r.Path, "not started", err)
			return nil
		}
		fs, err := vaultfs.Open(ctx, r.Path, opts.FS)
		if err != nil {
			r.Err = errors.E(r.Path, err)
			return nil
		}
		r.Accounts, err = Recover(ctx, fs, opts.Options)
		if err != nil {
			r.Err = errors.E(r.Path, err)
		}
		return nil
	})
	return results, err
}

// Discover returns the vaults directly under root, a local directory
// or s3:// prefix, excluding the holding areas.
func Discover(ctx context.Context, root string, opts BatchOptions) ([]string, error) {
	paths, err := vaultfs.List(ctx, root, KeyFile(opts.dataName()), opts.FS)
	if err != nil {
		return nil, err
	}
	vaults := paths[:0]
	for _, p := range paths {
		switch vaultfs.Base(p) {
		case SuccessDir, UnsuccessfulDir:
			continue
		}
		vaults = append(vaults, p)
	}
	return vaults, nil
}
