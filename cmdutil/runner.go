// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"sync"

	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/shutdown"
	"v.io/x/lib/cmdline"
)

var runnerOnce sync.Once

// RunnerFunc is an adapter that turns regular functions into cmdline.Runners.
type RunnerFunc func(*cmdline.Env, []string) error

// Run implements the cmdline.Runner interface method by calling f(env, args).
// Before the first command runs, core dumps are disabled so that key material
// cannot leak into a core file. Shutdown hooks run after f returns.
func (f RunnerFunc) Run(env *cmdline.Env, args []string) error {
	runnerOnce.Do(func() {
		if err := DisableCoreDumps(); err != nil {
			log.Debug.Printf("cmdutil: disable core dumps: %v", err)
		}
	})
	defer shutdown.Run()
	return f(env, args)
}
