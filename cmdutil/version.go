// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmdutil

import (
	"fmt"
	"io"
	"runtime"

	"v.io/x/lib/cmdline"
)

var (
	version = "(missing)"
	tags    = ""
)

func init() {
	s := fmt.Sprintf("os=%s; arch=%s; %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
	if tags == "" {
		tags = s
		return
	}
	tags = tags + "; " + s
}

// WriteVersion writes "<prefix>/<version> (<tag1>; <tag2>; ...)" to w.
func WriteVersion(w io.Writer, prefix string) {
	fmt.Fprintf(w, "%s/%v (%v)\n", prefix, version, tags)
}

// CreateVersionCommand creates a cmdline 'subcommand' to display version
// information. The version and tags are set at build time using something
// like:
//
//	go build -ldflags \
//	 "-X github.com/grailbio/tdvault/cmdutil.version=$version \
//	  -X github.com/grailbio/tdvault/cmdutil.tags=$tags"
func CreateVersionCommand(name, prefix string) *cmdline.Command {
	return &cmdline.Command{
		Runner: RunnerFunc(func(env *cmdline.Env, _ []string) error {
			WriteVersion(env.Stdout, prefix)
			return nil
		}),
		Name:  name,
		Short: "Display version information",
	}
}
