// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmdutil provides utility routines for implementing command line
// tools.
package cmdutil

import (
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/tdvault/shutdown"
)

// Fatalf prints the message to stderr with no prefix and no timestamp, runs
// shutdown hooks and exits.
func Fatalf(format string, args ...interface{}) {
	Fatal(fmt.Sprintf(format, args...))
}

// Fatal prints the message to stderr with no prefix and no timestamp, runs
// shutdown hooks and exits.
func Fatal(args ...interface{}) {
	m := fmt.Sprint(args...)
	fmt.Fprint(os.Stderr, strings.TrimSuffix(m, "\n")+"\n")
	shutdown.Run()
	os.Exit(1)
}
