// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package log

import (
	"flag"
	"io"
	golog "log"
	"sync/atomic"
)

var golevel atomic.Int32

const (
	Ldate         = golog.Ldate         // the date in the local time zone: 2009/01/23
	Ltime         = golog.Ltime         // the time in the local time zone: 01:23:23
	Lmicroseconds = golog.Lmicroseconds // microsecond resolution: 01:23:23.123123.  assumes Ltime.
	Lshortfile    = golog.Lshortfile    // final file name element and line number: d.go:23
	LstdFlags     = Ldate | Ltime       // initial values for the standard logger
)

// AddFlags registers the -log flag on fs. Commands built on
// v.io/x/lib/cmdline pass their command's flag set.
func AddFlags(fs *flag.FlagSet) {
	fs.Var(new(logFlag), "log", "set log level (off, error, info, debug)")
}

// SetFlags sets the output flags for the Go standard logger.
func SetFlags(flag int) {
	golog.SetFlags(flag)
}

// SetOutput sets the output destination for the Go standard logger.
func SetOutput(w io.Writer) {
	golog.SetOutput(w)
}

// SetPrefix sets the output prefix for the Go standard logger.
func SetPrefix(prefix string) {
	golog.SetPrefix(prefix)
}

// SetLevel sets the log level for the Go standard logger.
// It should be called once at the beginning of a program's main.
func SetLevel(level Level) {
	golevel.Store(int32(level))
}

type logFlag string

func (f logFlag) String() string {
	return Level(golevel.Load()).String()
}

func (f *logFlag) Set(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetLevel(l)
	return nil
}

// Get implements flag.Getter.
func (logFlag) Get() interface{} {
	return Level(golevel.Load())
}

type gologOutputter struct{}

func (gologOutputter) Level() Level { return Level(golevel.Load()) }

func (gologOutputter) Output(calldepth int, level Level, s string) error {
	if Level(golevel.Load()) < level {
		return nil
	}
	return golog.Output(calldepth+1, s)
}
