// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package traverse

import (
	"sync"
	"time"

	"github.com/grailbio/tdvault/log"
)

// A Reporter receives events from an ongoing traversal.
type Reporter interface {
	// Init is called before the first task with the number of tasks.
	Init(n int)
	// Complete is called after the traversal has completed.
	Complete()

	// Begin is called when task i is begun.
	Begin(i int)
	// End is called when task i has completed.
	End(i int)
}

// NewLogReporter returns a reporter that logs the number of queued,
// running and completed tasks at debug level, and a summary at info
// level when the traversal completes.
func NewLogReporter(name string) Reporter {
	return &logReporter{name: name}
}

type logReporter struct {
	name                  string
	mu                    sync.Mutex
	start                 time.Time
	queued, running, done int
}

func (r *logReporter) Init(n int) {
	r.mu.Lock()
	r.start = time.Now()
	r.queued = n
	r.mu.Unlock()
}

func (r *logReporter) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.Printf("%s: %d done in %v", r.name, r.done, time.Since(r.start).Round(time.Millisecond))
}

func (r *logReporter) Begin(i int) {
	r.mu.Lock()
	r.queued--
	r.running++
	r.update()
	r.mu.Unlock()
}

func (r *logReporter) End(i int) {
	r.mu.Lock()
	r.running--
	r.done++
	r.update()
	r.mu.Unlock()
}

func (r *logReporter) update() {
	log.Debug.Printf("%s: (queued: %d -> running: %d -> done: %d)", r.name, r.queued, r.running, r.done)
}
