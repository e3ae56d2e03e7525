// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package traverse runs bounded parallel fan-outs, such as the
// accounts of a vault or the vaults of a batch.
package traverse

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/log"
)

// A T is a traverser: it invokes a function over the indices of a
// collection with bounded concurrency.
type T struct {
	// Limit is the maximum number of concurrent invocations per
	// traversal. Zero denotes no limit.
	Limit int
	// Reporter, if set, receives progress events for each traversal.
	Reporter Reporter
}

// Limit returns a traverser with limit n. Non-positive n yields
// Parallel.
func Limit(n int) T {
	if n <= 0 {
		return Parallel
	}
	return T{Limit: n}
}

// Parallel limits concurrency to a small multiple of the available
// processors. Key derivation is CPU bound, so this is the default for
// vault recovery.
var Parallel = T{Limit: 2 * runtime.GOMAXPROCS(0)}

// Each invokes fn(i) for 0 <= i < n. It returns after all started
// invocations have completed. After the first failure no further
// invocations are started and that failure is returned. Panics in fn
// are propagated to the caller of Each.
func (t T) Each(n int, fn func(i int) error) error {
	if n <= 0 {
		return nil
	}
	if t.Reporter != nil {
		t.Reporter.Init(n)
		defer t.Reporter.Complete()
	}
	workers := t.Limit
	if workers <= 0 || workers > n {
		workers = n
	}
	var (
		once errors.Once
		wg   sync.WaitGroup
		next int64
	)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for once.Err() == nil {
				i := int(atomic.AddInt64(&next, 1) - 1)
				if i >= n {
					return
				}
				if t.Reporter != nil {
					t.Reporter.Begin(i)
				}
				once.Set(apply(fn, i))
				if t.Reporter != nil {
					t.Reporter.End(i)
				}
			}
		}()
	}
	wg.Wait()
	err := once.Err()
	if perr, ok := err.(panicErr); ok {
		panic(fmt.Sprintf("traverse child: %v\n%s", perr.v, string(perr.stack)))
	}
	return err
}

// Each performs unbounded traversal over n elements. It is a
// shorthand for (T{}).Each.
func Each(n int, fn func(i int) error) error {
	return T{}.Each(n, fn)
}

func apply(fn func(i int) error, i int) (err error) {
	defer func() {
		if perr := recover(); perr != nil {
			log.Debug.Printf("traverse: task %d panicked: %v", i, perr)
			err = panicErr{perr, debug.Stack()}
		}
	}()
	return fn(i)
}

type panicErr struct {
	v     interface{}
	stack []byte
}

func (p panicErr) Error() string { return fmt.Sprint(p.v) }
