// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"testing"

	"github.com/grailbio/tdvault/errors"
	"github.com/stretchr/testify/require"
)

func TestOnce(t *testing.T) {
	e := errors.Once{}
	require.NoError(t, e.Err())

	e.Set(errors.New("testerror"))
	require.EqualError(t, e.Err(), "testerror")
	e.Set(errors.New("testerror2")) // ignored
	require.EqualError(t, e.Err(), "testerror")
	runtime.GC()
	require.EqualError(t, e.Err(), "testerror")
}

func TestOnceIgnored(t *testing.T) {
	e := errors.Once{Ignored: []error{io.EOF}}
	e.Set(io.EOF)
	require.NoError(t, e.Err())
	e.Set(nil)
	require.NoError(t, e.Err())
}

func TestOnceConcurrent(t *testing.T) {
	var (
		e  errors.Once
		wg sync.WaitGroup
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Set(fmt.Errorf("error %d", i))
		}(i)
	}
	wg.Wait()
	require.Error(t, e.Err())
}

func ExampleOnce() {
	e := errors.Once{}
	fmt.Printf("Error: %v\n", e.Err())
	e.Set(errors.New("test error 0"))
	fmt.Printf("Error: %v\n", e.Err())
	e.Set(errors.New("test error 1"))
	fmt.Printf("Error: %v\n", e.Err())
	// Output:
	// Error: <nil>
	// Error: test error 0
	// Error: test error 0
}
