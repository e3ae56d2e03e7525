// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package retry bounds and paces retries of remote vault reads.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/log"
)

// A Policy decides whether another try is permitted, and after how
// long. Callers normally go through Wait or Do rather than calling
// Retry directly.
type Policy interface {
	// Retry is called with the number of failed tries so far.
	Retry(retry int) (bool, time.Duration)
}

// Wait consults policy at the given retry number and sleeps until the
// next try is due. It fails with TooManyTries when the policy gives up,
// with Timeout when ctx's deadline would pass before the next try, and
// with ctx's error when ctx is done first.
func Wait(ctx context.Context, policy Policy, retry int) error {
	keepgoing, wait := policy.Retry(retry)
	if !keepgoing {
		return errors.E(errors.TooManyTries, fmt.Sprintf("gave up after %d tries", retry))
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return errors.E(errors.Timeout, "ran out of time while waiting for retry")
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, fails with an error that is not
// temporary, or policy stops permitting retries. When policy gives up,
// the last error of fn is returned as a fatal TooManyTries error. When
// ctx is done or its deadline would pass first, the error carries
// ctx's kind.
func Do(ctx context.Context, policy Policy, what string, fn func() error) error {
	for retry := 0; ; retry++ {
		err := fn()
		if err == nil || !errors.IsTemporary(err) {
			return err
		}
		log.Debug.Printf("retry: %s: try %d: %v", what, retry+1, err)
		werr := Wait(ctx, policy, retry)
		switch {
		case werr == nil:
		case errors.Is(errors.TooManyTries, werr):
			return errors.E(errors.TooManyTries, errors.Fatal, what, fmt.Sprintf("gave up after %d tries", retry+1), err)
		default:
			return errors.E(what, fmt.Sprintf("(last error: %v)", err), werr)
		}
	}
}

type backoff struct {
	factor       float64
	initial, max time.Duration
}

// Backoff returns a Policy that waits initial before the first retry
// and multiplies the wait by factor on each subsequent retry, capped
// at max.
func Backoff(initial, max time.Duration, factor float64) Policy {
	return &backoff{
		initial: initial,
		max:     max,
		factor:  factor,
	}
}

func (b *backoff) Retry(retries int) (bool, time.Duration) {
	wait := float64(b.initial) * math.Pow(b.factor, float64(retries))
	if wait > float64(b.max) || math.IsInf(wait, 0) || math.IsNaN(wait) {
		return true, b.max
	}
	return true, time.Duration(wait)
}

type maxtries struct {
	policy Policy
	max    int
}

// MaxTries returns a policy that permits at most n tries in total,
// deferring to policy for the wait. A nil policy retries immediately.
func MaxTries(policy Policy, n int) Policy {
	if n < 1 {
		panic("retry.MaxTries: n < 1")
	}
	return &maxtries{policy, n - 1}
}

func (m *maxtries) Retry(retries int) (bool, time.Duration) {
	if retries >= m.max {
		return false, 0
	}
	if m.policy != nil {
		return m.policy.Retry(retries)
	}
	return true, 0
}
