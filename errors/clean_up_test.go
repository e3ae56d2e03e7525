// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanUp(t *testing.T) {
	const (
		closeMsg  = "close [seuozr]"
		returnMsg = "return [mntbnb]"
	)
	run := func(closeErr, returnErr error) error {
		return func() (err error) {
			defer CleanUp(func() error { return closeErr }, &err)
			return returnErr
		}()
	}

	assert.NoError(t, run(nil, nil))
	assert.Equal(t, closeMsg, run(errors.New(closeMsg), nil).Error())
	assert.Equal(t, returnMsg, run(nil, errors.New(returnMsg)).Error())

	err := run(errors.New(closeMsg), E(IntegrityMismatch, returnMsg))
	assert.Contains(t, err.Error(), returnMsg)
	assert.Contains(t, err.Error(), closeMsg)
	assert.True(t, Is(IntegrityMismatch, err))
}
