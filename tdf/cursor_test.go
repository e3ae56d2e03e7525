// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tdf_test

import (
	"io"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/tdf"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestCursorIntegers(t *testing.T) {
	var w tdf.Writer
	w.WriteU32(0xdeadbeef)
	w.WriteI32(-2)
	w.WriteU64(0x0102030405060708)
	c := tdf.NewCursor(w.Bytes())

	u, err := c.ReadU32()
	assert.NoError(t, err)
	expect.EQ(t, u, uint32(0xdeadbeef))
	i, err := c.ReadI32()
	assert.NoError(t, err)
	expect.EQ(t, i, int32(-2))
	v, err := c.ReadU64()
	assert.NoError(t, err)
	expect.EQ(t, v, uint64(0x0102030405060708))
	expect.EQ(t, c.Len(), 0)

	_, err = c.ReadU32()
	expect.True(t, errors.Is(errors.TruncatedInput, err), "%v", err)
}

func TestCursorBigEndian(t *testing.T) {
	c := tdf.NewCursor([]byte{0, 0, 0, 0x4b, 0xff, 0xff, 0xff, 0xff})
	u, err := c.ReadU32()
	assert.NoError(t, err)
	expect.EQ(t, u, uint32(0x4b))
	i, err := c.ReadI32()
	assert.NoError(t, err)
	expect.EQ(t, i, int32(-1))
}

func TestCursorReadExact(t *testing.T) {
	c := tdf.NewCursor([]byte("abcdef"))
	p, err := c.ReadExact(2)
	assert.NoError(t, err)
	expect.EQ(t, string(p), "ab")
	p, err = c.ReadExact(-5)
	assert.NoError(t, err)
	expect.EQ(t, len(p), 0)
	_, err = c.ReadExact(5)
	expect.True(t, errors.Is(errors.TruncatedInput, err), "%v", err)
	p, err = c.ReadExact(4)
	assert.NoError(t, err)
	expect.EQ(t, string(p), "cdef")
}

func TestCursorBlobs(t *testing.T) {
	var w tdf.Writer
	w.WriteBlob([]byte("salt"))
	w.WriteBlob(nil)
	w.WriteI32(-1) // null array
	w.WriteBlob([]byte("info"))
	c := tdf.NewCursor(w.Bytes())

	for _, want := range []string{"salt", "", "", "info"} {
		b, err := c.ReadBlob()
		assert.NoError(t, err)
		expect.EQ(t, string(b), want)
	}
	_, err := c.ReadBlob()
	expect.EQ(t, err, io.EOF)
	_, err = c.ReadBlob()
	expect.EQ(t, err, io.EOF)
}

func TestCursorTruncatedBlob(t *testing.T) {
	for _, data := range [][]byte{
		{0, 0},                // partial length
		{0, 0, 0, 8, 1, 2, 3}, // short body
		{0, 0, 0, 1},          // missing body
	} {
		_, err := tdf.NewCursor(data).ReadBlob()
		expect.True(t, err != io.EOF, "%v", data)
		expect.True(t, errors.Is(errors.TruncatedInput, err), "%v: %v", data, err)
	}
}

func TestCursorWipe(t *testing.T) {
	buf := []byte("plaintext")
	c := tdf.NewCursor(buf)
	c.Wipe()
	expect.EQ(t, c.Len(), 0)
	expect.EQ(t, string(buf), string(make([]byte, len(buf))))
}

// TestCursorFuzz ensures that arbitrary input never panics the
// cursor and that every failure is either io.EOF or TruncatedInput.
func TestCursorFuzz(t *testing.T) {
	fz := fuzz.New().NilChance(0).NumElements(0, 64)
	for i := 0; i < 2000; i++ {
		var data []byte
		fz.Fuzz(&data)
		c := tdf.NewCursor(data)
		for c.Len() > 0 {
			_, err := c.ReadBlob()
			if err != nil {
				expect.True(t, err == io.EOF || errors.Is(errors.TruncatedInput, err), "%v", err)
				break
			}
		}
	}
}
