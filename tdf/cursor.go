// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tdf

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/secret"
)

// Cursor is a one-pass, big-endian reader over an in-memory buffer,
// matching the field-by-field serialization of the desktop client
// (Qt's QDataStream). There is no seeking.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf. The
// cursor does not copy buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Len returns the number of unread bytes.
func (c *Cursor) Len() int {
	return len(c.buf) - c.off
}

// ReadExact returns the next n bytes. Negative n reads nothing. The
// returned slice aliases the cursor's buffer.
func (c *Cursor) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		n = 0
	}
	if c.Len() < n {
		return nil, errors.E(errors.TruncatedInput, errors.Fatal,
			fmt.Sprintf("read %d bytes at offset %d: %d available", n, c.off, c.Len()))
	}
	p := c.buf[c.off : c.off+n]
	c.off += n
	return p, nil
}

// ReadU32 reads a big-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	p, err := c.ReadExact(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// ReadI32 reads a big-endian int32.
func (c *Cursor) ReadI32() (int32, error) {
	v, err := c.ReadU32()
	return int32(v), err
}

// ReadU64 reads a big-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	p, err := c.ReadExact(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// ReadBlob reads a byte array prefixed by its int32 length. Negative
// lengths, which encode a null array, yield an empty blob. ReadBlob
// returns io.EOF, unwrapped, when the cursor is exhausted before the
// length field; any other shortfall is TruncatedInput.
func (c *Cursor) ReadBlob() ([]byte, error) {
	if c.Len() == 0 {
		return nil, io.EOF
	}
	n, err := c.ReadI32()
	if err != nil {
		return nil, err
	}
	return c.ReadExact(int(n))
}

// Wipe zeroes the cursor's buffer and exhausts the cursor. It is used
// on cursors over decrypted plaintext.
func (c *Cursor) Wipe() {
	secret.Zero(c.buf)
	c.off = len(c.buf)
}
