// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tdf

import (
	"bytes"
	"encoding/binary"
)

// Writer is the encoding counterpart of Cursor. It is used to build
// payloads, e.g. for test vaults.
type Writer struct {
	buf bytes.Buffer
}

// WriteU32 appends a big-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], v)
	w.buf.Write(p[:])
}

// WriteI32 appends a big-endian int32.
func (w *Writer) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

// WriteU64 appends a big-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var p [8]byte
	binary.BigEndian.PutUint64(p[:], v)
	w.buf.Write(p[:])
}

// WriteBlob appends p prefixed by its length.
func (w *Writer) WriteBlob(p []byte) {
	w.WriteI32(int32(len(p)))
	w.buf.Write(p)
}

// WriteRaw appends p without a length prefix.
func (w *Writer) WriteRaw(p []byte) {
	w.buf.Write(p)
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}
