// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tdf reads the framed container files ("TDF$" files) of a
// Telegram Desktop vault and the big-endian field encoding of their
// payloads.
//
// A container is laid out as
//
//	magic[4] = "TDF$"
//	version[4]
//	payload[N]
//	digest[16] = MD5(payload ++ uint32le(N) ++ version ++ magic)
//
// Payloads of the files this module reads hold one or more
// length-prefixed blobs; see Cursor.
package tdf

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/localcrypt"
	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/secret"
)

// Magic is the four-byte marker at the start of every container.
const Magic = "TDF$"

const (
	headerSize = 8
	digestSize = md5.Size
)

// Options controls container validation.
type Options struct {
	// LenientDigest skips the trailing digest comparison, reproducing
	// tools that recompute the digest without checking it. The
	// envelope tag check still guards encrypted payloads.
	LenientDigest bool
}

// Container is a parsed container file.
type Container struct {
	// Version is the client version that wrote the file.
	Version uint32
	// Payload aliases the file contents between header and digest.
	Payload []byte
}

// A FileReader reads whole files by name relative to a vault root.
// vaultfs.FS implementations satisfy it.
type FileReader interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// Parse validates the framing of data and returns its payload.
func Parse(data []byte, opts Options) (Container, error) {
	if len(data) < headerSize {
		return Container{}, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("container is %d bytes, shorter than its header", len(data)))
	}
	magic, version := data[:4], data[4:8]
	if string(magic) != Magic {
		return Container{}, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("bad magic %q", magic))
	}
	rest := data[headerSize:]
	if len(rest) < digestSize {
		return Container{}, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("container has %d bytes after its header, fewer than its digest", len(rest)))
	}
	payload, stored := rest[:len(rest)-digestSize], rest[len(rest)-digestSize:]
	computed := digest(payload, version)
	if !bytes.Equal(computed[:], stored) {
		if !opts.LenientDigest {
			return Container{}, errors.E(errors.CorruptContainer, errors.Fatal,
				fmt.Sprintf("digest %s, computed %s", hex.EncodeToString(stored), hex.EncodeToString(computed[:])))
		}
		log.Debug.Printf("tdf: ignoring digest mismatch (stored %x, computed %x)", stored, computed)
	}
	return Container{
		Version: binary.LittleEndian.Uint32(version),
		Payload: payload,
	}, nil
}

// Marshal frames payload as a container written by the given client
// version.
func Marshal(version uint32, payload []byte) []byte {
	out := make([]byte, 0, headerSize+len(payload)+digestSize)
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, version)
	out = append(out, payload...)
	sum := digest(payload, out[4:8])
	return append(out, sum[:]...)
}

func digest(payload, version []byte) [digestSize]byte {
	h := md5.New()
	h.Write(payload)
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(payload)))
	h.Write(n[:])
	h.Write(version)
	h.Write([]byte(Magic))
	var sum [digestSize]byte
	h.Sum(sum[:0])
	return sum
}

// Open reads and validates the named container and returns a cursor
// over its payload.
func Open(ctx context.Context, fr FileReader, name string, opts Options) (*Cursor, error) {
	data, err := fr.ReadFile(ctx, name)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("read %s", name), err)
	}
	c, err := Parse(data, opts)
	if err != nil {
		return nil, errors.E(name, err)
	}
	log.Debug.Printf("tdf: %s: version %d, %d payload bytes", name, c.Version, len(c.Payload))
	return NewCursor(c.Payload), nil
}

// OpenEncrypted opens the named container, reads its single encrypted
// blob and decrypts it with key. The returned cursor reads the
// plaintext and should be wiped after use.
func OpenEncrypted(ctx context.Context, fr FileReader, name string, key *secret.Key, opts Options) (*Cursor, error) {
	c, err := Open(ctx, fr, name, opts)
	if err != nil {
		return nil, err
	}
	return Decrypt(c, name, key)
}

// Decrypt reads the next blob from c and decrypts it with key; name
// annotates errors.
func Decrypt(c *Cursor, name string, key *secret.Key) (*Cursor, error) {
	blob, err := c.ReadBlob()
	if err != nil {
		if err == io.EOF {
			err = errors.E(errors.TruncatedInput, errors.Fatal, "missing encrypted blob")
		}
		return nil, errors.E(name, err)
	}
	plaintext, err := localcrypt.Decrypt(key.Bytes(), blob)
	if err != nil {
		return nil, errors.E(name, err)
	}
	return NewCursor(plaintext), nil
}
