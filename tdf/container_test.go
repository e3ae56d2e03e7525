// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package tdf_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/binary"
	"os"
	"testing"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/localcrypt"
	"github.com/grailbio/tdvault/secret"
	"github.com/grailbio/tdvault/tdf"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type mapFS map[string][]byte

func (m mapFS) ReadFile(_ context.Context, name string) ([]byte, error) {
	p, ok := m[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return p, nil
}

func TestMarshalLayout(t *testing.T) {
	payload := []byte("payload bytes")
	data := tdf.Marshal(3004001, payload)
	assert.EQ(t, len(data), 8+len(payload)+16)
	expect.EQ(t, string(data[:4]), "TDF$")
	expect.EQ(t, binary.LittleEndian.Uint32(data[4:8]), uint32(3004001))

	h := md5.New()
	h.Write(payload)
	h.Write([]byte{byte(len(payload)), 0, 0, 0})
	h.Write(data[4:8])
	h.Write([]byte("TDF$"))
	expect.True(t, bytes.Equal(h.Sum(nil), data[len(data)-16:]))
}

func TestParse(t *testing.T) {
	payload := []byte("some payload")
	c, err := tdf.Parse(tdf.Marshal(7, payload), tdf.Options{})
	assert.NoError(t, err)
	expect.EQ(t, c.Version, uint32(7))
	expect.EQ(t, string(c.Payload), string(payload))

	c, err = tdf.Parse(tdf.Marshal(1, nil), tdf.Options{})
	assert.NoError(t, err)
	expect.EQ(t, len(c.Payload), 0)
}

func TestParseInvalid(t *testing.T) {
	good := tdf.Marshal(1, []byte("x"))
	badMagic := append([]byte("TDF#"), good[4:]...)
	for _, data := range [][]byte{nil, []byte("TDF"), badMagic, good[:8+15]} {
		_, err := tdf.Parse(data, tdf.Options{})
		expect.True(t, errors.Is(errors.InvalidFormat, err), "%q: %v", data, err)
	}
}

// TestParseBitFlip flips every bit of a container's payload, version
// and digest and requires each to fail the digest check.
func TestParseBitFlip(t *testing.T) {
	data := tdf.Marshal(2, []byte("a container payload"))
	for i := 4; i < len(data); i++ {
		for bit := uint(0); bit < 8; bit++ {
			flipped := append([]byte(nil), data...)
			flipped[i] ^= 1 << bit
			_, err := tdf.Parse(flipped, tdf.Options{})
			expect.True(t, errors.Is(errors.CorruptContainer, err), "byte %d bit %d: %v", i, bit, err)
		}
	}
}

func TestParseLenient(t *testing.T) {
	data := tdf.Marshal(2, []byte("payload"))
	data[10] ^= 0xff
	c, err := tdf.Parse(data, tdf.Options{LenientDigest: true})
	assert.NoError(t, err)
	expect.EQ(t, len(c.Payload), len("payload"))
}

func TestOpenEncrypted(t *testing.T) {
	ctx := context.Background()
	key := secret.FromBytes(bytes.Repeat([]byte{0x5a}, localcrypt.KeySize))
	defer key.Destroy()

	env, err := localcrypt.Encrypt(key.Bytes(), []byte("inner"))
	assert.NoError(t, err)
	var w tdf.Writer
	w.WriteBlob(env)
	fs := mapFS{
		"sealed": tdf.Marshal(1, w.Bytes()),
		"empty":  tdf.Marshal(1, nil),
	}

	c, err := tdf.OpenEncrypted(ctx, fs, "sealed", key, tdf.Options{})
	assert.NoError(t, err)
	p, err := c.ReadExact(c.Len())
	assert.NoError(t, err)
	expect.EQ(t, string(p), "inner")

	_, err = tdf.OpenEncrypted(ctx, fs, "empty", key, tdf.Options{})
	expect.True(t, errors.Is(errors.TruncatedInput, err), "%v", err)

	_, err = tdf.OpenEncrypted(ctx, fs, "missing", key, tdf.Options{})
	expect.True(t, errors.Is(errors.NotExist, err), "%v", err)

	other := secret.FromBytes(bytes.Repeat([]byte{0xa5}, localcrypt.KeySize))
	defer other.Destroy()
	_, err = tdf.OpenEncrypted(ctx, fs, "sealed", other, tdf.Options{})
	expect.True(t, errors.Is(errors.IntegrityMismatch, err), "%v", err)
}
