// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package localcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/gotd/ige"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/secret"
)

// TagSize is the size of the integrity tag that prefixes an envelope.
const TagSize = 16

var randomSource = rand.Reader

// Decrypt opens an envelope written by the desktop client with the
// long-term key. It returns the payload without the length prefix or
// padding.
func Decrypt(key, envelope []byte) ([]byte, error) {
	return DecryptDir(key, envelope, false)
}

// DecryptDir is Decrypt with an explicit direction. Outbound selects
// the key-schedule offset of the sending side; vault files always use
// inbound.
func DecryptDir(key, envelope []byte, outbound bool) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("long-term key is %d bytes, want %d", len(key), KeySize))
	}
	if len(envelope) < TagSize {
		return nil, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("envelope is %d bytes, shorter than its tag", len(envelope)))
	}
	tag, ciphertext := envelope[:TagSize], envelope[TagSize:]
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("ciphertext of %d bytes is not block aligned", len(ciphertext)))
	}
	aesKey, aesIV := keySchedule(key, tag, outbound)
	defer secret.Zero(aesKey[:])
	defer secret.Zero(aesIV[:])
	block, err := aes.NewCipher(aesKey[:])
	if err != nil {
		return nil, errors.E(errors.Invalid, "aes", err)
	}
	plaintext := make([]byte, len(ciphertext))
	ige.DecryptBlocks(block, aesIV[:], plaintext, ciphertext)

	sum := sha1.Sum(plaintext)
	if !bytes.Equal(sum[:TagSize], tag) {
		secret.Zero(plaintext)
		return nil, errors.E(errors.IntegrityMismatch, errors.Fatal, "envelope tag does not match decrypted data")
	}
	if len(plaintext) < 4 {
		return nil, errors.E(errors.InvalidFormat, errors.Fatal, "envelope has no length field")
	}
	n := binary.LittleEndian.Uint32(plaintext[:4])
	if n < 4 || uint64(n) > uint64(len(plaintext)) {
		secret.Zero(plaintext)
		return nil, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("declared length %d outside of %d decrypted bytes", n, len(plaintext)))
	}
	return plaintext[4:n], nil
}

// Encrypt seals payload into an envelope under the long-term key,
// padding it with random bytes. It is the inverse of Decrypt.
func Encrypt(key, payload []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("long-term key is %d bytes, want %d", len(key), KeySize))
	}
	size := 4 + len(payload)
	padded := size
	if r := padded % aes.BlockSize; r != 0 {
		padded += aes.BlockSize - r
	}
	plaintext := make([]byte, padded)
	defer secret.Zero(plaintext)
	binary.LittleEndian.PutUint32(plaintext, uint32(size))
	copy(plaintext[4:], payload)
	if _, err := io.ReadFull(randomSource, plaintext[size:]); err != nil {
		return nil, errors.E("failed to read padding", err)
	}

	sum := sha1.Sum(plaintext)
	envelope := make([]byte, TagSize+padded)
	tag := envelope[:TagSize]
	copy(tag, sum[:TagSize])

	aesKey, aesIV := keySchedule(key, tag, false)
	defer secret.Zero(aesKey[:])
	defer secret.Zero(aesIV[:])
	block, err := aes.NewCipher(aesKey[:])
	if err != nil {
		return nil, errors.E(errors.Invalid, "aes", err)
	}
	ige.EncryptBlocks(block, aesIV[:], envelope[TagSize:], plaintext)
	return envelope, nil
}

// keySchedule derives the AES-256 key and IGE IV from the long-term
// key and a 16-byte tag:
//
//	a = SHA1(tag ++ key[x:x+32])
//	b = SHA1(key[x+32:x+48] ++ tag ++ key[x+48:x+64])
//	c = SHA1(key[x+64:x+96] ++ tag)
//	d = SHA1(tag ++ key[x+96:x+128])
//	aesKey = a[0:8] ++ b[8:20] ++ c[4:16]
//	aesIV  = a[8:20] ++ b[0:8] ++ c[16:20] ++ d[0:8]
//
// with x = 0 outbound and 8 inbound.
func keySchedule(key, tag []byte, outbound bool) (aesKey, aesIV [32]byte) {
	x := 8
	if outbound {
		x = 0
	}
	var data [48]byte
	defer secret.Zero(data[:])

	copy(data[:16], tag)
	copy(data[16:], key[x:x+32])
	a := sha1.Sum(data[:])

	copy(data[:16], key[x+32:x+48])
	copy(data[16:32], tag)
	copy(data[32:], key[x+48:x+64])
	b := sha1.Sum(data[:])

	copy(data[:32], key[x+64:x+96])
	copy(data[32:], tag)
	c := sha1.Sum(data[:])

	copy(data[:16], tag)
	copy(data[16:], key[x+96:x+128])
	d := sha1.Sum(data[:])

	copy(aesKey[:8], a[:8])
	copy(aesKey[8:20], b[8:20])
	copy(aesKey[20:], c[4:16])

	copy(aesIV[:12], a[8:20])
	copy(aesIV[12:20], b[:8])
	copy(aesIV[20:24], c[16:20])
	copy(aesIV[24:], d[:8])
	return
}
