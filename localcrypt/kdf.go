// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package localcrypt

import (
	"crypto/sha512"
	"fmt"

	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/secret"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the size of local and long-term keys.
	KeySize = 256
	// SaltSize is the size of the key-derivation salt stored in the
	// vault's key file.
	SaltSize = 32
	// PasscodeIterations is the PBKDF2 round count used when a
	// passcode is set. Vaults without a passcode use a single round.
	PasscodeIterations = 100000
)

// DeriveKey derives the 256-byte passcode key from passcode (possibly
// empty) and salt:
//
//	PBKDF2-HMAC-SHA512(SHA512(salt ++ passcode ++ salt), salt, n, 256)
//
// where n is PasscodeIterations if passcode is non-empty and 1
// otherwise. The returned key must be destroyed by the caller.
func DeriveKey(passcode, salt []byte) (*secret.Key, error) {
	if len(salt) != SaltSize {
		return nil, errors.E(errors.InvalidSalt, errors.Fatal,
			fmt.Sprintf("salt is %d bytes, want %d", len(salt), SaltSize))
	}
	h := sha512.New()
	h.Write(salt)
	h.Write(passcode)
	h.Write(salt)
	pass := h.Sum(nil)
	defer secret.Zero(pass)

	iterations := 1
	if len(passcode) > 0 {
		iterations = PasscodeIterations
	}
	derived := pbkdf2.Key(pass, salt, iterations, KeySize, sha512.New)
	defer secret.Zero(derived)
	return secret.FromBytes(derived), nil
}
