// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package tdatatest builds synthetic vaults for tests.
package tdatatest

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/tdvault/localcrypt"
	"github.com/grailbio/tdvault/must"
	"github.com/grailbio/tdvault/tdf"
	"github.com/grailbio/tdvault/vault"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/s3test"
)

// Version is the client version stamped on generated containers.
const Version = 4009004

// A DCKey is one (datacenter, authorization key) pair of an account.
type DCKey struct {
	DC  uint32
	Key []byte
}

// Account describes one account file.
type Account struct {
	UserID uint64
	// Wide forces the 64-bit user id encoding. It is implied when
	// UserID does not fit 32 bits.
	Wide   bool
	MainDC uint32
	Keys   []DCKey
	// Tag is the leading record tag; zero means 0x4B.
	Tag uint32
	// Missing omits the account file from the vault.
	Missing bool
}

// Vault describes a vault. The zero value is a vault without a
// passcode or accounts.
type Vault struct {
	Passcode []byte
	// Salt defaults to 32 zero bytes.
	Salt []byte
	// LocalKey defaults to a fixed pattern.
	LocalKey []byte
	// DataName defaults to "data".
	DataName string
	// Indices default to 0..len(Accounts)-1.
	Indices  []int
	Accounts []Account
}

// Key returns an authorization key filled with b.
func Key(b byte) []byte {
	return bytes.Repeat([]byte{b}, localcrypt.KeySize)
}

func (v *Vault) defaults() {
	if v.Salt == nil {
		v.Salt = make([]byte, localcrypt.SaltSize)
	}
	if v.LocalKey == nil {
		v.LocalKey = make([]byte, localcrypt.KeySize)
		for i := range v.LocalKey {
			v.LocalKey[i] = byte(i*7 + 3)
		}
	}
	if v.DataName == "" {
		v.DataName = vault.DefaultDataName
	}
	if v.Indices == nil {
		for i := range v.Accounts {
			v.Indices = append(v.Indices, i)
		}
	}
}

// Files returns the vault's files keyed by name.
func (v Vault) Files() (map[string][]byte, error) {
	v.defaults()
	files := make(map[string][]byte)

	passcodeKey, err := localcrypt.DeriveKey(v.Passcode, v.Salt)
	if err != nil {
		return nil, err
	}
	defer passcodeKey.Destroy()
	sealedKey, err := localcrypt.Encrypt(passcodeKey.Bytes(), v.LocalKey)
	if err != nil {
		return nil, err
	}
	var info tdf.Writer
	info.WriteU32(uint32(len(v.Indices)))
	for _, i := range v.Indices {
		info.WriteU32(uint32(i))
	}
	sealedInfo, err := localcrypt.Encrypt(localKey(v.LocalKey), info.Bytes())
	if err != nil {
		return nil, err
	}
	var key tdf.Writer
	key.WriteBlob(v.Salt)
	key.WriteBlob(sealedKey)
	key.WriteBlob(sealedInfo)
	files[vault.KeyFile(v.DataName)] = tdf.Marshal(Version, key.Bytes())

	for i, a := range v.Accounts {
		if a.Missing {
			continue
		}
		sealed, err := localcrypt.Encrypt(localKey(v.LocalKey), a.record())
		if err != nil {
			return nil, err
		}
		var w tdf.Writer
		w.WriteBlob(sealed)
		index := i
		if i < len(v.Indices) {
			index = v.Indices[i]
		}
		files[vault.AccountFile(v.DataName, index)] = tdf.Marshal(Version, w.Bytes())
	}
	return files, nil
}

// localKey pads short local keys so that tests can seal a truncated
// key file with it.
func localKey(k []byte) []byte {
	if len(k) >= localcrypt.KeySize {
		return k[:localcrypt.KeySize]
	}
	p := make([]byte, localcrypt.KeySize)
	copy(p, k)
	return p
}

func (a Account) record() []byte {
	var nested tdf.Writer
	if a.Wide || a.UserID > 0xffffffff {
		nested.WriteU32(0xffffffff)
		nested.WriteU32(0xffffffff)
		nested.WriteU64(a.UserID)
	} else {
		nested.WriteU32(uint32(a.UserID))
	}
	nested.WriteU32(a.MainDC)
	nested.WriteU32(uint32(len(a.Keys)))
	for _, k := range a.Keys {
		nested.WriteU32(k.DC)
		nested.WriteRaw(k.Key)
	}
	tag := a.Tag
	if tag == 0 {
		tag = 0x4b
	}
	var w tdf.Writer
	w.WriteU32(tag)
	w.WriteBlob(nested.Bytes())
	return w.Bytes()
}

// WriteDir writes the vault's files into dir, creating it if needed.
func (v Vault) WriteDir(t testing.TB, dir string) {
	t.Helper()
	files, err := v.Files()
	must.Nil(err)
	must.Nil(os.MkdirAll(dir, 0700))
	for name, data := range files {
		must.Nil(os.WriteFile(filepath.Join(dir, name), data, 0600))
	}
}

// WriteS3 stores the vault's files under prefix in client's bucket.
func (v Vault) WriteS3(t testing.TB, client *s3test.Client, prefix string) {
	t.Helper()
	files, err := v.Files()
	must.Nil(err)
	for name, data := range files {
		client.SetFileContentAt(prefix+"/"+name, &testutil.ByteContent{Data: data}, "")
	}
}

// Map is an in-memory vault root.
type Map map[string][]byte

// ReadFile implements vaultfs.FS.
func (m Map) ReadFile(ctx context.Context, name string) ([]byte, error) {
	p, ok := m[name]
	if !ok {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
	}
	return p, nil
}

// Path implements vaultfs.FS.
func (m Map) Path() string { return "mem:" }

// NewMap returns the vault as an in-memory root.
func (v Vault) NewMap() Map {
	files, err := v.Files()
	must.Nil(err)
	return Map(files)
}

// RandomKey returns a random 256-byte key.
func RandomKey() []byte {
	k := make([]byte, localcrypt.KeySize)
	_, err := rand.Read(k)
	must.Nil(err)
	return k
}
