// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/localcrypt"
	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/secret"
	"github.com/grailbio/tdvault/session"
	"github.com/grailbio/tdvault/tdf"
	"github.com/grailbio/tdvault/traverse"
	"github.com/grailbio/tdvault/vaultfs"
)

// Options configures the recovery of a single vault.
type Options struct {
	// Passcode unlocks vaults protected by a local passcode. Most
	// vaults have none.
	Passcode []byte
	// DataName selects the profile; it defaults to "data".
	DataName string
	// Table resolves datacenter ids; it defaults to dc.Production.
	Table dc.Table
	// Parallelism bounds the number of accounts recovered
	// concurrently. Zero selects traverse.Parallel.
	Parallelism int
	// Container controls container validation.
	Container tdf.Options
}

func (o Options) dataName() string {
	if o.DataName == "" {
		return DefaultDataName
	}
	return o.DataName
}

func (o Options) table() dc.Table {
	if o.Table == nil {
		return dc.Production
	}
	return o.Table
}

// Account is the outcome of recovering one account. Either Err is
// set, or UserID, DC, Session and Token are.
type Account struct {
	// Index is the account's index in the vault.
	Index int
	// File is the account file's name.
	File   string
	UserID uint64
	// Wide is set for records with 64-bit user ids.
	Wide    bool
	DC      int
	Session session.Session
	Token   string
	Err     error
}

// OK tells whether the account was recovered.
func (a Account) OK() bool { return a.Err == nil }

// Recover recovers all accounts listed in the vault at fs. Failures
// to read the key file or account index fail the vault and are
// returned as the error. Failures of individual accounts are reported
// in the returned accounts and do not affect their siblings.
func Recover(ctx context.Context, fs vaultfs.FS, opts Options) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.E(fs.Path(), err)
	}
	keyFile := KeyFile(opts.dataName())
	c, err := tdf.Open(ctx, fs, keyFile, opts.Container)
	if err != nil {
		return nil, err
	}
	salt, err := readBlob(c, keyFile, "salt")
	if err != nil {
		return nil, err
	}
	passcodeKey, err := localcrypt.DeriveKey(opts.Passcode, salt)
	if err != nil {
		return nil, errors.E(keyFile, err)
	}
	defer passcodeKey.Destroy()

	kc, err := tdf.Decrypt(c, keyFile, passcodeKey)
	if err != nil {
		return nil, err
	}
	p, err := kc.ReadExact(localcrypt.KeySize)
	if err != nil {
		msg := fmt.Sprintf("sealed local key is %d bytes, want %d", kc.Len(), localcrypt.KeySize)
		kc.Wipe()
		return nil, errors.E(errors.InvalidLocalKey, errors.Fatal, keyFile, msg)
	}
	localKey := secret.FromBytes(p)
	kc.Wipe()
	defer localKey.Destroy()
	log.Debug.Printf("vault %s: local key %s", fs.Path(), secret.Fingerprint(localKey.Bytes()))

	indices, err := readIndex(c, keyFile, localKey)
	if err != nil {
		return nil, err
	}
	log.Debug.Printf("vault %s: %d accounts", fs.Path(), len(indices))

	var (
		table    = opts.table()
		accounts = make([]Account, len(indices))
	)
	err = traverse.Limit(opts.Parallelism).Each(len(indices), func(i int) error {
		accounts[i] = recoverAccount(ctx, fs, localKey, table, opts, indices[i])
		if err := accounts[i].Err; err != nil {
			log.Debug.Printf("vault %s: account %d: %v", fs.Path(), indices[i], err)
		} else {
			log.Debug.Printf("vault %s: account %d: user %d on dc %d", fs.Path(), indices[i], accounts[i].UserID, accounts[i].DC)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func readBlob(c *tdf.Cursor, file, what string) ([]byte, error) {
	p, err := c.ReadBlob()
	if err == io.EOF {
		return nil, errors.E(errors.TruncatedInput, errors.Fatal, file, "missing", what)
	}
	if err != nil {
		return nil, errors.E(file, what, err)
	}
	return p, nil
}

// readIndex decrypts the account index, the key file's last blob.
func readIndex(c *tdf.Cursor, keyFile string, localKey *secret.Key) ([]int, error) {
	ic, err := tdf.Decrypt(c, keyFile, localKey)
	if err != nil {
		return nil, err
	}
	defer ic.Wipe()
	n, err := ic.ReadU32()
	if err != nil {
		return nil, errors.E(keyFile, "account count", err)
	}
	if int64(n)*4 > int64(ic.Len()) {
		return nil, errors.E(errors.TruncatedInput, errors.Fatal, keyFile,
			fmt.Sprintf("index lists %d accounts in %d bytes", n, ic.Len()))
	}
	indices := make([]int, n)
	for i := range indices {
		v, err := ic.ReadU32()
		if err != nil {
			return nil, errors.E(keyFile, "account index", err)
		}
		indices[i] = int(v)
	}
	return indices, nil
}

func recoverAccount(ctx context.Context, fs vaultfs.FS, localKey *secret.Key, table dc.Table, opts Options, index int) Account {
	a := Account{Index: index, File: AccountFile(opts.dataName(), index)}
	if err := ctx.Err(); err != nil {
		a.Err = errors.E(a.File, err)
		return a
	}
	c, err := tdf.OpenEncrypted(ctx, fs, a.File, localKey, opts.Container)
	if err != nil {
		a.Err = err
		return a
	}
	defer c.Wipe()
	rec, err := ParseAuth(c, table)
	if err != nil {
		a.Err = errors.E(a.File, err)
		return a
	}
	s, err := session.FromDC(table, rec.MainDC, rec.Key)
	if err != nil {
		a.Err = errors.E(a.File, err)
		return a
	}
	tok, err := session.Encode(s)
	if err != nil {
		a.Err = errors.E(a.File, err)
		return a
	}
	a.UserID, a.Wide, a.DC, a.Session, a.Token = rec.UserID, rec.Wide, rec.MainDC, s, tok
	return a
}
