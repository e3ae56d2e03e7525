// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-test/deep"
	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/internal/tdatatest"
	"github.com/grailbio/tdvault/session"
	"github.com/grailbio/tdvault/tdf"
	"github.com/grailbio/tdvault/vault"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestAccountFile(t *testing.T) {
	for _, c := range []struct {
		data  string
		index int
		want  string
	}{
		{"data", 0, "D877F783D5D3EF8Cs"},
		{"data", 1, "A7FDF864FBC10B77s"},
		{"data", 2, "F8806DD0C461824Fs"},
		{"other", 0, "97F523201BC76BCBs"},
	} {
		expect.EQ(t, vault.AccountFile(c.data, c.index), c.want)
	}
	expect.EQ(t, vault.KeyFile(vault.DefaultDataName), "key_datas")
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	fs := tdatatest.Vault{
		Accounts: []tdatatest.Account{{
			UserID: 123456789,
			MainDC: 2,
			Keys: []tdatatest.DCKey{
				{DC: 1, Key: tdatatest.Key(0x01)},
				{DC: 2, Key: tdatatest.Key(0x11)},
				{DC: 2, Key: tdatatest.Key(0x22)},
			},
		}},
	}.NewMap()

	accounts, err := vault.Recover(ctx, fs, vault.Options{})
	assert.NoError(t, err)
	assert.EQ(t, len(accounts), 1)
	a := accounts[0]
	assert.NoError(t, a.Err)
	expect.EQ(t, a.Index, 0)
	expect.EQ(t, a.File, "D877F783D5D3EF8Cs")
	expect.EQ(t, a.UserID, uint64(123456789))
	expect.False(t, a.Wide)
	expect.EQ(t, a.DC, 2)
	expect.EQ(t, a.Token, "1ApWapzMBux"+strings.Repeat("ER", 170)+"E=")
	expect.EQ(t, len(a.Token), 353)

	s, err := session.Decode(a.Token)
	assert.NoError(t, err)
	if diff := deep.Equal(s, a.Session); diff != nil {
		t.Error(diff)
	}
	expect.EQ(t, s.Addr.String(), "149.154.167.51")
	expect.EQ(t, s.Port, uint16(443))
}

func TestRecoverPasscode(t *testing.T) {
	ctx := context.Background()
	v := tdatatest.Vault{
		Passcode: []byte("hunter2"),
		Salt:     []byte(strings.Repeat("s", 32)),
		Accounts: []tdatatest.Account{{UserID: 7, MainDC: 4, Keys: []tdatatest.DCKey{{DC: 4, Key: tdatatest.Key(4)}}}},
	}
	fs := v.NewMap()

	accounts, err := vault.Recover(ctx, fs, vault.Options{Passcode: []byte("hunter2")})
	assert.NoError(t, err)
	assert.EQ(t, len(accounts), 1)
	assert.NoError(t, accounts[0].Err)
	expect.EQ(t, accounts[0].DC, 4)

	_, err = vault.Recover(ctx, fs, vault.Options{Passcode: []byte("hunter3")})
	expect.True(t, errors.Is(errors.IntegrityMismatch, err), "%v", err)
	_, err = vault.Recover(ctx, fs, vault.Options{})
	expect.True(t, errors.Is(errors.IntegrityMismatch, err), "%v", err)
}

func TestRecoverWideUserID(t *testing.T) {
	ctx := context.Background()
	fs := tdatatest.Vault{
		Accounts: []tdatatest.Account{
			{UserID: 1 << 40, MainDC: 1, Keys: []tdatatest.DCKey{{DC: 1, Key: tdatatest.Key(1)}}},
			{UserID: 42, Wide: true, MainDC: 5, Keys: []tdatatest.DCKey{{DC: 5, Key: tdatatest.Key(5)}}},
			{UserID: 0xfffffffe, MainDC: 3, Keys: []tdatatest.DCKey{{DC: 3, Key: tdatatest.Key(3)}}},
			// Only the user id carries the marker: a 32-bit record.
			{UserID: 0xffffffff, MainDC: 2, Keys: []tdatatest.DCKey{{DC: 2, Key: tdatatest.Key(2)}}},
		},
	}.NewMap()
	accounts, err := vault.Recover(ctx, fs, vault.Options{Parallelism: 1})
	assert.NoError(t, err)
	assert.EQ(t, len(accounts), 4)
	for _, a := range accounts {
		assert.NoError(t, a.Err)
	}
	expect.EQ(t, accounts[0].UserID, uint64(1<<40))
	expect.True(t, accounts[0].Wide)
	expect.EQ(t, accounts[1].UserID, uint64(42))
	expect.True(t, accounts[1].Wide)
	expect.EQ(t, accounts[1].DC, 5)
	expect.EQ(t, accounts[2].UserID, uint64(0xfffffffe))
	expect.False(t, accounts[2].Wide)
	expect.EQ(t, accounts[2].File, "F8806DD0C461824Fs")
	expect.EQ(t, accounts[3].UserID, uint64(0xffffffff))
	expect.False(t, accounts[3].Wide)
	expect.EQ(t, accounts[3].DC, 2)
}

func TestRecoverAccountErrors(t *testing.T) {
	ctx := context.Background()
	good := tdatatest.Account{UserID: 1, MainDC: 2, Keys: []tdatatest.DCKey{{DC: 2, Key: tdatatest.Key(2)}}}
	fs := tdatatest.Vault{
		Accounts: []tdatatest.Account{
			good,
			{UserID: 2, MainDC: 2, Keys: []tdatatest.DCKey{{DC: 1, Key: tdatatest.Key(1)}, {DC: 3, Key: tdatatest.Key(3)}}},
			{UserID: 3, MainDC: 9, Keys: []tdatatest.DCKey{{DC: 9, Key: tdatatest.Key(9)}}},
			{UserID: 4, MainDC: 2, Tag: 0x4c, Keys: good.Keys},
			{Missing: true},
			good,
		},
	}.NewMap()

	accounts, err := vault.Recover(ctx, fs, vault.Options{})
	assert.NoError(t, err)
	assert.EQ(t, len(accounts), 6)
	for i, kind := range []errors.Kind{
		errors.Other,
		errors.NoMatchingDatacenter,
		errors.UnknownDatacenter,
		errors.UnsupportedAuthFormat,
		errors.NotExist,
		errors.Other,
	} {
		a := accounts[i]
		expect.EQ(t, a.Index, i)
		if kind == errors.Other {
			expect.NoError(t, a.Err)
			expect.True(t, a.OK())
			continue
		}
		expect.True(t, errors.Is(kind, a.Err), "account %d: want %v, got %v", i, kind, a.Err)
		expect.EQ(t, a.Token, "")
	}
}

func TestRecoverTable(t *testing.T) {
	ctx := context.Background()
	fs := tdatatest.Vault{
		Accounts: []tdatatest.Account{{UserID: 1, MainDC: 2, Keys: []tdatatest.DCKey{{DC: 2, Key: tdatatest.Key(2)}}}},
	}.NewMap()
	table := dc.Table{1: dc.Production[1]}
	accounts, err := vault.Recover(ctx, fs, vault.Options{Table: table})
	assert.NoError(t, err)
	expect.True(t, errors.Is(errors.UnknownDatacenter, accounts[0].Err), "%v", accounts[0].Err)
}

func TestRecoverIndices(t *testing.T) {
	ctx := context.Background()
	key := tdatatest.Key(0x33)
	fs := tdatatest.Vault{
		DataName: "profile",
		Indices:  []int{0, 2},
		Accounts: []tdatatest.Account{
			{UserID: 10, MainDC: 1, Keys: []tdatatest.DCKey{{DC: 1, Key: key}}},
			{UserID: 30, MainDC: 1, Keys: []tdatatest.DCKey{{DC: 1, Key: key}}},
		},
	}.NewMap()
	_, err := vault.Recover(ctx, fs, vault.Options{})
	expect.True(t, errors.Is(errors.NotExist, err), "%v", err)

	accounts, err := vault.Recover(ctx, fs, vault.Options{DataName: "profile"})
	assert.NoError(t, err)
	assert.EQ(t, len(accounts), 2)
	expect.EQ(t, accounts[1].Index, 2)
	expect.EQ(t, accounts[1].File, vault.AccountFile("profile", 2))
	expect.EQ(t, accounts[1].UserID, uint64(30))
}

func TestRecoverEmpty(t *testing.T) {
	accounts, err := vault.Recover(context.Background(), tdatatest.Vault{}.NewMap(), vault.Options{})
	assert.NoError(t, err)
	expect.EQ(t, len(accounts), 0)
}

func TestRecoverKeyFileErrors(t *testing.T) {
	ctx := context.Background()
	base := tdatatest.Vault{
		Accounts: []tdatatest.Account{{UserID: 1, MainDC: 2, Keys: []tdatatest.DCKey{{DC: 2, Key: tdatatest.Key(2)}}}},
	}

	short := base
	short.LocalKey = tdatatest.Key(9)[:200]
	_, err := vault.Recover(ctx, short.NewMap(), vault.Options{})
	expect.True(t, errors.Is(errors.InvalidLocalKey, err), "%v", err)

	fs := base.NewMap()
	var bad tdf.Writer
	bad.WriteBlob(make([]byte, 16))
	bad.WriteBlob(make([]byte, 32))
	bad.WriteBlob(make([]byte, 32))
	_, err = vault.Recover(ctx, tdatatest.Map{"key_datas": tdf.Marshal(1, bad.Bytes())}, vault.Options{})
	expect.True(t, errors.Is(errors.InvalidSalt, err), "%v", err)

	keyFile := fs["key_datas"]
	corrupt := append([]byte(nil), keyFile...)
	corrupt[12] ^= 1
	fs["key_datas"] = corrupt
	_, err = vault.Recover(ctx, fs, vault.Options{})
	expect.True(t, errors.Is(errors.CorruptContainer, err), "%v", err)

	c, err := tdf.Parse(keyFile, tdf.Options{})
	assert.NoError(t, err)
	r := tdf.NewCursor(c.Payload)
	salt, err := r.ReadBlob()
	assert.NoError(t, err)
	var w tdf.Writer
	w.WriteBlob(salt)
	fs["key_datas"] = tdf.Marshal(1, w.Bytes())
	_, err = vault.Recover(ctx, fs, vault.Options{})
	expect.True(t, errors.Is(errors.TruncatedInput, err), "%v", err)

	delete(fs, "key_datas")
	_, err = vault.Recover(ctx, fs, vault.Options{})
	expect.True(t, errors.Is(errors.NotExist, err), "%v", err)
}

func TestRecoverCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := vault.Recover(ctx, tdatatest.Vault{}.NewMap(), vault.Options{})
	expect.True(t, errors.Is(errors.Canceled, err), "%v", err)
}
