// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package session_test

import (
	"bytes"
	"encoding/base64"
	"net/netip"
	"strings"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/session"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestEncodeLayout(t *testing.T) {
	key := bytes.Repeat([]byte{0xab}, session.KeySize)
	s, err := session.FromDC(dc.Production, 2, key)
	assert.NoError(t, err)
	tok, err := session.Encode(s)
	assert.NoError(t, err)

	expect.EQ(t, tok[0], byte('1'))
	expect.EQ(t, len(tok), 353)
	expect.EQ(t, len(tok), session.EncodedLen)
	expect.EQ(t, tok, s.String())

	rec, err := base64.URLEncoding.DecodeString(tok[1:])
	assert.NoError(t, err)
	assert.EQ(t, len(rec), 263)
	expect.EQ(t, rec[:7], []byte{2, 149, 154, 167, 51, 0x01, 0xbb})
	expect.True(t, bytes.Equal(rec[7:], key))
}

func TestURLAlphabet(t *testing.T) {
	// High bytes produce sextets 62 and 63.
	key := bytes.Repeat([]byte{0xfb, 0xff, 0xbf}, 86)[:session.KeySize]
	s, err := session.New(1, netip.MustParseAddr("149.154.175.50"), 443, key)
	assert.NoError(t, err)
	tok, err := session.Encode(s)
	assert.NoError(t, err)
	expect.False(t, strings.ContainsAny(tok, "+/"), tok)
	expect.True(t, strings.ContainsAny(tok, "-_"), tok)
}

func TestNewInvalid(t *testing.T) {
	key := make([]byte, session.KeySize)
	_, err := session.New(2, netip.MustParseAddr("2001:db8::1"), 443, key)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = session.New(2, netip.MustParseAddr("149.154.167.51"), 443, key[:255])
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = session.Encode(session.Session{})
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = session.FromDC(dc.Production, 9, key)
	expect.True(t, errors.Is(errors.UnknownDatacenter, err), "%v", err)
}

func TestDecodeInvalid(t *testing.T) {
	s, err := session.FromDC(dc.Production, 4, make([]byte, session.KeySize))
	assert.NoError(t, err)
	good := s.String()
	for _, tok := range []string{
		"",
		"2" + good[1:],
		good[:len(good)-4],
		"1!!!!",
		"1" + base64.URLEncoding.EncodeToString(make([]byte, 264)),
	} {
		_, err := session.Decode(tok)
		expect.True(t, errors.Is(errors.Invalid, err), "%q: %v", tok, err)
	}
}

func TestRoundTripFuzz(t *testing.T) {
	fz := fuzz.New().NilChance(0)
	for i := 0; i < 500; i++ {
		var (
			id   uint8
			ip   [4]byte
			port uint16
			key  [session.KeySize]byte
		)
		fz.Fuzz(&id)
		fz.Fuzz(&ip)
		fz.Fuzz(&port)
		fz.Fuzz(&key)
		s, err := session.New(id, netip.AddrFrom4(ip), port, key[:])
		assert.NoError(t, err)
		tok, err := session.Encode(s)
		assert.NoError(t, err)
		expect.EQ(t, len(tok), 353)
		got, err := session.Decode(tok)
		assert.NoError(t, err)
		expect.EQ(t, got, s)
	}
}
