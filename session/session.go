// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package session encodes recovered account credentials as portable
// session tokens.
//
// A token is the character '1' followed by the padded, URL-safe base64
// encoding of a 263-byte record:
//
//	dc[1] ipv4[4] port[2, big-endian] authKey[256]
package session

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/netip"

	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/errors"
)

const (
	// Version is the leading character of every token.
	Version = '1'
	// KeySize is the size of an authorization key.
	KeySize = 256

	recordSize = 1 + 4 + 2 + KeySize
)

// EncodedLen is the length of an encoded token.
var EncodedLen = 1 + base64.URLEncoding.EncodedLen(recordSize)

// Session is the material needed to resume an account's connection.
type Session struct {
	DC   uint8
	Addr netip.Addr
	Port uint16
	Key  [KeySize]byte
}

// New returns a session for datacenter dc at addr:port. The address
// must be IPv4 and key must be KeySize bytes.
func New(dc uint8, addr netip.Addr, port uint16, key []byte) (Session, error) {
	if !addr.Is4() {
		return Session{}, errors.E(errors.Invalid, fmt.Sprintf("address %v is not IPv4", addr))
	}
	if len(key) != KeySize {
		return Session{}, errors.E(errors.Invalid, fmt.Sprintf("auth key is %d bytes, want %d", len(key), KeySize))
	}
	s := Session{DC: dc, Addr: addr, Port: port}
	copy(s.Key[:], key)
	return s, nil
}

// FromDC returns a session bound to datacenter id of table t.
func FromDC(t dc.Table, id int, key []byte) (Session, error) {
	ap, err := t.Lookup(id)
	if err != nil {
		return Session{}, err
	}
	if id < 0 || id > 255 {
		return Session{}, errors.E(errors.Invalid, fmt.Sprintf("datacenter id %d does not fit a byte", id))
	}
	return New(uint8(id), ap.Addr(), ap.Port(), key)
}

// Encode returns the token for s.
func Encode(s Session) (string, error) {
	if !s.Addr.Is4() {
		return "", errors.E(errors.Invalid, fmt.Sprintf("address %v is not IPv4", s.Addr))
	}
	var rec [recordSize]byte
	rec[0] = s.DC
	ip := s.Addr.As4()
	copy(rec[1:5], ip[:])
	binary.BigEndian.PutUint16(rec[5:7], s.Port)
	copy(rec[7:], s.Key[:])
	tok := string(Version) + base64.URLEncoding.EncodeToString(rec[:])
	for i := range rec {
		rec[i] = 0
	}
	return tok, nil
}

// String returns the token for s, or the empty string if s cannot be
// encoded.
func (s Session) String() string {
	tok, _ := Encode(s)
	return tok
}

// Decode parses a token produced by Encode.
func Decode(tok string) (Session, error) {
	if len(tok) == 0 || tok[0] != Version {
		return Session{}, errors.E(errors.Invalid, "token does not start with version '1'")
	}
	rec, err := base64.URLEncoding.DecodeString(tok[1:])
	if err != nil {
		return Session{}, errors.E(errors.Invalid, "token is not base64", err)
	}
	if len(rec) != recordSize {
		return Session{}, errors.E(errors.Invalid, fmt.Sprintf("token record is %d bytes, want %d", len(rec), recordSize))
	}
	s := Session{
		DC:   rec[0],
		Addr: netip.AddrFrom4([4]byte(rec[1:5])),
		Port: binary.BigEndian.Uint16(rec[5:7]),
	}
	copy(s.Key[:], rec[7:])
	return s, nil
}
