// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package localcrypt implements the primitives that protect files in a
// Telegram Desktop vault: the passcode key derivation and the legacy
// encryption envelope.
//
// An envelope is laid out as
//
//	tag[16] ++ AES-256-IGE(uint32le(L) ++ payload ++ padding)
//
// where L is len(payload)+4, padding brings the plaintext to a multiple
// of 16 bytes, and tag is the first 16 bytes of SHA-1 over the padded
// plaintext. The AES key and IV are derived from a 256-byte long-term
// key and the tag with the pre-2.0 MTProto schedule, using the
// "inbound" offset for every file written by the desktop client.
//
// Every byte range in the schedule matters: a mistake yields a
// different key with no error until the final tag comparison.
package localcrypt
