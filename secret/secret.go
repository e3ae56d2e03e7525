// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package secret holds key material in buffers with an explicit
// lifetime. A Key is owned by exactly one recovery call: it is locked
// into memory where the platform allows it, and its contents are
// overwritten when Destroy is called. Callers defer Destroy right
// after construction.
package secret

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/grailbio/tdvault/log"
)

// Key is a fixed-size buffer of sensitive bytes. Each key owns the
// pages backing it, so locking or unlocking one key never affects
// another.
type Key struct {
	mu sync.Mutex
	b  []byte
	// mem is the whole allocation backing b; mapped tells whether it
	// came from alloc.
	mem            []byte
	mapped, locked bool
}

// New returns a zeroed key of n bytes.
func New(n int) *Key {
	k := new(Key)
	mem, err := alloc(n)
	if err != nil {
		log.Debug.Printf("secret: map %d bytes: %v", n, err)
		mem = make([]byte, n)
	} else {
		k.mapped = true
	}
	k.b, k.mem = mem[:n], mem
	if err := lockMemory(k.mem); err != nil {
		// Locking is best effort: RLIMIT_MEMLOCK is often tiny.
		log.Debug.Printf("secret: mlock %d bytes: %v", n, err)
	} else {
		k.locked = len(k.mem) > 0
	}
	return k
}

// FromBytes returns a key holding a copy of p. The caller remains
// responsible for p.
func FromBytes(p []byte) *Key {
	k := New(len(p))
	copy(k.b, p)
	return k
}

// Bytes returns the key's backing buffer. The slice is valid until
// Destroy is called and must not be retained past it.
func (k *Key) Bytes() []byte {
	return k.b
}

// Len returns the key size in bytes.
func (k *Key) Len() int {
	return len(k.b)
}

// Destroy zeroes the key and releases its memory lock. Destroy is
// idempotent and safe to call on a nil key.
func (k *Key) Destroy() {
	if k == nil {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.b == nil {
		return
	}
	Zero(k.mem)
	if k.locked {
		if err := unlockMemory(k.mem); err != nil {
			log.Debug.Printf("secret: munlock: %v", err)
		}
	}
	if k.mapped {
		if err := free(k.mem); err != nil {
			log.Debug.Printf("secret: unmap: %v", err)
		}
	}
	k.b, k.mem, k.mapped, k.locked = nil, nil, false, false
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Fingerprint returns a short, non-reversible identifier of p
// suitable for logs: the first 8 bytes of SHA-256(p) in hex.
func Fingerprint(p []byte) string {
	sum := sha256.Sum256(p)
	return hex.EncodeToString(sum[:8])
}
