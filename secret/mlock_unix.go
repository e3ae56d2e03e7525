// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd

package secret

import (
	"os"

	"golang.org/x/sys/unix"
)

var pageSize = os.Getpagesize()

// alloc maps private anonymous pages holding at least n bytes. Memory
// locks apply to whole pages and do not nest, so keys never share a
// page.
func alloc(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	size := (n + pageSize - 1) / pageSize * pageSize
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func free(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}

func lockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mlock(b)
}

func unlockMemory(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munlock(b)
}
