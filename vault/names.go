// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
)

// DefaultDataName is the data name of a vault's first profile.
const DefaultDataName = "data"

// KeyFile returns the name of the key file of the given data name,
// "key_datas" by default.
func KeyFile(dataName string) string {
	return "key_" + dataName + "s"
}

// AccountFile returns the file name of account index under dataName.
// The first account of "data" lives in "D877F783D5D3EF8Cs".
func AccountFile(dataName string, index int) string {
	s := dataName
	if index > 0 {
		s += "#" + strconv.Itoa(index+1)
	}
	sum := md5.Sum([]byte(s))
	var b [8]byte
	for i := range b {
		b[i] = sum[7-i]
	}
	return reverse(strings.ToUpper(hex.EncodeToString(b[:]))) + "s"
}

func reverse(s string) string {
	r := []byte(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
