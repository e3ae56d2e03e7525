// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vault

import (
	"fmt"
	"io"

	"github.com/grailbio/tdvault/dc"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/session"
	"github.com/grailbio/tdvault/tdf"
)

const (
	// authTag marks the authorization record layout this package reads.
	authTag = 0x4b
	// wideMarker in both id fields announces a 64-bit user id.
	wideMarker = 0xffffffff
)

// AuthRecord is the decoded authorization record of an account.
type AuthRecord struct {
	UserID uint64
	// Wide is set when the record used the 64-bit user id layout.
	Wide   bool
	MainDC int
	// Key is the main datacenter's authorization key. It aliases the
	// decrypted account file.
	Key []byte
}

// ParseAuth decodes the authorization record at c. The main
// datacenter must be present in table before the key pairs are
// scanned; the first pair for the main datacenter wins.
func ParseAuth(c *tdf.Cursor, table dc.Table) (AuthRecord, error) {
	tag, err := c.ReadU32()
	if err != nil {
		return AuthRecord{}, err
	}
	if tag != authTag {
		return AuthRecord{}, errors.E(errors.UnsupportedAuthFormat, errors.Fatal,
			fmt.Sprintf("record tag %#x, want %#x", tag, authTag))
	}
	blob, err := c.ReadBlob()
	if err == io.EOF {
		return AuthRecord{}, errors.E(errors.TruncatedInput, errors.Fatal, "missing authorization blob")
	}
	if err != nil {
		return AuthRecord{}, err
	}
	r := tdf.NewCursor(blob)

	var rec AuthRecord
	userID, err := r.ReadU32()
	if err != nil {
		return AuthRecord{}, err
	}
	mainDC, err := r.ReadU32()
	if err != nil {
		return AuthRecord{}, err
	}
	rec.UserID = uint64(userID)
	if userID == wideMarker && mainDC == wideMarker {
		rec.Wide = true
		if rec.UserID, err = r.ReadU64(); err != nil {
			return AuthRecord{}, err
		}
		if mainDC, err = r.ReadU32(); err != nil {
			return AuthRecord{}, err
		}
	}
	rec.MainDC = int(mainDC)
	if !table.Has(rec.MainDC) {
		return AuthRecord{}, errors.E(errors.UnknownDatacenter, errors.Fatal,
			fmt.Sprintf("main datacenter %d is not in the table", mainDC))
	}

	n, err := r.ReadU32()
	if err != nil {
		return AuthRecord{}, err
	}
	for i := uint32(0); i < n; i++ {
		id, err := r.ReadU32()
		if err != nil {
			return AuthRecord{}, err
		}
		key, err := r.ReadExact(session.KeySize)
		if err != nil {
			return AuthRecord{}, err
		}
		if id == mainDC {
			rec.Key = key
			return rec, nil
		}
	}
	return AuthRecord{}, errors.E(errors.NoMatchingDatacenter, errors.Fatal,
		fmt.Sprintf("none of %d keys is for main datacenter %d", n, mainDC))
}
