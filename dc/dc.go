// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dc holds the table of messaging datacenters that recovered
// sessions are bound to.
package dc

import (
	"fmt"
	"net/netip"
	"sort"

	"github.com/grailbio/tdvault/errors"
)

// Table maps a datacenter id to its IPv4 endpoint. A Table is
// read-only after construction and safe for concurrent use.
type Table map[int]netip.AddrPort

// Production is the production datacenter table compiled into the
// desktop client.
var Production = Table{
	1: netip.MustParseAddrPort("149.154.175.50:443"),
	2: netip.MustParseAddrPort("149.154.167.51:443"),
	3: netip.MustParseAddrPort("149.154.175.100:443"),
	4: netip.MustParseAddrPort("149.154.167.91:443"),
	5: netip.MustParseAddrPort("149.154.171.5:443"),
}

// Lookup returns the endpoint of datacenter id, or an error of kind
// UnknownDatacenter.
func (t Table) Lookup(id int) (netip.AddrPort, error) {
	ap, ok := t[id]
	if !ok {
		return netip.AddrPort{}, errors.E(errors.UnknownDatacenter, errors.Fatal,
			fmt.Sprintf("datacenter %d is not in the table", id))
	}
	return ap, nil
}

// Has tells whether id is a known datacenter.
func (t Table) Has(id int) bool {
	_, ok := t[id]
	return ok
}

// IDs returns the table's datacenter ids in ascending order.
func (t Table) IDs() []int {
	ids := make([]int, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ByAddr returns the id of the datacenter at addr.
func (t Table) ByAddr(addr netip.Addr) (int, bool) {
	for _, id := range t.IDs() {
		if t[id].Addr() == addr {
			return id, true
		}
	}
	return 0, false
}
