// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

//go:build !(linux || darwin || freebsd)

package cmdutil

// DisableCoreDumps is a no-op on platforms without rlimits.
func DisableCoreDumps() error { return nil }
