// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vault recovers account sessions from Telegram Desktop
// vaults ("tdata" directories).
//
// A vault holds a key file and one file per account:
//
//	key_datas                salt, sealed local key, sealed account index
//	D877F783D5D3EF8Cs        account 0
//	...                      account i, named by AccountFile
//
// The local key is sealed under a key derived from the passcode (empty
// by default); the account index and account files are sealed under
// the local key. Each account file carries the user id, the main
// datacenter and the authorization keys per datacenter. Recover
// returns one session per account, bound to the main datacenter.
//
// Recovery never writes to the vault. Key material is held in
// secret.Key buffers that are zeroed before Recover returns.
package vault
