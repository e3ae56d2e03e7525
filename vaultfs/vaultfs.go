// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package vaultfs provides read-only access to vault directories on
// the local file system and in S3. Paths of the form
// "s3://bucket/prefix" name S3 vaults; any other path is local.
package vaultfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/retry"
)

// MaxFileSize bounds the size of a single vault file. Vault files are
// a few kilobytes; anything larger is not a vault file.
const MaxFileSize = 16 << 20

// An FS is a read-only vault root.
type FS interface {
	// ReadFile returns the contents of the named file, relative to
	// the root. A missing file is an error of kind NotExist.
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// Path returns the root's path or URL.
	Path() string
}

// Options configures how vault roots are opened.
type Options struct {
	// S3 is the client used for s3:// roots. If nil, a client is
	// created from the default AWS session on first use.
	S3 s3iface.S3API
	// Policy governs retries of transient S3 failures. If nil,
	// DefaultPolicy is used.
	Policy retry.Policy
}

// DefaultPolicy retries transient S3 failures up to five times.
var DefaultPolicy = retry.MaxTries(retry.Backoff(100*time.Millisecond, 5*time.Second, 2), 5)

var (
	defaultClientOnce sync.Once
	defaultClient     s3iface.S3API
	defaultClientErr  error
)

func (o Options) client() (s3iface.S3API, error) {
	if o.S3 != nil {
		return o.S3, nil
	}
	defaultClientOnce.Do(func() {
		sess, err := session.NewSession()
		if err != nil {
			defaultClientErr = errors.E(errors.Unavailable, "create AWS session", err)
			return
		}
		defaultClient = s3.New(sess)
	})
	return defaultClient, defaultClientErr
}

func (o Options) policy() retry.Policy {
	if o.Policy != nil {
		return o.Policy
	}
	return DefaultPolicy
}

// ParseURL splits "s3://bucket/prefix" into ("bucket", "prefix", true).
// Local paths return ok == false.
func ParseURL(path string) (bucket, prefix string, ok bool) {
	suffix, ok := strings.CutPrefix(path, "s3://")
	if !ok {
		return "", "", false
	}
	bucket, prefix, _ = strings.Cut(suffix, "/")
	return bucket, strings.TrimSuffix(prefix, "/"), true
}

// Open returns the vault root at path.
func Open(ctx context.Context, path string, opts Options) (FS, error) {
	if bucket, prefix, ok := ParseURL(path); ok {
		if bucket == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("%s: missing bucket", path))
		}
		client, err := opts.client()
		if err != nil {
			return nil, err
		}
		return NewS3(client, bucket, prefix, opts.policy()), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.E(err)
	}
	if !info.IsDir() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("%s is not a directory", path))
	}
	return Dir(path), nil
}

// List returns the immediate children of root that hold a file named
// keyFile, in lexical order. Root is a local directory or an s3://
// prefix; returned paths are in the same form.
func List(ctx context.Context, root, keyFile string, opts Options) ([]string, error) {
	if bucket, prefix, ok := ParseURL(root); ok {
		client, err := opts.client()
		if err != nil {
			return nil, err
		}
		return NewS3(client, bucket, prefix, opts.policy()).list(ctx, keyFile)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("list %s", root), err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, keyFile)); err == nil {
			paths = append(paths, dir)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Base returns the last element of a vault path or URL.
func Base(path string) string {
	if _, prefix, ok := ParseURL(path); ok {
		if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
			return prefix[i+1:]
		}
		return prefix
	}
	return filepath.Base(path)
}

// Dir is a vault root on the local file system.
type Dir string

// ReadFile implements FS.
func (d Dir) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.E(err)
	}
	f, err := os.Open(filepath.Join(string(d), filepath.FromSlash(name)))
	if err != nil {
		return nil, errors.E(err)
	}
	defer f.Close() // nolint: errcheck
	return readAll(f, name)
}

// Path implements FS.
func (d Dir) Path() string { return string(d) }

func readAll(r io.Reader, name string) ([]byte, error) {
	p, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, errors.E(fmt.Sprintf("read %s", name), err)
	}
	if len(p) > MaxFileSize {
		return nil, errors.E(errors.InvalidFormat, errors.Fatal,
			fmt.Sprintf("%s is larger than %d bytes", name, MaxFileSize))
	}
	return p, nil
}
