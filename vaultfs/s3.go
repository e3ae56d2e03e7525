// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package vaultfs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	awsrequest "github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/grailbio/tdvault/errors"
	"github.com/grailbio/tdvault/log"
	"github.com/grailbio/tdvault/retry"
)

// S3 is a vault root under an S3 prefix.
type S3 struct {
	client         s3iface.S3API
	bucket, prefix string
	policy         retry.Policy
}

// NewS3 returns the vault root s3://bucket/prefix read through client.
func NewS3(client s3iface.S3API, bucket, prefix string, policy retry.Policy) *S3 {
	if policy == nil {
		policy = DefaultPolicy
	}
	return &S3{client: client, bucket: bucket, prefix: strings.TrimSuffix(prefix, "/"), policy: policy}
}

// Path implements FS.
func (s *S3) Path() string {
	if s.prefix == "" {
		return "s3://" + s.bucket
	}
	return "s3://" + s.bucket + "/" + s.prefix
}

func (s *S3) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// ReadFile implements FS. Throttling and other transient failures are
// retried according to the root's policy.
func (s *S3) ReadFile(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	var data []byte
	err := retry.Do(ctx, s.policy, fmt.Sprintf("get s3://%s/%s", s.bucket, key), func() (err error) {
		out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if out != nil && out.Body != nil {
				if errClose := out.Body.Close(); errClose != nil {
					log.Debug.Printf("vaultfs: ignoring body close error: %v", errClose)
				}
			}
			return annotate(err, fmt.Sprintf("s3://%s/%s", s.bucket, key))
		}
		defer errors.CleanUp(out.Body.Close, &err)
		data, err = readAll(out.Body, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// list returns the s3:// URLs of the immediate sub-prefixes of s that
// hold an object named keyFile.
func (s *S3) list(ctx context.Context, keyFile string) ([]string, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	var (
		token *string
		paths []string
	)
	for {
		req := &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		}
		var res *s3.ListObjectsV2Output
		err := retry.Do(ctx, s.policy, fmt.Sprintf("list %s", s.Path()), func() (err error) {
			res, err = s.client.ListObjectsV2WithContext(ctx, req)
			if err != nil {
				return annotate(err, fmt.Sprintf("list %s", s.Path()))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range res.Contents {
			rel := strings.TrimPrefix(aws.StringValue(obj.Key), prefix)
			child, file, ok := strings.Cut(rel, "/")
			if !ok || child == "" || file != keyFile {
				continue
			}
			paths = append(paths, fmt.Sprintf("s3://%s/%s%s", s.bucket, prefix, child))
		}
		if !aws.BoolValue(res.IsTruncated) || res.NextContinuationToken == nil {
			break
		}
		token = res.NextContinuationToken
	}
	sort.Strings(paths)
	return paths, nil
}

// annotate interprets err as an AWS request error and returns a version
// of it annotated with the severity and kind of the errors package.
func annotate(err error, what string) error {
	aerr, ok := getAWSError(err)
	if !ok {
		return errors.E(what, err)
	}
	if awsrequest.IsErrorThrottle(err) {
		return errors.E(what, err, errors.Temporary, errors.Unavailable)
	}
	if awsrequest.IsErrorRetryable(err) {
		return errors.E(what, err, errors.Temporary)
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
		return errors.E(what, err, errors.NotExist)
	case "AccessDenied":
		return errors.E(what, err, errors.NotAllowed)
	case "ExpiredToken", "AccountProblem", "TokenRefreshRequired":
		return errors.E(what, err, errors.Unavailable)
	case "SlowDown", "ServiceUnavailable", "InternalError":
		return errors.E(what, err, errors.Temporary, errors.Unavailable)
	case awsrequest.CanceledErrorCode:
		return errors.E(what, err, errors.Canceled)
	}
	return errors.E(what, err)
}

func getAWSError(err error) (awsError awserr.Error, found bool) {
	errors.Visit(err, func(err error) {
		if err == nil || awsError != nil {
			return
		}
		if e, ok := err.(awserr.Error); ok {
			found = true
			awsError = e
		}
	})
	return
}
