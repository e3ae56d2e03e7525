// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors implements an error type that carries an
// interpretable kind for every way vault recovery can fail, together
// with a severity that tells callers whether an operation may be
// retried. Errors can be chained, attributing one error to another;
// the chain is printed in full by Error and is visible to the
// standard library's errors.Is and errors.As through Unwrap.
//
// Kinds are the contract between the recovery pipeline and its
// callers: a batch driver routes a failed vault or account by
// inspecting errors.Is(kind, err), never by matching messages.
package errors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/grailbio/tdvault/log"
)

// Separator defines the separation string inserted between
// chained errors in error messages.
var Separator = ":\n\t"

// Kind defines the type of error. Kinds are semantically
// meaningful, and are interpreted by the receiver of an error
// (e.g., to decide whether a vault goes to the unsuccessful pile).
type Kind int

const (
	// Other indicates an unknown error.
	Other Kind = iota
	// Canceled indicates a context cancellation.
	Canceled
	// Timeout indicates an operation time out.
	Timeout
	// NotExist indicates a nonexistent file or object.
	NotExist
	// NotAllowed indicates a permission failure.
	NotAllowed
	// Unavailable indicates that a resource was unavailable.
	Unavailable
	// Invalid indicates that the caller supplied invalid parameters.
	Invalid
	// TooManyTries indicates a retry budget was exhausted.
	TooManyTries

	// InvalidFormat indicates a file or blob that does not have the
	// expected framing: bad magic, short header, misaligned ciphertext.
	InvalidFormat
	// CorruptContainer indicates a container whose trailing digest
	// does not match its contents.
	CorruptContainer
	// TruncatedInput indicates that input ended in the middle of a
	// field.
	TruncatedInput
	// InvalidSalt indicates a key-derivation salt of the wrong size.
	InvalidSalt
	// InvalidLocalKey indicates that the decrypted local key blob did
	// not hold a full key.
	InvalidLocalKey
	// IntegrityMismatch indicates that a decrypted envelope failed its
	// embedded tag check: a wrong key or corrupted ciphertext.
	IntegrityMismatch
	// UnsupportedAuthFormat indicates an account file that does not
	// carry an authorization record.
	UnsupportedAuthFormat
	// UnknownDatacenter indicates a datacenter id missing from the
	// datacenter table.
	UnknownDatacenter
	// NoMatchingDatacenter indicates an authorization record without a
	// key for its own home datacenter.
	NoMatchingDatacenter

	maxKind
)

var kinds = map[Kind]string{
	Other:                 "unknown error",
	Canceled:              "operation was canceled",
	Timeout:               "operation timed out",
	NotExist:              "resource does not exist",
	NotAllowed:            "access denied",
	Unavailable:           "resource unavailable",
	Invalid:               "invalid argument",
	TooManyTries:          "too many tries",
	InvalidFormat:         "invalid format",
	CorruptContainer:      "corrupt container",
	TruncatedInput:        "truncated input",
	InvalidSalt:           "invalid salt",
	InvalidLocalKey:       "invalid local key",
	IntegrityMismatch:     "integrity mismatch",
	UnsupportedAuthFormat: "unsupported auth format",
	UnknownDatacenter:     "unknown datacenter",
	NoMatchingDatacenter:  "no matching datacenter",
}

// String returns a human-readable explanation of the error kind k.
func (k Kind) String() string {
	return kinds[k]
}

// Name returns the identifier of kind k, as used in machine-readable
// reports, e.g. "IntegrityMismatch".
func (k Kind) Name() string {
	if k < 0 || k >= maxKind {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return names[k]
}

var names = [...]string{
	Other:                 "Other",
	Canceled:              "Canceled",
	Timeout:               "Timeout",
	NotExist:              "NotExist",
	NotAllowed:            "NotAllowed",
	Unavailable:           "Unavailable",
	Invalid:               "Invalid",
	TooManyTries:          "TooManyTries",
	InvalidFormat:         "InvalidFormat",
	CorruptContainer:      "CorruptContainer",
	TruncatedInput:        "TruncatedInput",
	InvalidSalt:           "InvalidSalt",
	InvalidLocalKey:       "InvalidLocalKey",
	IntegrityMismatch:     "IntegrityMismatch",
	UnsupportedAuthFormat: "UnsupportedAuthFormat",
	UnknownDatacenter:     "UnknownDatacenter",
	NoMatchingDatacenter:  "NoMatchingDatacenter",
}

// Severity defines an Error's severity. An Error's severity determines
// whether an error-producing operation may be retried or not.
type Severity int

const (
	// Retriable indicates that the failing operation can be safely retried,
	// regardless of application context.
	Retriable Severity = -2
	// Temporary indicates that the underlying error condition is likely
	// temporary, and can be possibly be retried. However, such errors
	// should be retried in an application specific context.
	Temporary Severity = -1
	// Unknown indicates the error's severity is unknown. This is the default
	// severity level.
	Unknown Severity = 0
	// Fatal indicates that the underlying error condition is unrecoverable;
	// retrying is unlikely to help. Every parse and decryption failure is
	// fatal: the same input always fails the same way.
	Fatal Severity = 1
)

var severities = map[Severity]string{
	Retriable: "retriable",
	Temporary: "temporary",
	Unknown:   "unknown",
	Fatal:     "fatal",
}

// String returns a human-readable explanation of the error severity s.
func (s Severity) String() string {
	return severities[s]
}

// Error is the standard error type, carrying a kind (error code),
// message (error message), and potentially an underlying error.
// Errors should be constructed by errors.E, which interprets
// arguments according to a set of rules.
type Error struct {
	// Kind is the error's type.
	Kind Kind
	// Severity is an optional severity.
	Severity Severity
	// Message is an optional error message associated with this error.
	Message string
	// Err is the error that caused this error, if any.
	// Errors can form chains through Err: the full chain is printed
	// by Error().
	Err error
}

// E constructs a new errors from the provided arguments. It is meant
// as a convenient way to construct, annotate, and wrap errors.
//
// Arguments are interpreted according to their types:
//
//   - Kind: sets the Error's kind
//   - Severity: set the Error's severity
//   - string: sets the Error's message; multiple strings are
//     separated by a single space
//   - *Error: copies the error and sets the error's cause
//   - error: sets the Error's cause
//
// If an unrecognized argument type is encountered, an error with
// kind Invalid is returned.
//
// If a kind is not provided, but an underlying error is, E attempts to
// interpret the underlying error according to a set of conventions,
// in order:
//
//   - If the error wraps an *Error with a kind, that kind is inherited.
//   - If errors.Is(error, os.ErrNotExist), its kind is set to NotExist.
//   - If errors.Is(error, os.ErrPermission), its kind is set to NotAllowed.
//   - If the error is context.Canceled, its kind is set to Canceled.
//   - If the error is context.DeadlineExceeded, or implements
//     interface { Timeout() bool } and Timeout() returns true, its kind
//     is set to Timeout.
//   - If the error implements interface { Temporary() bool } and
//     Temporary() returns true, then its severity is set to at least
//     Temporary.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case Severity:
			e.Severity = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			copy := *arg
			if len(args) == 1 {
				// In this case, we're not adding anything new;
				// just return the copy.
				return &copy
			}
			e.Err = &copy
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Error.Printf("errors.E: bad call (type %T) from %s:%d: %v", arg, file, line, arg)
			return &Error{
				Kind:    Invalid,
				Message: fmt.Sprintf("unknown type %T, value %v in error call", arg, arg),
			}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	switch prev := e.Err.(type) {
	case *Error:
		if prev.Kind == e.Kind || e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
		if prev.Severity == e.Severity || e.Severity == Unknown {
			e.Severity = prev.Severity
			prev.Severity = Unknown
		}
	default:
		if err, ok := e.Err.(interface {
			Temporary() bool
		}); ok && err.Temporary() && e.Severity == Unknown {
			e.Severity = Temporary
		}
		if e.Kind != Other {
			break
		}
		e.Kind = classify(e.Err)
	}
	return e
}

// classify interprets a foreign error. The checks run in a fixed
// order so that an error matching several conditions always gets the
// same kind.
func classify(err error) Kind {
	var inner *Error
	if errors.As(err, &inner) && inner.Kind != Other {
		return inner.Kind
	}
	switch {
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return Timeout
	case errors.Is(err, os.ErrNotExist):
		return NotExist
	case errors.Is(err, os.ErrPermission):
		return NotAllowed
	}
	if t, ok := err.(interface {
		Timeout() bool
	}); ok && t.Timeout() {
		return Timeout
	}
	return Other
}

// Recover recovers any error into an *Error. If the passed-in Error is already
// an error, it is simply returned; otherwise it is wrapped in an error.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if err, ok := err.(*Error); ok {
		return err
	}
	return E(err).(*Error)
}

// Error returns a human readable string describing this error.
// It uses the separator defined by errors.Separator.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	e.writeError(&b)
	return b.String()
}

func (e *Error) writeError(b *bytes.Buffer) {
	if e.Message != "" {
		pad(b, ": ")
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Severity != Unknown {
		pad(b, " ")
		b.WriteByte('(')
		b.WriteString(e.Severity.String())
		b.WriteByte(')')
	}

	if e.Err == nil {
		return
	}
	if err, ok := e.Err.(*Error); ok {
		pad(b, Separator)
		b.WriteString(err.Error())
	} else {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
}

// Unwrap returns the error's cause, so that the standard library's
// errors.Is and errors.As traverse the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same kind. It lets
// callers write errors.Is(err, &errors.Error{Kind: errors.NotExist})
// with the standard library's errors package.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == Other {
		return false
	}
	return e.Kind == t.Kind
}

// Timeout tells whether this error is a timeout error.
func (e *Error) Timeout() bool {
	return e.Kind == Timeout
}

// Temporary tells whether this error is temporary.
func (e *Error) Temporary() bool {
	return e.Severity <= Temporary
}

// Is tells whether an error has a specified kind, except for the
// indeterminate kind Other. In the case an error has kind Other, the
// chain is traversed until a non-Other error is encountered.
func Is(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	return is(kind, Recover(err))
}

func is(kind Kind, e *Error) bool {
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		if e2, ok := e.Err.(*Error); ok {
			return is(kind, e2)
		}
	}
	return false
}

// KindOf returns the first non-Other kind in err's chain, or Other.
func KindOf(err error) Kind {
	for e := Recover(err); e != nil; {
		if e.Kind != Other {
			return e.Kind
		}
		next, ok := e.Err.(*Error)
		if !ok {
			break
		}
		e = next
	}
	return Other
}

// IsTemporary tells whether the provided error is likely temporary.
func IsTemporary(err error) bool {
	return Recover(err).Temporary()
}

// Match tells whether every nonempty field in err1
// matches the corresponding fields in err2. The comparison
// recurses on chained errors. Match is designed to aid in
// testing errors.
func Match(err1, err2 error) bool {
	var (
		e1 = Recover(err1)
		e2 = Recover(err2)
	)
	if e1.Kind != Other && e1.Kind != e2.Kind {
		return false
	}
	if e1.Severity != Unknown && e1.Severity != e2.Severity {
		return false
	}
	if e1.Message != "" && e1.Message != e2.Message {
		return false
	}
	if e1.Err != nil {
		if e2.Err == nil {
			return false
		}
		switch e1.Err.(type) {
		case *Error:
			return Match(e1.Err, e2.Err)
		default:
			return e1.Err.Error() == e2.Err.Error()
		}
	}
	return true
}

// Visit calls the given function for every error object in the chain, including
// itself.  Recursion stops after the function finds an error object of type
// other than *Error.
func Visit(err error, callback func(err error)) {
	callback(err)
	for {
		next, ok := err.(*Error)
		if !ok {
			break
		}
		err = next.Err
		callback(err)
	}
}

// New is synonymous with errors.New, and is provided here so that
// users need only import one errors package.
func New(msg string) error {
	return errors.New(msg)
}

func pad(b *bytes.Buffer, s string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(s)
}
