// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fault defines the error taxonomy shared by the image store,
// the downloader, and the install flow.
//
// Every failure surfaced by those packages is an [*Error] carrying a
// [Kind]. Callers branch on the kind with errors.Is against the
// sentinel values:
//
//	if errors.Is(err, fault.ErrCapacity) {
//	    // name taken or storage full
//	}
//
// The mailbox never fails in the ordinary sense and does not use this
// package for classification; an unrecognised register value simply
// reads as "no intent".
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// KindIO is an open/read/write failure of a file sink or the
	// storage device.
	KindIO Kind = iota + 1

	// KindCapacity is a name collision or lack of room for a new
	// entry (no contiguous space, no free handle).
	KindCapacity

	// KindProtocol is a storage write on a region that was not erased,
	// or an offset/length outside the reserved range.
	KindProtocol

	// KindMemory is an allocation failure for a memory sink.
	KindMemory

	// KindOverrun is a transfer that delivered more bytes than its
	// declared size (or any bytes to a memory sink with no size).
	KindOverrun

	// KindTransport is an error reported by the network transport.
	KindTransport

	// KindNotFound is a lookup of a name or handle with no complete
	// entry behind it.
	KindNotFound
)

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrIO        = &Error{Kind: KindIO}
	ErrCapacity  = &Error{Kind: KindCapacity}
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrMemory    = &Error{Kind: KindMemory}
	ErrOverrun   = &Error{Kind: KindOverrun}
	ErrTransport = &Error{Kind: KindTransport}
	ErrNotFound  = &Error{Kind: KindNotFound}
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io fault"
	case KindCapacity:
		return "capacity fault"
	case KindProtocol:
		return "protocol fault"
	case KindMemory:
		return "memory fault"
	case KindOverrun:
		return "overrun fault"
	case KindTransport:
		return "transport fault"
	case KindNotFound:
		return "not found"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Error is a classified failure. Op names the operation that failed
// ("create", "erase", "write", "download", ...). Err is the underlying
// cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns an *Error of the given kind with a formatted cause.
func New(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err under kind. Returns nil when err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind. This makes
// every *Error match its sentinel regardless of Op and cause.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}
