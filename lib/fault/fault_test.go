// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fault

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMatchesSentinelOfSameKind(t *testing.T) {
	err := New(KindCapacity, "create", "name %q already exists", "x")
	if !errors.Is(err, ErrCapacity) {
		t.Errorf("errors.Is(%v, ErrCapacity) = false, want true", err)
	}
	if errors.Is(err, ErrProtocol) {
		t.Errorf("errors.Is(%v, ErrProtocol) = true, want false", err)
	}
}

func TestWrappedErrorKeepsKind(t *testing.T) {
	inner := Wrap(KindIO, "write", io.ErrShortWrite)
	outer := fmt.Errorf("installing %q: %w", "game", inner)

	if !errors.Is(outer, ErrIO) {
		t.Errorf("wrapped error lost its kind: %v", outer)
	}
	if !errors.Is(outer, io.ErrShortWrite) {
		t.Errorf("wrapped error lost its cause: %v", outer)
	}
	if got := KindOf(outer); got != KindIO {
		t.Errorf("KindOf = %v, want %v", got, KindIO)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindIO, "write", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", got)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{&Error{Kind: KindOverrun}, "overrun fault"},
		{&Error{Kind: KindMemory, Op: "download"}, "download: memory fault"},
		{&Error{Kind: KindTransport, Err: io.EOF}, "transport fault: EOF"},
		{&Error{Kind: KindProtocol, Op: "write", Err: io.EOF}, "write: protocol fault: EOF"},
	}
	for _, test := range tests {
		if got := test.err.Error(); got != test.want {
			t.Errorf("Error() = %q, want %q", got, test.want)
		}
	}
}
