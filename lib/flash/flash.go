// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package flash models page-erasable, byte-addressable storage with NOR
// semantics: an erased byte reads 0xFF, a write can only clear bits,
// and the only way to set bits again is to erase the whole covering
// page.
//
// [Device] is the interface the image store programs against.
// [FileDevice] backs it with a fixed-size file; [MemoryDevice] with a
// byte slice.
package flash

import (
	"fmt"
	"io"

	"github.com/bureau-foundation/badge/lib/fault"
)

// Erased is the value of every byte in a freshly erased page.
const Erased byte = 0xFF

// DefaultPageSize matches the flash MMU page of the original hardware.
const DefaultPageSize int64 = 64 * 1024

// Device is a page-erasable storage device.
type Device interface {
	io.ReaderAt

	// WriteAt programs len(p) bytes at off. It fails with a protocol
	// fault if the range is outside the device or any byte would need
	// a bit set that is currently clear (the page was not erased).
	WriteAt(p []byte, off int64) (int, error)

	// Erase resets [off, off+length) to Erased. Both must be multiples
	// of PageSize.
	Erase(off, length int64) error

	// PageSize is the erase unit in bytes. Always a power of two.
	PageSize() int64

	// Size is the device capacity in bytes. Always a multiple of
	// PageSize.
	Size() int64

	Sync() error
	Close() error
}

// ValidPageSize reports whether pageSize is a positive power of two.
func ValidPageSize(pageSize int64) bool {
	return pageSize > 0 && pageSize&(pageSize-1) == 0
}

// RoundUp rounds size up to the next multiple of pageSize, which must
// be a power of two. Erasing anything less than the rounded length
// leaves the tail of the last page undefined.
func RoundUp(size, pageSize int64) int64 {
	return (size + pageSize - 1) &^ (pageSize - 1)
}

// checkGeometry validates a device's size and page size.
func checkGeometry(size, pageSize int64) error {
	if !ValidPageSize(pageSize) {
		return fmt.Errorf("page size %d is not a positive power of two", pageSize)
	}
	if size <= 0 || size%pageSize != 0 {
		return fmt.Errorf("device size %d is not a positive multiple of page size %d", size, pageSize)
	}
	return nil
}

// checkRange returns a protocol fault when [off, off+length) does not
// fit on a device of the given size.
func checkRange(operation string, off, length, size int64) error {
	if off < 0 || length < 0 || off > size || length > size-off {
		return fault.New(fault.KindProtocol, operation,
			"range [%d, %d) exceeds device size %d", off, off+length, size)
	}
	return nil
}

// checkErase validates an erase request.
func checkErase(off, length, size, pageSize int64) error {
	if off%pageSize != 0 || length%pageSize != 0 {
		return fault.New(fault.KindProtocol, "erase",
			"range [%d, %d) is not aligned to page size %d", off, off+length, pageSize)
	}
	return checkRange("erase", off, length, size)
}

// checkProgrammable returns a protocol fault if writing data over
// current would require setting a bit that is clear.
func checkProgrammable(current, data []byte, off int64) error {
	for i, value := range data {
		if value&^current[i] != 0 {
			return fault.New(fault.KindProtocol, "write",
				"byte at offset %d is 0x%02X and cannot be programmed to 0x%02X without an erase",
				off+int64(i), current[i], value)
		}
	}
	return nil
}
