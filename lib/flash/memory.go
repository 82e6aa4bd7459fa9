// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package flash

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// MemoryDevice is a Device held in memory. It starts fully erased.
//
// MemoryDevice is safe for concurrent use.
type MemoryDevice struct {
	mu       sync.RWMutex
	data     []byte
	pageSize int64
}

// NewMemoryDevice returns an erased in-memory device.
func NewMemoryDevice(size, pageSize int64) (*MemoryDevice, error) {
	if err := checkGeometry(size, pageSize); err != nil {
		return nil, fmt.Errorf("memory device: %w", err)
	}
	return &MemoryDevice{
		data:     bytes.Repeat([]byte{Erased}, int(size)),
		pageSize: pageSize,
	}, nil
}

// ReadAt copies device bytes into p.
func (d *MemoryDevice) ReadAt(p []byte, off int64) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if off < 0 || off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	count := copy(p, d.data[off:])
	if count < len(p) {
		return count, io.EOF
	}
	return count, nil
}

// WriteAt programs p at off.
func (d *MemoryDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange("write", off, int64(len(p)), int64(len(d.data))); err != nil {
		return 0, err
	}
	target := d.data[off : off+int64(len(p))]
	if err := checkProgrammable(target, p, off); err != nil {
		return 0, err
	}
	return copy(target, p), nil
}

// Erase resets a page-aligned range.
func (d *MemoryDevice) Erase(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkErase(off, length, int64(len(d.data)), d.pageSize); err != nil {
		return err
	}
	region := d.data[off : off+length]
	for i := range region {
		region[i] = Erased
	}
	return nil
}

func (d *MemoryDevice) PageSize() int64 { return d.pageSize }

func (d *MemoryDevice) Size() int64 { return int64(len(d.data)) }

func (d *MemoryDevice) Sync() error { return nil }

func (d *MemoryDevice) Close() error { return nil }
