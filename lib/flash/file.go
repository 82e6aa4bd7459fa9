// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package flash

import (
	"bytes"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/badge/lib/fault"
)

// FileDevice is a Device backed by a fixed-size file. Reads go through
// a read-only shared memory map; writes and erases use pwrite so they
// never fault pages in for reading first.
//
// Reads are lock-free. Writes and erases are serialised internally, but
// callers are still expected to keep a single writer per region.
type FileDevice struct {
	mu       sync.Mutex
	fd       int
	data     []byte
	size     int64
	pageSize int64
}

// OpenFileDevice creates or opens the device file at path. A new file
// is sized to size and filled with Erased. An existing file must
// already be exactly size bytes; resizing means deleting the file and
// losing its contents.
func OpenFileDevice(path string, size, pageSize int64) (*FileDevice, error) {
	if err := checkGeometry(size, pageSize); err != nil {
		return nil, fmt.Errorf("flash device %s: %w", path, err)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR|unix.O_CLOEXEC, 0o600)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "open", fmt.Errorf("opening flash device %s: %w", path, err))
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fault.Wrap(fault.KindIO, "open", fmt.Errorf("stating flash device: %w", err))
	}

	switch {
	case stat.Size == 0:
		if err := formatFile(fd, size, pageSize); err != nil {
			unix.Close(fd)
			return nil, err
		}
	case stat.Size != size:
		unix.Close(fd)
		return nil, fmt.Errorf("flash device %s is %d bytes but %d was requested; delete it to resize",
			path, stat.Size, size)
	}

	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fault.Wrap(fault.KindIO, "open", fmt.Errorf("memory-mapping flash device: %w", err))
	}

	return &FileDevice{
		fd:       fd,
		data:     data,
		size:     size,
		pageSize: pageSize,
	}, nil
}

// formatFile grows an empty file to size and fills it with Erased.
func formatFile(fd int, size, pageSize int64) error {
	if err := unix.Ftruncate(fd, size); err != nil {
		return fault.Wrap(fault.KindIO, "format", fmt.Errorf("truncating flash device to %d bytes: %w", size, err))
	}
	page := bytes.Repeat([]byte{Erased}, int(pageSize))
	for off := int64(0); off < size; off += pageSize {
		if err := pwriteAll(fd, page, off); err != nil {
			return fault.Wrap(fault.KindIO, "format", err)
		}
	}
	if err := unix.Fsync(fd); err != nil {
		return fault.Wrap(fault.KindIO, "format", fmt.Errorf("syncing formatted flash device: %w", err))
	}
	return nil
}

// ReadAt reads from the memory map. A SIGBUS from a failing backing
// disk is converted into an error instead of crashing the process.
func (d *FileDevice) ReadAt(p []byte, off int64) (count int, err error) {
	if off < 0 || off >= d.size {
		return 0, io.EOF
	}

	old := debug.SetPanicOnFault(true)
	defer func() {
		debug.SetPanicOnFault(old)
		if r := recover(); r != nil {
			err = fault.New(fault.KindIO, "read", "page fault at offset %d: %v", off, r)
		}
	}()

	count = copy(p, d.data[off:])
	if count < len(p) {
		return count, io.EOF
	}
	return count, nil
}

// WriteAt programs p at off after checking every target byte can take
// the new value without an erase.
func (d *FileDevice) WriteAt(p []byte, off int64) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkRange("write", off, int64(len(p)), d.size); err != nil {
		return 0, err
	}
	if err := checkProgrammable(d.data[off:off+int64(len(p))], p, off); err != nil {
		return 0, err
	}
	if err := pwriteAll(d.fd, p, off); err != nil {
		return 0, fault.Wrap(fault.KindIO, "write", err)
	}
	return len(p), nil
}

// Erase fills a page-aligned range with Erased.
func (d *FileDevice) Erase(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := checkErase(off, length, d.size, d.pageSize); err != nil {
		return err
	}
	page := bytes.Repeat([]byte{Erased}, int(d.pageSize))
	for position := off; position < off+length; position += d.pageSize {
		if err := pwriteAll(d.fd, page, position); err != nil {
			return fault.Wrap(fault.KindIO, "erase", err)
		}
	}
	return nil
}

func (d *FileDevice) PageSize() int64 { return d.pageSize }

func (d *FileDevice) Size() int64 { return d.size }

// Sync flushes writes and erases to the backing file.
func (d *FileDevice) Sync() error {
	if err := unix.Fsync(d.fd); err != nil {
		return fault.Wrap(fault.KindIO, "sync", err)
	}
	return nil
}

// Close unmaps and closes the device file.
func (d *FileDevice) Close() error {
	var firstErr error
	if err := unix.Munmap(d.data); err != nil {
		firstErr = fmt.Errorf("unmapping flash device: %w", err)
	}
	if err := unix.Close(d.fd); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing flash device: %w", err)
	}
	d.data = nil
	d.fd = -1
	return firstErr
}

func pwriteAll(fd int, p []byte, off int64) error {
	for len(p) > 0 {
		written, err := unix.Pwrite(fd, p, off)
		if err != nil {
			return fmt.Errorf("pwrite at offset %d: %w", off, err)
		}
		p = p[written:]
		off += int64(written)
	}
	return nil
}
