// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// wordSize is the on-disk size of the register file.
const wordSize = 4

// FileRegister stores the mailbox word in a reserved 4-byte file,
// little-endian. Writes are atomic (temporary file, fsync, rename,
// parent directory fsync) so a power loss mid-write leaves either the
// old word or the new one, never a torn value.
//
// A missing file reads as 0, which is what a cold boot looks like.
type FileRegister struct {
	path string
}

// NewFileRegister returns a register backed by path. The parent
// directory must exist; the file itself is created on first Store.
func NewFileRegister(path string) *FileRegister {
	return &FileRegister{path: path}
}

// Path returns the register file path.
func (r *FileRegister) Path() string { return r.path }

// Load reads the word. A file of the wrong length is reported as an
// error; Mailbox.Classify turns that into KindNone.
func (r *FileRegister) Load() (uint32, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading mailbox register %s: %w", r.path, err)
	}
	if len(data) != wordSize {
		return 0, fmt.Errorf("mailbox register %s is %d bytes, want %d", r.path, len(data), wordSize)
	}
	return binary.LittleEndian.Uint32(data), nil
}

// Store atomically replaces the word.
func (r *FileRegister) Store(word uint32) error {
	var data [wordSize]byte
	binary.LittleEndian.PutUint32(data[:], word)

	temporaryPath := r.path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary mailbox register: %w", err)
	}

	if _, err := file.Write(data[:]); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary mailbox register: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary mailbox register: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary mailbox register: %w", err)
	}

	if err := os.Rename(temporaryPath, r.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming mailbox register into place: %w", err)
	}

	// The rename is only durable once the directory entry is flushed.
	parentDirectory, err := os.Open(filepath.Dir(r.path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}

// MemoryRegister keeps the word in process memory. It survives
// nothing; tests and in-process simulations use it to stand in for the
// persisted register.
type MemoryRegister struct {
	word atomic.Uint32
}

// Load returns the stored word.
func (r *MemoryRegister) Load() (uint32, error) { return r.word.Load(), nil }

// Store replaces the word.
func (r *MemoryRegister) Store(word uint32) error {
	r.word.Store(word)
	return nil
}
