// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack decodes app packages as published by an app hub. A
// package is a raw image, a zstd frame, or an lz4 frame; the format is
// detected from the leading magic number, so hubs can compress
// whichever way suits them.
package pack

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bureau-foundation/badge/lib/fault"
)

// Format identifies a package encoding.
type Format uint8

const (
	FormatRaw Format = iota
	FormatZstd
	FormatLZ4
)

func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatZstd:
		return "zstd"
	case FormatLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// ParseFormat parses the String form of a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "raw", "none":
		return FormatRaw, nil
	case "zstd":
		return FormatZstd, nil
	case "lz4":
		return FormatLZ4, nil
	default:
		return 0, fmt.Errorf("unknown package format %q (want raw, zstd, or lz4)", name)
	}
}

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

const magicLength = 4

// Detect returns the format announced by the first bytes of a package.
// Anything without a known magic number is raw.
func Detect(prefix []byte) Format {
	switch {
	case bytes.HasPrefix(prefix, zstdMagic):
		return FormatZstd
	case bytes.HasPrefix(prefix, lz4Magic):
		return FormatLZ4
	default:
		return FormatRaw
	}
}

// NewReader detects the format of r and returns a reader of the
// decoded image. Close releases decoder resources; it does not close r.
func NewReader(r io.Reader) (io.ReadCloser, Format, error) {
	buffered := bufio.NewReader(r)
	prefix, err := buffered.Peek(magicLength)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, FormatRaw, fault.Wrap(fault.KindIO, "decode", err)
	}

	format := Detect(prefix)
	switch format {
	case FormatZstd:
		decoder, err := zstd.NewReader(buffered, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, format, fault.Wrap(fault.KindProtocol, "decode", fmt.Errorf("zstd: %w", err))
		}
		return decoder.IOReadCloser(), format, nil
	case FormatLZ4:
		return io.NopCloser(lz4.NewReader(buffered)), format, nil
	default:
		return io.NopCloser(buffered), format, nil
	}
}

// Decode decodes a package held in memory. limit bounds the decoded
// size; a larger image fails with a capacity fault before more than
// limit+1 bytes are produced. Zero or negative means no limit.
func Decode(data []byte, limit int64) ([]byte, Format, error) {
	format := Detect(data)
	if format == FormatRaw {
		if limit > 0 && int64(len(data)) > limit {
			return nil, format, tooLarge(int64(len(data)), limit)
		}
		return data, format, nil
	}

	reader, _, err := NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, format, err
	}
	defer reader.Close()

	var decoded bytes.Buffer
	if _, err := copyLimited(&decoded, reader, limit, format); err != nil {
		return nil, format, err
	}
	return decoded.Bytes(), format, nil
}

// DecodeFile decodes the package at source into the file at
// destination and returns the decoded size. destination is written
// through a temporary file and renamed into place on success.
func DecodeFile(source, destination string, limit int64) (size int64, format Format, err error) {
	input, err := os.Open(source)
	if err != nil {
		return 0, FormatRaw, fault.Wrap(fault.KindIO, "decode", err)
	}
	defer input.Close()

	reader, format, err := NewReader(input)
	if err != nil {
		return 0, format, err
	}
	defer reader.Close()

	output, err := os.CreateTemp(filepath.Dir(destination), "."+filepath.Base(destination)+".tmp-*")
	if err != nil {
		return 0, format, fault.Wrap(fault.KindIO, "decode", err)
	}
	outputPath := output.Name()
	defer func() {
		if err != nil {
			output.Close()
			os.Remove(outputPath)
		}
	}()

	size, err = copyLimited(output, reader, limit, format)
	if err != nil {
		return 0, format, err
	}
	if err := output.Close(); err != nil {
		return 0, format, fault.Wrap(fault.KindIO, "decode", err)
	}
	if err := os.Rename(outputPath, destination); err != nil {
		return 0, format, fault.Wrap(fault.KindIO, "decode", err)
	}
	return size, format, nil
}

// copyLimited copies at most limit bytes and fails if the source holds
// more.
func copyLimited(w io.Writer, r io.Reader, limit int64, format Format) (int64, error) {
	source := r
	if limit > 0 {
		source = io.LimitReader(r, limit+1)
	}
	copied, err := io.Copy(w, source)
	if err != nil {
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return copied, fault.Wrap(fault.KindIO, "decode", err)
		}
		return copied, fault.Wrap(fault.KindProtocol, "decode", fmt.Errorf("corrupt %s package: %w", format, err))
	}
	if limit > 0 && copied > limit {
		return copied, tooLarge(copied, limit)
	}
	return copied, nil
}

func tooLarge(size, limit int64) error {
	return fault.New(fault.KindCapacity, "decode", "decoded image exceeds the %d-byte limit (at least %d bytes)", limit, size)
}

// Encode writes r to w in the given format. Hubs use it to publish
// packages; the badge only decodes.
func Encode(w io.Writer, r io.Reader, format Format) error {
	switch format {
	case FormatRaw:
		_, err := io.Copy(w, r)
		return err
	case FormatZstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return fmt.Errorf("zstd: %w", err)
		}
		if _, err := io.Copy(encoder, r); err != nil {
			encoder.Close()
			return err
		}
		return encoder.Close()
	case FormatLZ4:
		encoder := lz4.NewWriter(w)
		if _, err := io.Copy(encoder, r); err != nil {
			encoder.Close()
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported package format %v", format)
	}
}
