// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package imagestore

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"
)

// Handle identifies an installed image. Handles are assigned by the
// store, stay stable for the image's lifetime, and fit in the boot
// mailbox payload byte.
type Handle uint8

// MaxHandles is the number of distinct handles.
const MaxHandles = 256

// MaxNameLength bounds image names.
const MaxNameLength = 48

// MaxTitleLength bounds display titles.
const MaxTitleLength = 64

// StoredImage is the metadata of one completely installed image.
type StoredImage struct {
	Handle  Handle `json:"handle"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Version uint16 `json:"version"`

	// Size is the image length in bytes.
	Size int64 `json:"size"`

	// Offset is where the image starts on the flash device. Always
	// page aligned.
	Offset int64 `json:"offset"`

	Digest      Digest    `json:"digest"`
	InstalledAt time.Time `json:"installed_at"`
}

// Digest is the keyed BLAKE3 hash of an image's bytes.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// MarshalText encodes the digest as hex for JSON and CBOR exports.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("parsing image digest: %w", err)
	}
	if len(decoded) != len(d) {
		return fmt.Errorf("image digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return nil
}

// imageDomainKey separates image digests from any other BLAKE3 use.
// The bytes are the ASCII domain name, zero padded.
var imageDomainKey = [32]byte{
	'b', 'u', 'r', 'e', 'a', 'u', '.', 'b', 'a', 'd', 'g', 'e', '.',
	'i', 'm', 'a', 'g', 'e',
}

// hashImage streams r through the image-domain keyed hash.
func hashImage(r io.Reader) (Digest, error) {
	hasher, err := blake3.NewKeyed(imageDomainKey[:])
	if err != nil {
		return Digest{}, fmt.Errorf("initializing image hash: %w", err)
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, err
	}
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest, nil
}

// HashBytes returns the digest an image with these contents will have
// once installed. Installers use it to check a download before
// committing it.
func HashBytes(data []byte) Digest {
	hasher, err := blake3.NewKeyed(imageDomainKey[:])
	if err != nil {
		panic("imagestore: 32-byte key rejected: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	copy(digest[:], hasher.Sum(nil))
	return digest
}
