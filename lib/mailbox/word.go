// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mailbox

import "fmt"

// Tag is the top byte of the mailbox word.
type Tag uint8

const (
	// TagNone marks an empty mailbox. A cold boot reads as TagNone
	// because the register is zeroed.
	TagNone Tag = 0x00

	// TagBootRequest asks the next boot to launch the handle in the
	// low byte.
	TagBootRequest Tag = 0xA5

	// TagCrashMark reports that the app whose handle is in the low
	// byte crashed during the previous boot.
	TagCrashMark Tag = 0xA6
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagBootRequest:
		return "boot-request"
	case TagCrashMark:
		return "crash-mark"
	default:
		return fmt.Sprintf("tag(0x%02X)", uint8(t))
	}
}

const (
	tagShift    = 24
	payloadMask = 0x000000FF
)

// MaxHandle is the largest handle that fits in the payload byte.
const MaxHandle = 0xFF

// Encode packs a tag and a handle into a register word. TagNone always
// encodes as zero regardless of handle.
func Encode(tag Tag, handle uint8) uint32 {
	if tag == TagNone {
		return 0
	}
	return uint32(tag)<<tagShift | uint32(handle)
}

// Kind is the boot-time interpretation of a register word.
type Kind uint8

const (
	// KindNone: no intent. Normal boot.
	KindNone Kind = iota
	// KindResume: a boot request for Handle.
	KindResume
	// KindCrash: the app Handle crashed during the previous boot.
	KindCrash
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindResume:
		return "resume"
	case KindCrash:
		return "crash"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Classification is the result of reading the mailbox at boot.
type Classification struct {
	Kind   Kind
	Handle uint8
}

// Resume reports whether the word named an app handle, either as a
// boot request or as a crash mark. Both carry a handle; callers that
// only care about "is there a handle to act on" use this.
func (c Classification) Resume() bool {
	return c.Kind != KindNone
}

// Decode classifies a raw register word by its top byte. A recognised
// tag yields the low byte as the handle; bits 8..23 are ignored.
// Any other top byte classifies as KindNone.
func Decode(word uint32) Classification {
	handle := uint8(word & payloadMask)
	switch Tag(word >> tagShift) {
	case TagBootRequest:
		return Classification{Kind: KindResume, Handle: handle}
	case TagCrashMark:
		return Classification{Kind: KindCrash, Handle: handle}
	default:
		return Classification{Kind: KindNone}
	}
}
