// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"io"
	"math"
	"strings"

	"github.com/bureau-foundation/badge/lib/fault"
)

// ContentLengthHeader is the header that declares the transfer size.
// Matched case-insensitively.
const ContentLengthHeader = "Content-Length"

// DefaultMemoryLimit caps memory transfers created with a zero or
// negative limit. A memory sink is never unbounded: the declared size
// comes from the server.
const DefaultMemoryLimit = 16 << 20

type sinkKind uint8

const (
	sinkFile sinkKind = iota + 1
	sinkMemory
)

// Transfer is the state of one transfer being driven by transport
// events. It routes data into its sink and decides, at receive time,
// whether the transfer is still healthy.
//
// The first failure is sticky: once a Transfer has failed it ignores
// further headers and data, recording only Finished and Disconnected
// so the transport can complete its own teardown.
//
// A Transfer is not safe for concurrent use. Transports deliver events
// sequentially, which is all it needs.
type Transfer struct {
	sink sinkKind

	// File sink.
	file        io.Writer
	maxFileSize int64

	// Memory sink.
	slot        *[]byte
	buffer      []byte
	memoryLimit int64

	declared    int64
	hasDeclared bool
	received    int64

	connected    bool
	finished     bool
	disconnected bool
	failure      *fault.Error
}

// NewFileTransfer returns a transfer that appends every data chunk to
// w. By default the file is unbounded: no declared size is enforced.
func NewFileTransfer(w io.Writer) *Transfer {
	return &Transfer{sink: sinkFile, file: w}
}

// LimitFileSize makes a file transfer fail with an overrun fault once
// more than limit bytes arrive. Zero or negative removes the limit.
func (t *Transfer) LimitFileSize(limit int64) *Transfer {
	t.maxFileSize = limit
	return t
}

// NewMemoryTransfer returns a transfer that stores the body in a
// buffer of exactly the declared size. The buffer is allocated when
// the Content-Length header arrives and published through slot, which
// the caller owns. limit is the largest buffer the transfer may
// allocate; a larger declared size fails with a memory fault. Zero or
// negative selects DefaultMemoryLimit.
func NewMemoryTransfer(slot *[]byte, limit int64) *Transfer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Transfer{sink: sinkMemory, slot: slot, memoryLimit: limit}
}

// Handle applies one event.
func (t *Transfer) Handle(event Event) {
	switch event.Kind {
	case EventConnected:
		t.connected = true
	case EventHeader:
		if t.failure == nil {
			t.handleHeader(event.Key, event.Value)
		}
	case EventData:
		if t.failure == nil {
			t.handleData(event.Data)
		}
	case EventFinished:
		t.finished = true
	case EventDisconnected:
		t.disconnected = true
	case EventError:
		if t.failure == nil {
			if event.Err == nil {
				t.fail(fault.New(fault.KindTransport, "download", "transport reported an error"))
			} else {
				t.fail(&fault.Error{Kind: fault.KindTransport, Op: "download", Err: event.Err})
			}
		}
	}
}

func (t *Transfer) handleHeader(key, value string) {
	if !strings.EqualFold(key, ContentLengthHeader) {
		return
	}
	size := parseLength(value)

	if t.hasDeclared {
		if size != t.declared {
			t.fail(fault.New(fault.KindTransport, "download",
				"conflicting %s headers: %d then %d", ContentLengthHeader, t.declared, size))
		}
		return
	}
	t.declared = size
	t.hasDeclared = true

	if t.sink != sinkMemory || size <= 0 {
		return
	}
	if size > t.memoryLimit || uint64(size) > math.MaxInt {
		t.fail(fault.New(fault.KindMemory, "download",
			"declared size %d exceeds the %d-byte memory limit", size, t.memoryLimit))
		return
	}
	t.buffer = make([]byte, size)
	*t.slot = t.buffer
}

func (t *Transfer) handleData(chunk []byte) {
	length := int64(len(chunk))
	switch t.sink {
	case sinkFile:
		if t.maxFileSize > 0 && t.received+length > t.maxFileSize {
			t.fail(fault.New(fault.KindOverrun, "download",
				"received %d bytes, more than the %d-byte file limit", t.received+length, t.maxFileSize))
			return
		}
		if length == 0 {
			return
		}
		if _, err := t.file.Write(chunk); err != nil {
			t.fail(&fault.Error{Kind: fault.KindIO, Op: "download", Err: err})
			return
		}
		t.received += length

	case sinkMemory:
		if !t.hasDeclared {
			if length > 0 {
				t.fail(fault.New(fault.KindOverrun, "download",
					"%d bytes arrived before any %s; no buffer to hold them", length, ContentLengthHeader))
			}
			return
		}
		if t.received+length > t.declared {
			t.fail(fault.New(fault.KindOverrun, "download",
				"received %d bytes, more than the declared %d", t.received+length, t.declared))
			return
		}
		copy(t.buffer[t.received:], chunk)
		t.received += length
	}
}

func (t *Transfer) fail(err *fault.Error) {
	if t.failure == nil {
		t.failure = err
	}
}

// Success reports whether the transfer finished with no transport
// error, memory fault, overrun, or sink write failure. Finished alone
// is not success.
func (t *Transfer) Success() bool {
	return t.finished && t.failure == nil
}

// Err returns the first failure, or nil if none has occurred. A
// transfer that has not failed but never finished is not successful
// either; check Success.
func (t *Transfer) Err() error {
	if t.failure == nil {
		return nil
	}
	return t.failure
}

// Received is the number of body bytes accepted into the sink.
func (t *Transfer) Received() int64 { return t.received }

// DeclaredSize returns the parsed Content-Length, if one arrived.
func (t *Transfer) DeclaredSize() (int64, bool) { return t.declared, t.hasDeclared }

// Finished reports whether the transport signalled the end of the
// body.
func (t *Transfer) Finished() bool { return t.finished }

// Disconnected reports whether the transport signalled connection
// teardown.
func (t *Transfer) Disconnected() bool { return t.disconnected }

// Release drops the memory buffer of an unsuccessful memory transfer,
// clearing the caller's slot. It is a no-op for successful transfers
// and for file transfers.
func (t *Transfer) Release() {
	if t.sink != sinkMemory || t.Success() {
		return
	}
	t.buffer = nil
	*t.slot = nil
}

// parseLength parses a header value leniently: optional leading
// whitespace and sign, then as many decimal digits as follow. Anything
// unparseable is 0. Values that overflow saturate.
func parseLength(value string) int64 {
	index := 0
	for index < len(value) && isSpace(value[index]) {
		index++
	}
	negative := false
	if index < len(value) && (value[index] == '+' || value[index] == '-') {
		negative = value[index] == '-'
		index++
	}
	var result int64
	for ; index < len(value) && value[index] >= '0' && value[index] <= '9'; index++ {
		digit := int64(value[index] - '0')
		if result > (math.MaxInt64-digit)/10 {
			result = math.MaxInt64
			break
		}
		result = result*10 + digit
	}
	if negative {
		return -result
	}
	return result
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
