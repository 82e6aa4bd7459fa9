// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"fmt"
)

// EventKind identifies a transport event.
type EventKind uint8

const (
	EventConnected EventKind = iota + 1
	EventHeader
	EventData
	EventFinished
	EventDisconnected
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventHeader:
		return "header"
	case EventData:
		return "data"
	case EventFinished:
		return "finished"
	case EventDisconnected:
		return "disconnected"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is one step of a transfer as reported by a Transport.
//
// Data is only valid for the duration of the callback that receives
// it; transports reuse the buffer for the next chunk.
type Event struct {
	Kind EventKind

	// Key and Value are set for EventHeader.
	Key   string
	Value string

	// Data is set for EventData. It may be empty.
	Data []byte

	// Err is set for EventError.
	Err error
}

func Connected() Event { return Event{Kind: EventConnected} }

func Header(key, value string) Event { return Event{Kind: EventHeader, Key: key, Value: value} }

func Data(chunk []byte) Event { return Event{Kind: EventData, Data: chunk} }

func Finished() Event { return Event{Kind: EventFinished} }

func Disconnected() Event { return Event{Kind: EventDisconnected} }

func Failed(err error) Event { return Event{Kind: EventError, Err: err} }

// Request describes what to fetch.
type Request struct {
	URL string
}

// Transport performs one transfer and reports it as an ordered event
// stream.
//
// Perform calls emit synchronously from the calling goroutine, never
// concurrently, and returns after the last event. Events of one
// transfer are never interleaved with another's. A transport that
// fails should emit an EventError before returning; the returned error
// is also reported so that callers without an event consumer see it.
type Transport interface {
	Perform(ctx context.Context, request Request, emit func(Event)) error
}
