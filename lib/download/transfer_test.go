// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/bureau-foundation/badge/lib/fault"
)

func feed(transfer *Transfer, events ...Event) {
	for _, event := range events {
		transfer.Handle(event)
	}
}

func chunk(size int, seed byte) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = seed + byte(i)
	}
	return data
}

func TestMemoryTransferDeclaredSize(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)

	events := []Event{Connected(), Header("Content-Length", "1000")}
	var want []byte
	for i := range 5 {
		part := chunk(200, byte(i*40))
		want = append(want, part...)
		events = append(events, Data(part))
	}
	events = append(events, Finished(), Disconnected())
	feed(transfer, events...)

	if !transfer.Success() {
		t.Fatalf("Success() = false, err = %v", transfer.Err())
	}
	if transfer.Received() != 1000 {
		t.Errorf("Received() = %d, want 1000", transfer.Received())
	}
	if !bytes.Equal(slot, want) {
		t.Error("buffer contents differ from delivered data")
	}
}

func TestMemoryTransferWithoutDeclaredSizeOverruns(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer, Connected(), Data(chunk(50, 0)), Finished(), Disconnected())

	if transfer.Success() {
		t.Fatal("Success() = true for data with no declared size")
	}
	if !errors.Is(transfer.Err(), fault.ErrOverrun) {
		t.Errorf("Err() = %v, want overrun fault", transfer.Err())
	}
	if slot != nil {
		t.Errorf("slot holds %d bytes; nothing should have been allocated", len(slot))
	}
}

func TestMemoryTransferOverrunStopsCopying(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer,
		Header("content-length", "100"),
		Data(chunk(60, 1)),
		Data(chunk(60, 2)),
		Data(chunk(10, 3)),
		Finished(),
	)

	if !errors.Is(transfer.Err(), fault.ErrOverrun) {
		t.Fatalf("Err() = %v, want overrun fault", transfer.Err())
	}
	if len(slot) != 100 || cap(slot) != 100 {
		t.Fatalf("buffer len %d cap %d, want exactly 100", len(slot), cap(slot))
	}
	// The overrunning chunk was not copied, even partially.
	if !bytes.Equal(slot[:60], chunk(60, 1)) {
		t.Error("first chunk corrupted")
	}
	if !bytes.Equal(slot[60:], make([]byte, 40)) {
		t.Error("bytes of the overrunning chunk were copied")
	}
	if transfer.Received() != 60 {
		t.Errorf("Received() = %d, want 60", transfer.Received())
	}
}

func TestMemoryTransferZeroDeclaredSize(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", "0"), Data(nil), Finished())
	if !transfer.Success() {
		t.Fatalf("empty body failed: %v", transfer.Err())
	}
	if slot != nil {
		t.Error("declared size 0 allocated a buffer")
	}

	transfer = NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", "0"), Data([]byte{1}), Finished())
	if !errors.Is(transfer.Err(), fault.ErrOverrun) {
		t.Errorf("data past declared 0: Err() = %v, want overrun fault", transfer.Err())
	}
}

func TestMemoryTransferMemoryLimit(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 4096)
	feed(transfer, Header("Content-Length", "4097"), Data(chunk(10, 0)), Finished(), Disconnected())

	if !errors.Is(transfer.Err(), fault.ErrMemory) {
		t.Fatalf("Err() = %v, want memory fault", transfer.Err())
	}
	if slot != nil {
		t.Error("buffer allocated past the memory limit")
	}
	// Later events are ignored but bookkeeping continues.
	if !transfer.Finished() || !transfer.Disconnected() {
		t.Error("Finished/Disconnected not recorded after failure")
	}
	if transfer.Received() != 0 {
		t.Errorf("Received() = %d after memory fault, want 0", transfer.Received())
	}
}

func TestMemoryTransferDefaultLimit(t *testing.T) {
	tests := []struct {
		name     string
		declared string
	}{
		{"max int64", "9223372036854775807"},
		{"one terabyte", strconv.FormatInt(1<<40, 10)},
		{"one past the default", strconv.Itoa(DefaultMemoryLimit + 1)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var slot []byte
			transfer := NewMemoryTransfer(&slot, 0)
			feed(transfer, Connected(), Header("Content-Length", test.declared), Finished(), Disconnected())

			if !errors.Is(transfer.Err(), fault.ErrMemory) {
				t.Fatalf("Err() = %v, want memory fault", transfer.Err())
			}
			if slot != nil {
				t.Errorf("buffer of %d bytes allocated", len(slot))
			}
			if transfer.Success() {
				t.Error("Success() = true after a memory fault")
			}
		})
	}

	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", strconv.Itoa(DefaultMemoryLimit)))
	if transfer.Err() != nil || len(slot) != DefaultMemoryLimit {
		t.Errorf("declared size at the default limit: err %v, buffer %d bytes", transfer.Err(), len(slot))
	}
}

func TestFinishedAloneIsNotSuccess(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", "10"), Data(chunk(10, 0)), Failed(errors.New("reset")), Finished())
	if transfer.Success() {
		t.Error("Success() = true after a transport error")
	}
	if !errors.Is(transfer.Err(), fault.ErrTransport) {
		t.Errorf("Err() = %v, want transport fault", transfer.Err())
	}

	transfer = NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", "10"), Data(chunk(10, 0)))
	if transfer.Success() {
		t.Error("Success() = true without Finished")
	}
	if transfer.Err() != nil {
		t.Errorf("Err() = %v for an unfinished but healthy transfer", transfer.Err())
	}
}

func TestAdversarialOrderings(t *testing.T) {
	tests := []struct {
		name    string
		events  []Event
		success bool
		kind    fault.Kind
	}{
		{
			name:   "data before headers",
			events: []Event{Connected(), Data(chunk(10, 0)), Header("Content-Length", "10"), Finished()},
			kind:   fault.KindOverrun,
		},
		{
			name:    "duplicate finished",
			events:  []Event{Header("Content-Length", "4"), Data(chunk(4, 0)), Finished(), Finished(), Disconnected()},
			success: true,
		},
		{
			name:    "zero-length chunks",
			events:  []Event{Data(nil), Header("Content-Length", "3"), Data([]byte{}), Data(chunk(3, 0)), Data(nil), Finished()},
			success: true,
		},
		{
			name:    "disconnected before finished",
			events:  []Event{Header("Content-Length", "2"), Data(chunk(2, 0)), Disconnected(), Finished()},
			success: true,
		},
		{
			name:   "conflicting content length",
			events: []Event{Header("Content-Length", "8"), Header("CONTENT-LENGTH", "9"), Data(chunk(8, 0)), Finished()},
			kind:   fault.KindTransport,
		},
		{
			name:    "repeated identical content length",
			events:  []Event{Header("Content-Length", "8"), Header("content-length", "8"), Data(chunk(8, 0)), Finished()},
			success: true,
		},
		{
			name:   "error after finished",
			events: []Event{Header("Content-Length", "1"), Data([]byte{1}), Finished(), Failed(nil)},
			kind:   fault.KindTransport,
		},
		{
			name:   "short body",
			events: []Event{Header("Content-Length", "10"), Data(chunk(4, 0)), Finished()},
			// A short body is not an overrun; the engine only bounds
			// from above.
			success: true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var slot []byte
			transfer := NewMemoryTransfer(&slot, 0)
			feed(transfer, test.events...)
			if transfer.Success() != test.success {
				t.Fatalf("Success() = %v, want %v (err %v)", transfer.Success(), test.success, transfer.Err())
			}
			if !test.success && fault.KindOf(transfer.Err()) != test.kind {
				t.Errorf("Err() = %v, want %v", transfer.Err(), test.kind)
			}
		})
	}
}

// TestMemoryTransferProperties generates random event streams in which
// headers precede the data they describe and checks the success
// predicate and the buffer bound against an independent model.
func TestMemoryTransferProperties(t *testing.T) {
	random := rand.New(rand.NewPCG(7, 11))
	const limit = 3000

	for iteration := range 2000 {
		declared := random.IntN(4000)
		sendHeader := random.IntN(5) != 0
		chunkCount := random.IntN(8)
		injectError := random.IntN(6) == 0
		sendFinished := random.IntN(8) != 0

		var events []Event
		events = append(events, Connected())
		if sendHeader {
			events = append(events, Header("Content-Length", strconv.Itoa(declared)))
		}
		var delivered []byte
		for range chunkCount {
			part := chunk(random.IntN(1200), byte(random.IntN(256)))
			delivered = append(delivered, part...)
			events = append(events, Data(part))
		}
		if injectError {
			position := 1 + random.IntN(len(events))
			events = append(events[:position], append([]Event{Failed(errors.New("injected"))}, events[position:]...)...)
		}
		if sendFinished {
			events = append(events, Finished())
			if random.IntN(2) == 0 {
				events = append(events, Finished())
			}
		}
		events = append(events, Disconnected())

		var slot []byte
		transfer := NewMemoryTransfer(&slot, limit)
		feed(transfer, events...)

		total := len(delivered)
		outOfMemory := sendHeader && declared > limit
		overrun := (!sendHeader && total > 0) || (sendHeader && total > declared)
		wantSuccess := sendFinished && !injectError && !outOfMemory && !overrun

		if transfer.Success() != wantSuccess {
			t.Fatalf("iteration %d: Success() = %v, want %v (header %v declared %d total %d error %v finished %v, err %v)",
				iteration, transfer.Success(), wantSuccess, sendHeader, declared, total, injectError, sendFinished, transfer.Err())
		}
		if transfer.Received() > int64(max(declared, 0)) {
			t.Fatalf("iteration %d: Received() = %d exceeds declared %d", iteration, transfer.Received(), declared)
		}
		if slot != nil && len(slot) != declared {
			t.Fatalf("iteration %d: buffer is %d bytes, declared %d", iteration, len(slot), declared)
		}
		if wantSuccess && total > 0 && !bytes.Equal(slot[:total], delivered) {
			t.Fatalf("iteration %d: buffer contents differ from delivered data", iteration)
		}
	}
}

type failingWriter struct{ written int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written > 0 {
		return 0, errors.New("disk full")
	}
	w.written += len(p)
	return len(p), nil
}

func TestFileTransferIsUnbounded(t *testing.T) {
	var file bytes.Buffer
	transfer := NewFileTransfer(&file)
	feed(transfer,
		Header("Content-Length", "10"),
		Data(chunk(30, 0)),
		Data(chunk(30, 1)),
		Finished(),
	)
	if !transfer.Success() {
		t.Fatalf("file transfer past declared size failed: %v", transfer.Err())
	}
	if file.Len() != 60 || transfer.Received() != 60 {
		t.Errorf("file has %d bytes, Received() = %d, want 60", file.Len(), transfer.Received())
	}
}

func TestFileTransferWithoutDeclaredSize(t *testing.T) {
	var file bytes.Buffer
	transfer := NewFileTransfer(&file)
	feed(transfer, Data(chunk(50, 0)), Finished())
	if !transfer.Success() {
		t.Fatalf("file transfer failed: %v", transfer.Err())
	}
	if _, ok := transfer.DeclaredSize(); ok {
		t.Error("DeclaredSize reported a size that never arrived")
	}
}

func TestFileTransferLimit(t *testing.T) {
	var file bytes.Buffer
	transfer := NewFileTransfer(&file).LimitFileSize(40)
	feed(transfer, Data(chunk(30, 0)), Data(chunk(30, 1)), Finished())
	if !errors.Is(transfer.Err(), fault.ErrOverrun) {
		t.Fatalf("Err() = %v, want overrun fault", transfer.Err())
	}
	if file.Len() != 30 {
		t.Errorf("file has %d bytes, want 30", file.Len())
	}
}

func TestFileTransferWriteFailure(t *testing.T) {
	transfer := NewFileTransfer(&failingWriter{})
	feed(transfer, Data(chunk(5, 0)), Data(chunk(5, 1)), Data(chunk(5, 2)), Finished())
	if !errors.Is(transfer.Err(), fault.ErrIO) {
		t.Fatalf("Err() = %v, want io fault", transfer.Err())
	}
	if transfer.Received() != 5 {
		t.Errorf("Received() = %d, want 5", transfer.Received())
	}
}

func TestReleaseDropsFailedBuffer(t *testing.T) {
	var slot []byte
	transfer := NewMemoryTransfer(&slot, 0)
	feed(transfer, Header("Content-Length", "8"), Data(chunk(9, 0)), Finished())
	if slot == nil {
		t.Fatal("buffer not allocated")
	}
	transfer.Release()
	if slot != nil {
		t.Error("Release left the buffer in the slot")
	}

	var kept []byte
	transfer = NewMemoryTransfer(&kept, 0)
	feed(transfer, Header("Content-Length", "2"), Data(chunk(2, 0)), Finished())
	transfer.Release()
	if len(kept) != 2 {
		t.Error("Release dropped a successful buffer")
	}
}

func TestParseLength(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"1000", 1000},
		{"  42", 42},
		{"+7", 7},
		{"-5", -5},
		{"12abc", 12},
		{"abc", 0},
		{"", 0},
		{"99999999999999999999999", 1<<63 - 1},
	}
	for _, test := range tests {
		if got := parseLength(test.value); got != test.want {
			t.Errorf("parseLength(%q) = %d, want %d", test.value, got, test.want)
		}
	}
}
