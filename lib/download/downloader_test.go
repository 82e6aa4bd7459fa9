// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/bureau-foundation/badge/lib/clock"
	"github.com/bureau-foundation/badge/lib/fault"
)

// scriptedTransport replays a fixed event sequence and then returns
// err.
type scriptedTransport struct {
	events []Event
	err    error
}

func (s *scriptedTransport) Perform(ctx context.Context, request Request, emit func(Event)) error {
	for _, event := range s.events {
		emit(event)
	}
	return s.err
}

func TestToMemory(t *testing.T) {
	payload := chunk(1000, 3)
	var seen []Progress
	downloader := New(Config{
		Transport: &scriptedTransport{events: []Event{
			Connected(),
			Header("Content-Length", "1000"),
			Data(payload[:400]),
			Data(payload[400:]),
			Finished(),
			Disconnected(),
		}},
		Progress: func(progress Progress) { seen = append(seen, progress) },
	})

	body, result, err := downloader.ToMemory(context.Background(), "https://hub.example/app")
	if err != nil {
		t.Fatalf("ToMemory: %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Error("body differs from payload")
	}
	if result.Received != 1000 || result.Declared != 1000 {
		t.Errorf("result = %+v", result)
	}
	if len(seen) != 2 || seen[1].Received != 1000 || seen[1].Fraction() != 1 {
		t.Errorf("progress = %+v", seen)
	}
	if seen[0].ID != result.ID {
		t.Error("progress and result carry different transfer IDs")
	}
}

func TestToMemoryFailureDropsBuffer(t *testing.T) {
	downloader := New(Config{Transport: &scriptedTransport{events: []Event{
		Header("Content-Length", "4"),
		Data(chunk(8, 0)),
		Finished(),
	}}})
	body, result, err := downloader.ToMemory(context.Background(), "https://hub.example/app")
	if !errors.Is(err, fault.ErrOverrun) {
		t.Fatalf("ToMemory: err = %v, want overrun fault", err)
	}
	if body != nil {
		t.Error("failed transfer returned a buffer")
	}
	if result.Declared != 4 {
		t.Errorf("Declared = %d, want 4", result.Declared)
	}
}

func TestToMemoryEmptyBody(t *testing.T) {
	downloader := New(Config{Transport: &scriptedTransport{events: []Event{
		Header("Content-Length", "0"),
		Finished(),
	}}})
	body, _, err := downloader.ToMemory(context.Background(), "https://hub.example/empty")
	if err != nil {
		t.Fatalf("ToMemory: %v", err)
	}
	if body == nil || len(body) != 0 {
		t.Errorf("body = %v, want empty non-nil", body)
	}
}

func TestRunWithoutFinishedFails(t *testing.T) {
	downloader := New(Config{Transport: &scriptedTransport{events: []Event{
		Header("Content-Length", "2"),
		Data(chunk(2, 0)),
		Disconnected(),
	}}})
	_, _, err := downloader.ToMemory(context.Background(), "https://hub.example/app")
	if !errors.Is(err, fault.ErrTransport) {
		t.Errorf("err = %v, want transport fault", err)
	}
}

func TestRunTransportErrorWithoutEvent(t *testing.T) {
	downloader := New(Config{Transport: &scriptedTransport{
		events: []Event{Header("Content-Length", "2"), Data(chunk(2, 0)), Finished()},
		err:    errors.New("socket closed during teardown"),
	}})
	_, _, err := downloader.ToMemory(context.Background(), "https://hub.example/app")
	if !errors.Is(err, fault.ErrTransport) {
		t.Errorf("err = %v, want transport fault", err)
	}
}

func TestMemoryLimitApplies(t *testing.T) {
	downloader := New(Config{
		MemoryLimit: 100,
		Transport: &scriptedTransport{events: []Event{
			Header("Content-Length", "101"),
			Data(chunk(101, 0)),
			Finished(),
		}},
	})
	_, _, err := downloader.ToMemory(context.Background(), "https://hub.example/big")
	if !errors.Is(err, fault.ErrMemory) {
		t.Errorf("err = %v, want memory fault", err)
	}
}

func TestRunDuration(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	transport := &advancingTransport{clock: fake, step: 3 * time.Second}
	downloader := New(Config{Transport: transport, Clock: fake})

	_, result, err := downloader.ToMemory(context.Background(), "https://hub.example/slow")
	if err != nil {
		t.Fatalf("ToMemory: %v", err)
	}
	if result.Duration != 3*time.Second {
		t.Errorf("Duration = %v, want 3s", result.Duration)
	}
}

// advancingTransport moves the fake clock forward mid-transfer.
type advancingTransport struct {
	clock *clock.FakeClock
	step  time.Duration
}

func (a *advancingTransport) Perform(ctx context.Context, request Request, emit func(Event)) error {
	emit(Header("Content-Length", "1"))
	a.clock.Advance(a.step)
	emit(Data([]byte{1}))
	emit(Finished())
	return nil
}

func TestToFileOverHTTP(t *testing.T) {
	payload := bytes.Repeat([]byte{0xA5, 0x5A}, 50000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write(payload)
	}))
	defer server.Close()

	directory := t.TempDir()
	path := filepath.Join(directory, "app.bin")
	downloader := New(Config{Transport: &HTTPTransport{Client: server.Client()}})

	result, err := downloader.ToFile(context.Background(), server.URL+"/app.bin", path)
	if err != nil {
		t.Fatalf("ToFile: %v", err)
	}
	if result.Received != int64(len(payload)) {
		t.Errorf("Received = %d, want %d", result.Received, len(payload))
	}
	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if !bytes.Equal(written, payload) {
		t.Error("file contents differ from payload")
	}
	entries, _ := os.ReadDir(directory)
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the download", len(entries))
	}
}

func TestToFileFailureLeavesNoFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	directory := t.TempDir()
	path := filepath.Join(directory, "app.bin")
	downloader := New(Config{Transport: &HTTPTransport{Client: server.Client()}})

	if _, err := downloader.ToFile(context.Background(), server.URL, path); !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("ToFile: err = %v, want transport fault", err)
	}
	entries, _ := os.ReadDir(directory)
	if len(entries) != 0 {
		t.Errorf("failed download left %d files behind", len(entries))
	}
}

func TestToFileSizeLimit(t *testing.T) {
	downloader := New(Config{
		MaxFileSize: 10,
		Transport: &scriptedTransport{events: []Event{
			Data(chunk(8, 0)),
			Data(chunk(8, 1)),
			Finished(),
		}},
	})
	path := filepath.Join(t.TempDir(), "app.bin")
	if _, err := downloader.ToFile(context.Background(), "https://hub.example/app", path); !errors.Is(err, fault.ErrOverrun) {
		t.Fatalf("ToFile: err = %v, want overrun fault", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial download visible at %s", path)
	}
}

func TestToFileMissingDirectory(t *testing.T) {
	downloader := New(Config{Transport: &scriptedTransport{}})
	path := filepath.Join(t.TempDir(), "missing", "app.bin")
	if _, err := downloader.ToFile(context.Background(), "https://hub.example/app", path); !errors.Is(err, fault.ErrIO) {
		t.Errorf("ToFile: err = %v, want io fault", err)
	}
}
