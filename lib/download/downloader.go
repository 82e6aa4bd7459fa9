// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package download fetches app packages and catalogs from the network
// into a file or into memory.
//
// A transfer is driven by the ordered event stream of a [Transport]
// (connected, headers, data chunks, finished, disconnected, error).
// [Transfer] holds the state of one transfer and decides at receive
// time where each chunk goes and whether the transfer is still
// healthy. The declared size arrives mid-stream in a Content-Length
// header, may be wrong, and may never arrive at all:
//
//   - A file sink appends every chunk. It is unbounded unless a file
//     size limit is set.
//   - A memory sink allocates a buffer of exactly the declared size
//     when the header arrives, and fails with an overrun fault on the
//     first chunk that would not fit. Without a declared size nothing
//     is allocated, so any data at all is an overrun.
//
// Success requires Finished and no failure. Finished alone means only
// that the transport reached the end of its stream.
//
// [Downloader] wraps a Transport with sinks, logging and progress
// reporting. It never retries; the caller decides whether to run the
// whole transfer again.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/badge/lib/clock"
	"github.com/bureau-foundation/badge/lib/fault"
)

// DefaultProgressInterval is how often the Downloader logs progress of
// a running transfer.
const DefaultProgressInterval = 2 * time.Second

// Config holds the parameters of a Downloader.
type Config struct {
	// Transport performs the transfers. Defaults to an HTTPTransport
	// on http.DefaultClient.
	Transport Transport

	// MemoryLimit is the largest buffer a memory transfer may
	// allocate. Zero selects DefaultMemoryLimit.
	MemoryLimit int64

	// MaxFileSize bounds file transfers. Zero means unbounded.
	MaxFileSize int64

	// Progress, if set, is called after every accepted data chunk.
	Progress func(Progress)

	// ProgressInterval spaces the progress log records. Defaults to
	// DefaultProgressInterval.
	ProgressInterval time.Duration

	// Clock times transfers. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives one record per transfer plus periodic progress.
	// Nil discards.
	Logger *slog.Logger
}

// Progress is a snapshot of a running transfer.
type Progress struct {
	ID       uuid.UUID
	URL      string
	Received int64

	// Declared is the Content-Length, or -1 before it arrives.
	Declared int64
}

// Fraction returns received/declared in [0, 1], or -1 when the
// declared size is unknown.
func (p Progress) Fraction() float64 {
	if p.Declared <= 0 {
		return -1
	}
	return min(float64(p.Received)/float64(p.Declared), 1)
}

// Result summarises a finished transfer, successful or not.
type Result struct {
	ID       uuid.UUID
	URL      string
	Received int64

	// Declared is the Content-Length, or -1 if none arrived.
	Declared int64

	Duration time.Duration
}

// Downloader runs transfers. Safe for concurrent use; each call is an
// independent transfer.
type Downloader struct {
	transport        Transport
	memoryLimit      int64
	maxFileSize      int64
	progress         func(Progress)
	progressInterval time.Duration
	clock            clock.Clock
	logger           *slog.Logger
}

// New returns a Downloader.
func New(cfg Config) *Downloader {
	transport := cfg.Transport
	if transport == nil {
		transport = &HTTPTransport{}
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Downloader{
		transport:        transport,
		memoryLimit:      cfg.MemoryLimit,
		maxFileSize:      cfg.MaxFileSize,
		progress:         cfg.Progress,
		progressInterval: interval,
		clock:            timeSource,
		logger:           logger,
	}
}

// ToFile downloads url into the file at path. The body is written to
// a temporary file in the same directory and renamed over path only on
// success, so path never holds a partial download.
func (d *Downloader) ToFile(ctx context.Context, url, path string) (result Result, err error) {
	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".part-*")
	if err != nil {
		return Result{URL: url, Declared: -1}, fault.Wrap(fault.KindIO, "download", err)
	}
	temporaryPath := temporary.Name()
	defer func() {
		if err != nil {
			temporary.Close()
			os.Remove(temporaryPath)
		}
	}()

	transfer := NewFileTransfer(temporary).LimitFileSize(d.maxFileSize)
	result, err = d.Run(ctx, Request{URL: url}, transfer)
	if err != nil {
		return result, err
	}

	if err := temporary.Sync(); err != nil {
		return result, fault.Wrap(fault.KindIO, "download", fmt.Errorf("syncing %s: %w", temporaryPath, err))
	}
	if err := temporary.Close(); err != nil {
		return result, fault.Wrap(fault.KindIO, "download", fmt.Errorf("closing %s: %w", temporaryPath, err))
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		return result, fault.Wrap(fault.KindIO, "download", err)
	}
	return result, nil
}

// ToMemory downloads url into a buffer sized by the response's
// Content-Length. On failure the buffer is dropped and nil returned.
func (d *Downloader) ToMemory(ctx context.Context, url string) ([]byte, Result, error) {
	var body []byte
	transfer := NewMemoryTransfer(&body, d.memoryLimit)
	result, err := d.Run(ctx, Request{URL: url}, transfer)
	if err != nil {
		return nil, result, err
	}
	if body == nil {
		// Declared size 0: nothing was allocated.
		body = []byte{}
	}
	return body, result, nil
}

// Run drives transfer with one Transport.Perform and evaluates the
// outcome. The returned error is nil exactly when transfer.Success().
func (d *Downloader) Run(ctx context.Context, request Request, transfer *Transfer) (Result, error) {
	id := uuid.New()
	logger := d.logger.With("transfer", id.String(), "url", request.URL)
	started := d.clock.Now()
	progressLog := rate.Sometimes{Interval: d.progressInterval}

	performErr := d.transport.Perform(ctx, request, func(event Event) {
		transfer.Handle(event)
		if event.Kind != EventData || transfer.Err() != nil {
			return
		}
		snapshot := Progress{ID: id, URL: request.URL, Received: transfer.Received(), Declared: declaredOrUnknown(transfer)}
		if d.progress != nil {
			d.progress(snapshot)
		}
		progressLog.Do(func() {
			logger.Debug("download progress", "received", snapshot.Received, "declared", snapshot.Declared)
		})
	})

	// A transport that failed without emitting an error event still
	// fails the transfer.
	if performErr != nil && transfer.Err() == nil {
		transfer.Handle(Failed(performErr))
	}

	result := Result{
		ID:       id,
		URL:      request.URL,
		Received: transfer.Received(),
		Declared: declaredOrUnknown(transfer),
		Duration: d.clock.Now().Sub(started),
	}

	if transfer.Success() {
		logger.Info("download complete",
			"received", result.Received,
			"declared", result.Declared,
			"duration", result.Duration,
		)
		return result, nil
	}

	transfer.Release()
	err := transfer.Err()
	if err == nil {
		err = fault.New(fault.KindTransport, "download", "transport ended before the transfer finished")
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("download abandoned", "received", result.Received, "error", err)
	} else {
		logger.Warn("download failed", "received", result.Received, "declared", result.Declared, "error", err)
	}
	return result, err
}

func declaredOrUnknown(transfer *Transfer) int64 {
	if declared, ok := transfer.DeclaredSize(); ok {
		return declared
	}
	return -1
}
