// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/netutil"
	"github.com/bureau-foundation/badge/lib/version"
)

// DefaultChunkSize is the read size of HTTPTransport when ChunkSize is
// not set.
const DefaultChunkSize = 32 << 10

// HTTPTransport fetches a URL with a GET request and reports it as
// events. Timeouts belong to the http.Client.
type HTTPTransport struct {
	// Client defaults to http.DefaultClient.
	Client *http.Client

	// ChunkSize is the largest EventData payload.
	ChunkSize int
}

// Perform runs one GET.
//
// Response headers are emitted in sorted key order. The body is
// requested with identity encoding so that Content-Length describes
// the bytes actually delivered. A 4xx or 5xx status is reported as an
// EventError carrying a *netutil.StatusError, and no body data is
// emitted for it.
func (t *HTTPTransport) Perform(ctx context.Context, request Request, emit func(Event)) error {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	chunkSize := t.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, request.URL, nil)
	if err != nil {
		err = fmt.Errorf("building request for %s: %w", request.URL, err)
		emit(Failed(err))
		return fault.Wrap(fault.KindTransport, "download", err)
	}
	httpRequest.Header.Set("Accept-Encoding", "identity")
	httpRequest.Header.Set("User-Agent", version.UserAgent())

	response, err := client.Do(httpRequest)
	if err != nil {
		emit(Failed(err))
		return fault.Wrap(fault.KindTransport, "download", err)
	}
	defer response.Body.Close()
	emit(Connected())
	defer emit(Disconnected())

	if err := netutil.CheckStatus(response); err != nil {
		emit(Failed(err))
		return fault.Wrap(fault.KindTransport, "download", err)
	}

	emitHeaders(response, emit)

	buffer := make([]byte, chunkSize)
	for {
		count, readErr := response.Body.Read(buffer)
		if count > 0 {
			emit(Data(buffer[:count]))
		}
		if errors.Is(readErr, io.EOF) {
			emit(Finished())
			return nil
		}
		if readErr != nil {
			err := fmt.Errorf("reading body of %s: %w", request.URL, readErr)
			emit(Failed(err))
			return fault.Wrap(fault.KindTransport, "download", err)
		}
	}
}

func emitHeaders(response *http.Response, emit func(Event)) {
	keys := make([]string, 0, len(response.Header))
	for key := range response.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	sawLength := false
	for _, key := range keys {
		if key == ContentLengthHeader {
			sawLength = true
		}
		for _, value := range response.Header[key] {
			emit(Header(key, value))
		}
	}
	// net/http strips Content-Length from some responses while still
	// knowing the length.
	if !sawLength && response.ContentLength >= 0 {
		emit(Header(ContentLengthHeader, strconv.FormatInt(response.ContentLength, 10)))
	}
}
