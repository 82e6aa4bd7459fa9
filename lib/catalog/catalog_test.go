// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/bureau-foundation/badge/lib/download"
	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/imagestore"
)

const annotatedCatalog = `
// Maintained by hand.
{
	"name": "community hub",
	"apps": [
		/* classic */
		{"name": "snake", "title": "Snake", "version": 3, "url": "apps/snake.zst", "size": 2048},
		{"name": "clock", "version": 1, "url": "https://cdn.example/clock.bin",},
	],
}
`

func TestDecodeJSONWithComments(t *testing.T) {
	catalog, err := Decode([]byte(annotatedCatalog))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if catalog.Name != "community hub" || len(catalog.Apps) != 2 {
		t.Fatalf("catalog = %+v", catalog)
	}
	snake, ok := catalog.Find("snake")
	if !ok {
		t.Fatal("snake not found")
	}
	if snake.Title != "Snake" || snake.Version != 3 || snake.Size != 2048 {
		t.Errorf("snake = %+v", snake)
	}
	if _, ok := catalog.Find("pong"); ok {
		t.Error("Find returned an entry that is not listed")
	}
}

func TestDecodeCBOR(t *testing.T) {
	digest := imagestore.HashBytes([]byte("clock image"))
	original := &Catalog{
		Name: "cbor hub",
		Apps: []Entry{{Name: "clock", Version: 2, URL: "clock.lz4", Digest: &digest}},
	}
	data, err := original.EncodeCBOR()
	if err != nil {
		t.Fatalf("EncodeCBOR: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	entry, ok := decoded.Find("clock")
	if !ok || entry.Version != 2 || entry.Digest == nil || *entry.Digest != digest {
		t.Errorf("decoded entry = %+v", entry)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		catalog Catalog
		want    string
	}{
		{"missing name", Catalog{Apps: []Entry{{URL: "a"}}}, "has no name"},
		{"missing url", Catalog{Apps: []Entry{{Name: "a"}}}, "has no url"},
		{"duplicate", Catalog{Apps: []Entry{{Name: "a", URL: "x"}, {Name: "a", URL: "y"}}}, "twice"},
		{"long name", Catalog{Apps: []Entry{{Name: strings.Repeat("n", imagestore.MaxNameLength+1), URL: "x"}}}, "exceeds"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := test.catalog.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.want)
			}
		})
	}
}

func TestUpgrade(t *testing.T) {
	entry := Entry{Version: 5}
	if !entry.Upgrade(4) {
		t.Error("version 5 is not an upgrade over 4")
	}
	if entry.Upgrade(5) || entry.Upgrade(6) {
		t.Error("same or older version reported as upgrade")
	}
}

func TestSorted(t *testing.T) {
	catalog := Catalog{Apps: []Entry{{Name: "zeta"}, {Name: "alpha"}}}
	sorted := catalog.Sorted()
	if sorted[0].Name != "alpha" || catalog.Apps[0].Name != "zeta" {
		t.Errorf("Sorted() = %v, original = %v", sorted, catalog.Apps)
	}
}

func TestFetchResolvesRelativeURLs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hub/catalog.jsonc" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(annotatedCatalog)))
		w.Write([]byte(annotatedCatalog))
	}))
	defer server.Close()

	downloader := download.New(download.Config{Transport: &download.HTTPTransport{Client: server.Client()}})
	catalog, err := Fetch(context.Background(), downloader, server.URL+"/hub/catalog.jsonc")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	snake, _ := catalog.Find("snake")
	if snake.URL != server.URL+"/hub/apps/snake.zst" {
		t.Errorf("snake URL = %q", snake.URL)
	}
	clock, _ := catalog.Find("clock")
	if clock.URL != "https://cdn.example/clock.bin" {
		t.Errorf("absolute URL rewritten to %q", clock.URL)
	}
}

func TestFetchMissing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	downloader := download.New(download.Config{Transport: &download.HTTPTransport{Client: server.Client()}})
	if _, err := Fetch(context.Background(), downloader, server.URL+"/catalog"); !errors.Is(err, fault.ErrTransport) {
		t.Errorf("Fetch: err = %v, want transport fault", err)
	}
}
