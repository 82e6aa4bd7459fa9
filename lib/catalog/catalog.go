// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog reads the app listing published by an app hub.
//
// A catalog is either CBOR or JSON. The JSON form may carry // and
// /* */ comments and trailing commas so that hub operators can
// annotate hand-maintained listings. Both forms share one schema:
//
//	{
//	  "name": "community hub",
//	  "apps": [
//	    // Relative URLs resolve against the catalog's own URL.
//	    {"name": "snake", "title": "Snake", "version": 3, "url": "snake.zst"},
//	  ],
//	}
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/badge/lib/codec"
	"github.com/bureau-foundation/badge/lib/download"
	"github.com/bureau-foundation/badge/lib/imagestore"
)

// Catalog is one hub's app listing.
type Catalog struct {
	Name string  `json:"name,omitempty"`
	Apps []Entry `json:"apps"`
}

// Entry describes one installable app.
type Entry struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version uint16 `json:"version"`

	// URL locates the package. Relative URLs are resolved against the
	// catalog URL by Fetch.
	URL string `json:"url"`

	// Size is the package size in bytes, for display. Optional.
	Size int64 `json:"size,omitempty"`

	// Digest, when present, is the image digest the installed app must
	// have. Installers refuse packages that decode to anything else.
	Digest *imagestore.Digest `json:"digest,omitempty"`

	Description string `json:"description,omitempty"`
}

// Upgrade reports whether the entry is newer than an installed
// version.
func (e Entry) Upgrade(installed uint16) bool {
	return e.Version > installed
}

// Decode parses a catalog in either encoding and validates it. A
// document whose first non-space byte opens a JSON object or a comment
// is JSON; anything else is CBOR.
func Decode(data []byte) (*Catalog, error) {
	var catalog Catalog
	if isJSON(data) {
		if err := json.Unmarshal(jsonc.ToJSON(data), &catalog); err != nil {
			return nil, fmt.Errorf("parsing JSON catalog: %w", err)
		}
	} else {
		if err := codec.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parsing CBOR catalog: %w", err)
		}
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &catalog, nil
}

func isJSON(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '/')
}

// EncodeCBOR returns the deterministic CBOR form of the catalog.
func (c *Catalog) EncodeCBOR() ([]byte, error) {
	return codec.Marshal(c)
}

// Validate checks that every entry is installable and names are
// unique.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Apps))
	for index, entry := range c.Apps {
		switch {
		case entry.Name == "":
			return fmt.Errorf("catalog entry %d has no name", index)
		case len(entry.Name) > imagestore.MaxNameLength:
			return fmt.Errorf("catalog entry %q: name exceeds %d bytes", entry.Name, imagestore.MaxNameLength)
		case len(entry.Title) > imagestore.MaxTitleLength:
			return fmt.Errorf("catalog entry %q: title exceeds %d bytes", entry.Name, imagestore.MaxTitleLength)
		case entry.URL == "":
			return fmt.Errorf("catalog entry %q has no url", entry.Name)
		case seen[entry.Name]:
			return fmt.Errorf("catalog lists %q twice", entry.Name)
		}
		seen[entry.Name] = true
	}
	return nil
}

// Find returns the entry called name.
func (c *Catalog) Find(name string) (Entry, bool) {
	for _, entry := range c.Apps {
		if entry.Name == name {
			return entry, true
		}
	}
	return Entry{}, false
}

// Sorted returns the entries ordered by name.
func (c *Catalog) Sorted() []Entry {
	entries := append([]Entry(nil), c.Apps...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// ResolveURLs rewrites relative entry URLs against base.
func (c *Catalog) ResolveURLs(base string) error {
	baseURL, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("parsing catalog URL %q: %w", base, err)
	}
	for index := range c.Apps {
		reference, err := url.Parse(c.Apps[index].URL)
		if err != nil {
			return fmt.Errorf("catalog entry %q: parsing url: %w", c.Apps[index].Name, err)
		}
		c.Apps[index].URL = baseURL.ResolveReference(reference).String()
	}
	return nil
}

// Fetch downloads, decodes, and resolves the catalog at catalogURL.
// The catalog is fetched into memory, so the hub must declare its
// size.
func Fetch(ctx context.Context, downloader *download.Downloader, catalogURL string) (*Catalog, error) {
	data, _, err := downloader.ToMemory(ctx, catalogURL)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog %s: %w", catalogURL, err)
	}
	catalog, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", catalogURL, err)
	}
	if err := catalog.ResolveURLs(catalogURL); err != nil {
		return nil, err
	}
	return catalog, nil
}
