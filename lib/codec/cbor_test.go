// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleEntry struct {
	Name    string `json:"name"`
	Version uint16 `json:"version"`
	URL     string `json:"url,omitempty"`
}

func TestMarshalUnmarshal(t *testing.T) {
	original := sampleEntry{Name: "snake", Version: 7, URL: "https://hub.example/snake.zst"}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("decoded = %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	first, err := Marshal(map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(map[string]int{"mid": 3, "alpha": 2, "zeta": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("map encodings differ: %x vs %x", first, second)
	}
}

func TestOmitEmptyUsesJSONTags(t *testing.T) {
	data, err := Marshal(sampleEntry{Name: "bare"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if strings.Contains(diagnostic, "url") {
		t.Errorf("empty url was encoded: %s", diagnostic)
	}
	if !strings.Contains(diagnostic, `"bare"`) {
		t.Errorf("diagnostic %s missing name field", diagnostic)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"name": "future", "version": 2, "icon": []byte{1, 2}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleEntry
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != "future" || decoded.Version != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestAnyTargetsDecodeStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"key": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if _, ok := outer["nested"].(map[string]any); !ok {
		t.Errorf("nested value is %T, want map[string]any", outer["nested"])
	}
}

func TestTimeEncodedAsText(t *testing.T) {
	stamp := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := Marshal(struct {
		At time.Time `json:"at"`
	}{stamp})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, "2026-03-01T12:00:00Z") {
		t.Errorf("diagnostic %s does not carry RFC 3339 time", diagnostic)
	}
}

func TestStreamRoundtrip(t *testing.T) {
	entries := []sampleEntry{{Name: "a", Version: 1}, {Name: "b", Version: 2}}
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for i, want := range entries {
		var got sampleEntry
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("entry %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestNestingLimit(t *testing.T) {
	// 20 nested one-element arrays: 0x81 repeated, then 0x00.
	data := append(bytes.Repeat([]byte{0x81}, 20), 0x00)
	var decoded any
	if err := Unmarshal(data, &decoded); err == nil {
		t.Error("deeply nested document accepted")
	}
}
