// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestErrorBody(t *testing.T) {
	t.Run("returns trimmed body", func(t *testing.T) {
		got := ErrorBody(strings.NewReader("  not found\n"))
		if got != "not found" {
			t.Fatalf("got %q, want %q", got, "not found")
		}
	})

	t.Run("truncates long bodies", func(t *testing.T) {
		got := ErrorBody(bytes.NewReader(bytes.Repeat([]byte("x"), int(MaxErrorBodySize)*2)))
		if int64(len(got)) != MaxErrorBodySize {
			t.Fatalf("got %d bytes, want %d", len(got), MaxErrorBodySize)
		}
	})

	t.Run("read error keeps partial body", func(t *testing.T) {
		got := ErrorBody(io.MultiReader(strings.NewReader("partial"), &failReader{}))
		if got != "partial" {
			t.Fatalf("got %q, want %q", got, "partial")
		}
	})
}

func TestCheckStatus(t *testing.T) {
	ok := &http.Response{StatusCode: 200, Status: "200 OK", Body: io.NopCloser(strings.NewReader("payload"))}
	if err := CheckStatus(ok); err != nil {
		t.Fatalf("CheckStatus(200) = %v", err)
	}

	missing := &http.Response{StatusCode: 404, Status: "404 Not Found", Body: io.NopCloser(strings.NewReader("no such app"))}
	err := CheckStatus(missing)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("CheckStatus(404) = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != 404 || statusErr.Body != "no such app" {
		t.Errorf("StatusError = %+v", statusErr)
	}
	if err.Error() != "HTTP 404 Not Found: no such app" {
		t.Errorf("Error() = %q", err.Error())
	}
}

type failReader struct{}

func (failReader) Read([]byte) (int, error) { return 0, errors.New("read failed") }
