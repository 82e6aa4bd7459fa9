// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil holds HTTP helpers shared by the download transport
// and anything else in badge that talks to an app hub.
package netutil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response body is read
// into a diagnostic. Hub error pages are short; anything longer is
// truncated.
const MaxErrorBodySize int64 = 4 << 10

// ErrorBody reads the start of an HTTP error response body for use in
// an error message. Read errors are ignored: a partial body is still
// useful.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(string(data))
}

// StatusError is an HTTP response whose status code is 400 or above.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
}

// CheckStatus returns a *StatusError for a 4xx or 5xx response,
// consuming the start of its body. Other responses pass through
// untouched.
func CheckStatus(response *http.Response) error {
	if response.StatusCode < http.StatusBadRequest {
		return nil
	}
	return &StatusError{
		StatusCode: response.StatusCode,
		Status:     response.Status,
		Body:       ErrorBody(response.Body),
	}
}
