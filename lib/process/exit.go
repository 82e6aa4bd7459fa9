// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds binary entrypoint helpers: the raw stderr
// output a binary needs when it fails before or after its structured
// logger exists.
package process

import (
	"fmt"
	"io"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(1)
}

// Report writes "error: err" to w. Multi-line errors, such as flag
// errors carrying a usage hint, are written as they are.
func Report(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
