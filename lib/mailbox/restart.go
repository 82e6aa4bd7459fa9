// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package mailbox

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ExecRestarter restarts by replacing the current process image with a
// fresh copy of the firmware binary. Process state is discarded; only
// the register survives, exactly as across a deep-sleep wakeup.
type ExecRestarter struct {
	// Executable is the binary to exec. Empty means os.Executable().
	Executable string

	// Args is the argument vector. Nil means os.Args.
	Args []string

	// Env is the environment. Nil means os.Environ().
	Env []string
}

// Restart execs the firmware binary. It returns only on failure.
func (r ExecRestarter) Restart() error {
	executable := r.Executable
	if executable == "" {
		path, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolving own executable: %w", err)
		}
		executable = path
	}
	args := r.Args
	if args == nil {
		args = os.Args
	}
	env := r.Env
	if env == nil {
		env = os.Environ()
	}
	if err := unix.Exec(executable, args, env); err != nil {
		return fmt.Errorf("exec %s: %w", executable, err)
	}
	return nil
}
