// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time source so that the mailbox arm
// delay, download progress timing, and install timestamps can be
// driven deterministically in tests.
//
// Production code takes a [Clock] and is given [Real]; tests pass
// [Fake] and move time forward with [FakeClock.Advance].
package clock

import "time"

// Clock is the subset of the time package used by badge components.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// Sleep blocks for at least d.
	Sleep(d time.Duration)
}
