// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock stopped at initial. Time only moves when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock. Sleep and After register a
// pending deadline that fires when Advance moves past it.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []fakeDeadline
	changed *sync.Cond

	// slept accumulates every duration passed to Sleep, so tests can
	// assert on delays without running a goroutine per sleep.
	slept []time.Duration
}

type fakeDeadline struct {
	at      time.Time
	channel chan time.Time
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that fires once the clock has advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.pending = append(c.pending, fakeDeadline{at: c.current.Add(d), channel: channel})
	c.changed.Broadcast()
	return channel
}

// Sleep records d and returns immediately. Fake sleeps never block:
// code under test that sleeps before an irreversible step (such as
// arming a restart) must not deadlock the test goroutine. Use After
// when a test needs to observe the wait itself.
func (c *FakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	if d > 0 {
		c.current = c.current.Add(d)
	}
}

// Slept returns the durations passed to Sleep, in call order.
func (c *FakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// Advance moves the clock forward by d and fires every After deadline
// at or before the new time, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current

	var due, remaining []fakeDeadline
	for _, deadline := range c.pending {
		if deadline.at.After(now) {
			remaining = append(remaining, deadline)
		} else {
			due = append(due, deadline)
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, deadline := range due {
		deadline.channel <- now
	}
}

// WaitForPending blocks until at least n After deadlines are pending.
// It closes the race between a goroutine registering a wait and the
// test advancing the clock.
func (c *FakeClock) WaitForPending(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}
