// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mailbox implements the boot mailbox: a single 32-bit word
// that survives a restart and carries the firmware's intent across it.
//
// The word holds a tag in its top byte and an app handle in its low
// byte (see [Encode] and [Decode]). Before deliberately restarting
// into an app the firmware writes a boot request ([Mailbox.BootRequest]);
// an app runtime that crashes stamps a crash mark ([Mailbox.MarkCrash]);
// the next boot reads the word exactly once ([Mailbox.Classify] or
// [Mailbox.Consume]) and clears it.
//
// The word is the only state that crosses the restart, so it is a
// durable intent log of depth one. Where it lives is the [Register]'s
// business: [FileRegister] keeps it in a reserved file written
// atomically, [MemoryRegister] keeps it in process memory.
//
// Access is single-threaded by construction: one read near the start
// of boot, one write right before a restart.
package mailbox

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/badge/lib/clock"
)

// Register is the persisted storage for the mailbox word.
type Register interface {
	// Load returns the stored word. A register that was never written
	// returns 0.
	Load() (uint32, error)

	// Store durably replaces the word.
	Store(word uint32) error
}

// Restarter performs the power-cycle transition: the process stops and
// execution resumes at the firmware entry point with only the mailbox
// register preserved. A successful Restart does not return on real
// targets; test doubles return nil.
type Restarter interface {
	Restart() error
}

// DefaultArmDelay is the wakeup timer armed before a restart.
const DefaultArmDelay = 10 * time.Microsecond

// Config holds the collaborators of a Mailbox. Register is required.
type Config struct {
	Register Register

	// Restarter is required by BootRequest and Reboot. Classify,
	// Clear, and MarkCrash work without it.
	Restarter Restarter

	// Clock times the arm delay. Defaults to clock.Real().
	Clock clock.Clock

	// ArmDelay is slept between writing the word and restarting.
	// Zero means DefaultArmDelay.
	ArmDelay time.Duration

	// Logger receives one record per register transition. Nil discards.
	Logger *slog.Logger
}

// Mailbox reads and writes the boot mailbox word.
type Mailbox struct {
	register  Register
	restarter Restarter
	clock     clock.Clock
	armDelay  time.Duration
	logger    *slog.Logger
}

// New returns a Mailbox over cfg.Register.
func New(cfg Config) (*Mailbox, error) {
	if cfg.Register == nil {
		return nil, fmt.Errorf("mailbox: Register is required")
	}
	m := &Mailbox{
		register:  cfg.Register,
		restarter: cfg.Restarter,
		clock:     cfg.Clock,
		armDelay:  cfg.ArmDelay,
		logger:    cfg.Logger,
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.armDelay <= 0 {
		m.armDelay = DefaultArmDelay
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	return m, nil
}

// BootRequest writes a boot request for handle and restarts. A handle
// outside 0..MaxHandle writes an empty mailbox instead, so the restart
// lands in the normal menu.
//
// On a real target the call does not return. An error is returned only
// if writing the register or starting the restart failed.
func (m *Mailbox) BootRequest(handle int) error {
	word := uint32(0)
	if handle >= 0 && handle <= MaxHandle {
		word = Encode(TagBootRequest, uint8(handle))
	}
	if err := m.store("boot request", word); err != nil {
		return err
	}
	return m.restart()
}

// Reboot clears the mailbox and restarts into the normal boot path.
func (m *Mailbox) Reboot() error {
	return m.BootRequest(-1)
}

// Restart restarts without touching the register, so the next boot
// reads whatever was last written, typically a crash mark.
func (m *Mailbox) Restart() error {
	return m.restart()
}

// Clear empties the mailbox without restarting, cancelling a pending
// request or acknowledging a crash mark.
func (m *Mailbox) Clear() error {
	return m.store("clear", 0)
}

// MarkCrash records that the app with handle crashed. The next boot's
// Classify returns KindCrash for it.
func (m *Mailbox) MarkCrash(handle uint8) error {
	return m.store("crash mark", Encode(TagCrashMark, handle))
}

// Classify reads the register once and classifies it. A register that
// cannot be read classifies as KindNone, the same as any unrecognised
// word.
func (m *Mailbox) Classify() Classification {
	word, err := m.register.Load()
	if err != nil {
		m.logger.Warn("mailbox register unreadable, treating as empty", "error", err)
		return Classification{Kind: KindNone}
	}
	classification := Decode(word)
	m.logger.Info("mailbox read",
		"word", fmt.Sprintf("0x%08X", word),
		"kind", classification.Kind.String(),
		"handle", classification.Handle,
	)
	return classification
}

// Consume classifies the register and, if it held an intent, clears it
// so that the intent is acted on at most once.
func (m *Mailbox) Consume() (Classification, error) {
	classification := m.Classify()
	if classification.Kind == KindNone {
		return classification, nil
	}
	if err := m.Clear(); err != nil {
		return classification, err
	}
	return classification, nil
}

// DetectCrash reports the handle of an app that crashed during the
// previous boot. Boot requests do not count.
func (m *Mailbox) DetectCrash() (uint8, bool) {
	classification := m.Classify()
	if classification.Kind != KindCrash {
		return 0, false
	}
	return classification.Handle, true
}

func (m *Mailbox) store(operation string, word uint32) error {
	if err := m.register.Store(word); err != nil {
		return fmt.Errorf("mailbox %s: %w", operation, err)
	}
	m.logger.Info("mailbox written",
		"operation", operation,
		"word", fmt.Sprintf("0x%08X", word),
	)
	return nil
}

func (m *Mailbox) restart() error {
	if m.restarter == nil {
		return fmt.Errorf("mailbox: no Restarter configured")
	}
	m.clock.Sleep(m.armDelay)
	m.logger.Info("restarting", "arm_delay", m.armDelay)
	if err := m.restarter.Restart(); err != nil {
		return fmt.Errorf("mailbox restart: %w", err)
	}
	return nil
}
