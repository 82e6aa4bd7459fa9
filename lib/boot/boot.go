// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package boot decides what the firmware does after a restart and
// supervises the app it launches.
//
// At boot the mailbox is read once and cleared ([Decide]). A boot
// request for an installed app launches it; anything else, including a
// crash mark or a request for an app that is no longer installed, lands
// in the menu. The [Supervisor] closes the loop: when a launched app
// exits abnormally it stamps a crash mark and restarts, so the next
// boot shows the menu with the crash reported instead of relaunching
// the app that just failed.
package boot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/mailbox"
)

// Action is what the firmware does after Decide.
type Action uint8

const (
	// ActionMenu shows the launcher menu.
	ActionMenu Action = iota
	// ActionLaunch launches Decision.Image.
	ActionLaunch
)

func (a Action) String() string {
	switch a {
	case ActionMenu:
		return "menu"
	case ActionLaunch:
		return "launch"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// Decision is the outcome of reading the mailbox at boot.
type Decision struct {
	Action Action

	// Image is the app to launch. Set only for ActionLaunch.
	Image imagestore.StoredImage

	// Crashed describes the app that crashed during the previous boot,
	// when the crash mark names an installed app. CrashedHandle is set
	// whenever a crash mark was read, even if the app is gone.
	Crashed       *imagestore.StoredImage
	CrashedHandle *imagestore.Handle

	// Mailbox is the classification that was consumed.
	Mailbox mailbox.Classification
}

// Decide consumes the mailbox and chooses between launching an app and
// showing the menu. The mailbox is cleared before the decision is
// acted on, so a launch that takes the firmware down is not retried
// on the next boot.
//
// An error means the mailbox could not be cleared or the store could
// not be read; the returned Decision is then a menu decision and is
// safe to act on.
func Decide(ctx context.Context, box *mailbox.Mailbox, store *imagestore.Store, logger *slog.Logger) (Decision, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	classification, err := box.Consume()
	decision := Decision{Action: ActionMenu, Mailbox: classification}
	if err != nil {
		return decision, fmt.Errorf("consuming mailbox: %w", err)
	}

	switch classification.Kind {
	case mailbox.KindResume:
		image, err := lookup(ctx, store, classification.Handle)
		if err != nil {
			return decision, err
		}
		if image == nil {
			logger.Warn("boot request names no installed app", "handle", classification.Handle)
			return decision, nil
		}
		decision.Action = ActionLaunch
		decision.Image = *image
		logger.Info("launching requested app", "handle", image.Handle, "name", image.Name)

	case mailbox.KindCrash:
		handle := imagestore.Handle(classification.Handle)
		decision.CrashedHandle = &handle
		image, err := lookup(ctx, store, classification.Handle)
		if err != nil {
			return decision, err
		}
		decision.Crashed = image
		name := ""
		if image != nil {
			name = image.Name
		}
		logger.Warn("app crashed during previous boot", "handle", handle, "name", name)
	}
	return decision, nil
}

// lookup returns nil for a handle with no complete image.
func lookup(ctx context.Context, store *imagestore.Store, handle uint8) (*imagestore.StoredImage, error) {
	image, err := store.OpenHandle(ctx, imagestore.Handle(handle))
	if errors.Is(err, fault.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up handle %d: %w", handle, err)
	}
	return &image, nil
}
