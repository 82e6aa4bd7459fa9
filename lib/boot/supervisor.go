// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package boot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/bureau-foundation/badge/lib/clock"
	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/mailbox"
)

// Environment variables set for a launched app.
const (
	EnvAppHandle = "BADGE_APP_HANDLE"
	EnvAppName   = "BADGE_APP_NAME"
)

// SupervisorConfig holds the collaborators of a Supervisor.
type SupervisorConfig struct {
	// Store holds the images. Required.
	Store *imagestore.Store

	// Mailbox receives crash marks and performs the restart after a
	// crash. Required.
	Mailbox *mailbox.Mailbox

	// RunDirectory receives the extracted executable for the duration
	// of the run. Required; created if missing.
	RunDirectory string

	// Args are passed to the app.
	Args []string

	// Env is appended to the inherited environment.
	Env []string

	// Stdin, Stdout, and Stderr are connected to the app. Nil Stdout
	// and Stderr discard output.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Clock  clock.Clock
	Logger *slog.Logger
}

// Supervisor runs apps and reports their crashes through the mailbox.
type Supervisor struct {
	store        *imagestore.Store
	mailbox      *mailbox.Mailbox
	runDirectory string
	args         []string
	env          []string
	stdin        io.Reader
	stdout       io.Writer
	stderr       io.Writer
	clock        clock.Clock
	logger       *slog.Logger
}

// Outcome describes how a supervised app ended.
type Outcome struct {
	// ExitCode is the process exit code, or -1 when it was killed by a
	// signal.
	ExitCode int

	// Crashed is true when the app ended abnormally and a crash mark
	// was written.
	Crashed bool

	Duration time.Duration
}

// NewSupervisor returns a Supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("boot: Store is required")
	}
	if cfg.Mailbox == nil {
		return nil, fmt.Errorf("boot: Mailbox is required")
	}
	if cfg.RunDirectory == "" {
		return nil, fmt.Errorf("boot: RunDirectory is required")
	}
	s := &Supervisor{
		store:        cfg.Store,
		mailbox:      cfg.Mailbox,
		runDirectory: cfg.RunDirectory,
		args:         cfg.Args,
		env:          cfg.Env,
		stdin:        cfg.Stdin,
		stdout:       cfg.Stdout,
		stderr:       cfg.Stderr,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Run extracts image to the run directory and executes it, blocking
// until it exits. A clean exit (status 0) writes nothing. Any other
// exit stamps a crash mark for the image's handle and asks the mailbox
// to restart; on a real target that restart does not return.
//
// Cancelling ctx kills the app without marking a crash and returns the
// context's error.
func (s *Supervisor) Run(ctx context.Context, image imagestore.StoredImage) (Outcome, error) {
	logger := s.logger.With("handle", image.Handle, "name", image.Name)

	path, err := s.extract(ctx, image)
	if err != nil {
		return Outcome{}, err
	}
	defer os.Remove(path)

	command := exec.CommandContext(ctx, path, s.args...)
	command.Dir = s.runDirectory
	command.Env = append(os.Environ(), s.env...)
	command.Env = append(command.Env,
		EnvAppHandle+"="+strconv.Itoa(int(image.Handle)),
		EnvAppName+"="+image.Name,
	)
	command.Stdin = s.stdin
	command.Stdout = s.stdout
	command.Stderr = s.stderr

	started := s.clock.Now()
	if err := command.Start(); err != nil {
		return Outcome{}, fault.Wrap(fault.KindIO, "launch", fmt.Errorf("starting %s: %w", image.Name, err))
	}
	logger.Info("app started", "pid", command.Process.Pid)

	waitErr := command.Wait()
	outcome := Outcome{Duration: s.clock.Now().Sub(started)}
	if waitErr == nil {
		logger.Info("app exited", "duration", outcome.Duration)
		return outcome, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		outcome.ExitCode = command.ProcessState.ExitCode()
		logger.Info("app stopped", "reason", ctxErr)
		return outcome, ctxErr
	}

	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return outcome, fault.Wrap(fault.KindIO, "launch", fmt.Errorf("waiting for %s: %w", image.Name, waitErr))
	}
	outcome.ExitCode = exitErr.ExitCode()
	outcome.Crashed = true
	logger.Error("app crashed", "exit_code", outcome.ExitCode, "state", exitErr.ProcessState.String(), "duration", outcome.Duration)

	if err := s.mailbox.MarkCrash(uint8(image.Handle)); err != nil {
		return outcome, fmt.Errorf("recording crash of %s: %w", image.Name, err)
	}
	if err := s.mailbox.Restart(); err != nil {
		return outcome, fmt.Errorf("restarting after crash of %s: %w", image.Name, err)
	}
	return outcome, nil
}

// extract copies the image into a fresh executable file. The file is
// closed before it is returned so it can be executed.
func (s *Supervisor) extract(ctx context.Context, image imagestore.StoredImage) (string, error) {
	reader, _, err := s.store.Reader(ctx, image.Handle)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.runDirectory, 0o755); err != nil {
		return "", fault.Wrap(fault.KindIO, "launch", err)
	}
	file, err := os.CreateTemp(s.runDirectory, "app-*")
	if err != nil {
		return "", fault.Wrap(fault.KindIO, "launch", err)
	}
	path := file.Name()

	_, err = io.Copy(file, reader)
	if err == nil {
		err = file.Chmod(0o755)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fault.Wrap(fault.KindIO, "launch", fmt.Errorf("extracting %s: %w", image.Name, err))
	}
	return path, nil
}
