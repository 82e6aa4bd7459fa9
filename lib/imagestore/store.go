// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package imagestore installs named, versioned application images on a
// page-erasable [flash.Device] and resolves them later by name or
// handle.
//
// An install is four steps that must run in order:
//
//	handle, err := store.Create(ctx, imagestore.CreateRequest{Name: "snake", Size: n})
//	err = store.Erase(ctx, handle, 0, n)      // rounded up to whole pages
//	err = store.Write(ctx, handle, 0, image)  // only into erased bytes
//	image, err := store.Open(ctx, "snake")
//
// The entry becomes visible to Open, OpenHandle, and List only when
// every byte of the image has been written into erased flash. Until
// then it is pending. A failure during Erase or Write leaves the
// pending metadata in place: the store never rolls back Create on its
// own. Callers either retry the full sequence, Delete the entry, or
// call Reap to drop every pending entry.
//
// Metadata lives in SQLite. Image bytes live on the device in a
// contiguous, page-aligned region reserved by Create. Erase and write
// coverage of pending entries is tracked in memory, so a pending entry
// whose process restarts must be erased again before it can be
// written.
//
// The store does not serialise installs: callers must not run two
// installs for the same name concurrently.
package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/badge/lib/clock"
	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/flash"
	"github.com/bureau-foundation/badge/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	handle        INTEGER PRIMARY KEY CHECK (handle BETWEEN 0 AND 255),
	name          TEXT    NOT NULL UNIQUE,
	title         TEXT    NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 0,
	size          INTEGER NOT NULL CHECK (size > 0),
	region_offset INTEGER NOT NULL,
	region_length INTEGER NOT NULL,
	state         TEXT    NOT NULL CHECK (state IN ('pending', 'complete')),
	digest        BLOB,
	created_at    INTEGER NOT NULL,
	installed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS images_region ON images (region_offset);
`

const (
	statePending  = "pending"
	stateComplete = "complete"
)

// Config holds the parameters for opening a Store.
type Config struct {
	// Device holds the image bytes. Required. The store does not
	// close it.
	Device flash.Device

	// DatabasePath is the SQLite metadata file. Required.
	DatabasePath string

	// Clock stamps install times. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives install progress. Nil discards.
	Logger *slog.Logger
}

// CreateRequest describes a new image slot.
type CreateRequest struct {
	Name    string
	Title   string
	Version uint16

	// Size is the exact image length in bytes. Must be positive.
	Size int64

	// Overwrite replaces an existing entry of the same name instead of
	// failing with a capacity fault. The old entry disappears at
	// Create time, before the new image is written.
	Overwrite bool
}

// Store is the image store. Safe for concurrent use, subject to the
// single-writer-per-name rule in the package documentation.
type Store struct {
	device flash.Device
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger

	// mu guards progress and orders the device operations of Erase and
	// Write against sealing. A method that needs a pool connection as
	// well takes the connection first.
	mu       sync.Mutex
	progress map[Handle]*slotProgress
}

// slotProgress tracks which bytes of a pending slot are erased and
// which hold written image data. Offsets are relative to the slot.
type slotProgress struct {
	erased  spanSet
	written spanSet
}

// slot is the metadata row of an entry in either state.
type slot struct {
	handle       Handle
	name         string
	size         int64
	regionOffset int64
	regionLength int64
	state        string
}

// Open opens the metadata database and attaches the device.
func Open(cfg Config) (*Store, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("imagestore: Device is required")
	}
	if cfg.DatabasePath == "" {
		return nil, fmt.Errorf("imagestore: DatabasePath is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeSource := cfg.Clock
	if timeSource == nil {
		timeSource = clock.Real()
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   cfg.DatabasePath,
		Logger: logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: %w", err)
	}

	return &Store{
		device:   cfg.Device,
		pool:     pool,
		clock:    timeSource,
		logger:   logger,
		progress: make(map[Handle]*slotProgress),
	}, nil
}

// Close closes the metadata database. The device stays open.
func (s *Store) Close() error {
	return s.pool.Close()
}

// PageSize is the erase unit of the underlying device.
func (s *Store) PageSize() int64 { return s.device.PageSize() }

// Capacity is the size of the underlying device, the upper bound on
// any single image.
func (s *Store) Capacity() int64 { return s.device.Size() }

// Create reserves a named slot large enough for req.Size bytes and
// returns its handle. The slot starts pending.
//
// Fails with a capacity fault when the name is taken and Overwrite is
// false, when all handles are in use, or when no contiguous run of
// free pages is large enough.
func (s *Store) Create(ctx context.Context, req CreateRequest) (handle Handle, err error) {
	if err := validateRequest(req); err != nil {
		return 0, err
	}
	regionLength := flash.RoundUp(req.Size, s.device.PageSize())
	if regionLength > s.device.Size() {
		return 0, fault.New(fault.KindCapacity, "create",
			"image %q needs %d bytes but the device holds %d", req.Name, regionLength, s.device.Size())
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fault.Wrap(fault.KindIO, "create", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fault.Wrap(fault.KindIO, "create", fmt.Errorf("begin transaction: %w", err))
	}
	defer endTransaction(&err)

	existing, found, err := lookupSlot(conn, "name = ?", req.Name)
	if err != nil {
		return 0, err
	}
	if found {
		if !req.Overwrite {
			return 0, fault.New(fault.KindCapacity, "create", "image %q already exists", req.Name)
		}
		if err := deleteSlot(conn, existing.handle); err != nil {
			return 0, err
		}
	}

	slots, err := allSlots(conn)
	if err != nil {
		return 0, err
	}
	handle, ok := lowestFreeHandle(slots)
	if !ok {
		return 0, fault.New(fault.KindCapacity, "create", "all %d image handles are in use", MaxHandles)
	}
	regionOffset, ok := firstFit(slots, regionLength, s.device.Size())
	if !ok {
		return 0, fault.New(fault.KindCapacity, "create",
			"no contiguous %d-byte region free for image %q", regionLength, req.Name)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO images (handle, name, title, version, size, region_offset, region_length, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{Args: []any{
			int64(handle), req.Name, req.Title, int64(req.Version), req.Size,
			regionOffset, regionLength, statePending, s.clock.Now().UnixNano(),
		}})
	if err != nil {
		return 0, fault.Wrap(fault.KindIO, "create", fmt.Errorf("inserting image %q: %w", req.Name, err))
	}

	s.mu.Lock()
	if found {
		delete(s.progress, existing.handle)
	}
	s.progress[handle] = &slotProgress{}
	s.mu.Unlock()

	s.logger.Info("image slot reserved",
		"name", req.Name,
		"handle", handle,
		"size", req.Size,
		"region_offset", regionOffset,
		"region_length", regionLength,
		"replaced", found,
	)
	return handle, nil
}

func validateRequest(req CreateRequest) error {
	switch {
	case req.Name == "":
		return fault.New(fault.KindProtocol, "create", "image name is empty")
	case len(req.Name) > MaxNameLength:
		return fault.New(fault.KindProtocol, "create", "image name %q exceeds %d bytes", req.Name, MaxNameLength)
	case len(req.Title) > MaxTitleLength:
		return fault.New(fault.KindProtocol, "create", "image title exceeds %d bytes", MaxTitleLength)
	case req.Size <= 0:
		return fault.New(fault.KindProtocol, "create", "image size %d is not positive", req.Size)
	}
	return nil
}

// lowestFreeHandle returns the smallest handle no slot uses.
func lowestFreeHandle(slots []slot) (Handle, bool) {
	var used [MaxHandles]bool
	for _, existing := range slots {
		used[existing.handle] = true
	}
	for candidate := range MaxHandles {
		if !used[candidate] {
			return Handle(candidate), true
		}
	}
	return 0, false
}

// firstFit returns the lowest offset where length bytes fit between
// the regions of slots. slots must be sorted by region offset.
func firstFit(slots []slot, length, deviceSize int64) (int64, bool) {
	var cursor int64
	for _, existing := range slots {
		if existing.regionOffset-cursor >= length {
			return cursor, true
		}
		cursor = max(cursor, existing.regionOffset+existing.regionLength)
	}
	if deviceSize-cursor >= length {
		return cursor, true
	}
	return 0, false
}

// Erase resets [offset, offset+length) of the slot to the erased state.
// offset must be page aligned; length is rounded up to a whole number
// of pages, and the rounded range must stay inside the slot's region.
//
// Erasing any part of a complete entry returns it to pending: it
// disappears from Open until it is fully written again.
func (s *Store) Erase(ctx context.Context, handle Handle, offset, length int64) error {
	current, err := s.slot(ctx, "erase", handle)
	if err != nil {
		return err
	}

	pageSize := s.device.PageSize()
	if offset < 0 || offset%pageSize != 0 {
		return fault.New(fault.KindProtocol, "erase", "offset %d is not aligned to page size %d", offset, pageSize)
	}
	if length < 0 {
		return fault.New(fault.KindProtocol, "erase", "negative length %d", length)
	}
	rounded := flash.RoundUp(length, pageSize)
	if offset > current.regionLength || rounded > current.regionLength-offset {
		return fault.New(fault.KindProtocol, "erase",
			"range [%d, %d) exceeds the %d-byte region of image %q", offset, offset+rounded, current.regionLength, current.name)
	}
	if rounded == 0 {
		return nil
	}

	if current.state == stateComplete {
		if err := s.markPending(ctx, handle); err != nil {
			return err
		}
		s.logger.Info("complete image erased, now pending", "name", current.name, "handle", handle)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	progress := s.progressLocked(handle)
	// Whatever happens below, these bytes no longer hold image data.
	progress.written = progress.written.remove(offset, offset+rounded)
	if err := s.device.Erase(current.regionOffset+offset, rounded); err != nil {
		progress.erased = progress.erased.remove(offset, offset+rounded)
		return fault.Wrap(fault.KindIO, "erase", err)
	}
	progress.erased = progress.erased.add(offset, offset+rounded)

	s.logger.Debug("image region erased",
		"name", current.name,
		"handle", handle,
		"offset", offset,
		"length", rounded,
	)
	return nil
}

// Write programs data at offset within the slot. Every target byte
// must have been erased by a prior Erase on this handle and not
// written since, and offset+len(data) must not exceed the image size.
//
// The Write that completes coverage of the whole image seals the
// entry: the device is synced, the contents are hashed, and the entry
// becomes visible to Open.
func (s *Store) Write(ctx context.Context, handle Handle, offset int64, data []byte) error {
	current, err := s.slot(ctx, "write", handle)
	if err != nil {
		return err
	}
	if current.state == stateComplete {
		return fault.New(fault.KindProtocol, "write", "image %q is complete; erase it before writing", current.name)
	}

	end := offset + int64(len(data))
	if offset < 0 || end > current.size {
		return fault.New(fault.KindProtocol, "write",
			"range [%d, %d) exceeds the %d-byte size of image %q", offset, end, current.size, current.name)
	}
	if len(data) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fault.Wrap(fault.KindIO, "write", err)
	}
	defer s.pool.Put(conn)

	s.mu.Lock()
	defer s.mu.Unlock()

	progress := s.progressLocked(handle)
	if !progress.erased.covers(offset, end) {
		return fault.New(fault.KindProtocol, "write",
			"range [%d, %d) of image %q is not erased", offset, end, current.name)
	}

	// The range is consumed whether or not the device write succeeds:
	// after a failed program its contents are indeterminate.
	progress.erased = progress.erased.remove(offset, end)
	if _, err := s.device.WriteAt(data, current.regionOffset+offset); err != nil {
		return fault.Wrap(fault.KindIO, "write", err)
	}
	progress.written = progress.written.add(offset, end)

	if !progress.written.covers(0, current.size) {
		return nil
	}
	return s.sealLocked(conn, current)
}

// sealLocked marks a fully written slot complete. Called with s.mu
// held.
func (s *Store) sealLocked(conn *sqlite.Conn, current slot) error {
	if err := s.device.Sync(); err != nil {
		return fault.Wrap(fault.KindIO, "write", fmt.Errorf("syncing image %q: %w", current.name, err))
	}
	digest, err := hashImage(io.NewSectionReader(s.device, current.regionOffset, current.size))
	if err != nil {
		return fault.Wrap(fault.KindIO, "write", fmt.Errorf("hashing image %q: %w", current.name, err))
	}

	installedAt := s.clock.Now()
	err = sqlitex.Execute(conn,
		`UPDATE images SET state = ?, digest = ?, installed_at = ? WHERE handle = ?`,
		&sqlitex.ExecOptions{Args: []any{stateComplete, digest[:], installedAt.UnixNano(), int64(current.handle)}})
	if err != nil {
		return fault.Wrap(fault.KindIO, "write", fmt.Errorf("sealing image %q: %w", current.name, err))
	}
	if conn.Changes() == 0 {
		return fault.New(fault.KindNotFound, "write", "image %q was deleted during install", current.name)
	}
	delete(s.progress, current.handle)

	s.logger.Info("image installed",
		"name", current.name,
		"handle", current.handle,
		"size", current.size,
		"digest", digest.String(),
	)
	return nil
}

// markPending moves a complete entry back to pending.
func (s *Store) markPending(ctx context.Context, handle Handle) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fault.Wrap(fault.KindIO, "erase", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE images SET state = ?, digest = NULL, installed_at = NULL WHERE handle = ?`,
		&sqlitex.ExecOptions{Args: []any{statePending, int64(handle)}})
	if err != nil {
		return fault.Wrap(fault.KindIO, "erase", err)
	}
	return nil
}

// progressLocked returns the coverage record of a pending slot,
// creating an empty one for slots left pending by an earlier process.
func (s *Store) progressLocked(handle Handle) *slotProgress {
	progress, ok := s.progress[handle]
	if !ok {
		progress = &slotProgress{}
		s.progress[handle] = progress
	}
	return progress
}

// Open returns the metadata of the complete image called name.
func (s *Store) Open(ctx context.Context, name string) (StoredImage, error) {
	return s.openWhere(ctx, "name = ?", name)
}

// OpenHandle returns the metadata of the complete image with handle.
func (s *Store) OpenHandle(ctx context.Context, handle Handle) (StoredImage, error) {
	return s.openWhere(ctx, "handle = ?", int64(handle))
}

func (s *Store) openWhere(ctx context.Context, where string, key any) (StoredImage, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StoredImage{}, fault.Wrap(fault.KindIO, "open", err)
	}
	defer s.pool.Put(conn)

	var image StoredImage
	found := false
	err = sqlitex.Execute(conn,
		`SELECT `+imageColumns+` FROM images WHERE state = 'complete' AND `+where,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				image = scanImage(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return StoredImage{}, fault.Wrap(fault.KindIO, "open", err)
	}
	if !found {
		return StoredImage{}, fault.New(fault.KindNotFound, "open", "no installed image with %s", describeKey(where, key))
	}
	return image, nil
}

// List returns every complete image sorted by name.
func (s *Store) List(ctx context.Context) ([]StoredImage, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "list", err)
	}
	defer s.pool.Put(conn)

	var images []StoredImage
	err = sqlitex.Execute(conn,
		`SELECT `+imageColumns+` FROM images WHERE state = 'complete' ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				images = append(images, scanImage(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "list", err)
	}
	return images, nil
}

// Pending returns the names of entries that were created but never
// completed, sorted.
func (s *Store) Pending(ctx context.Context) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "pending", err)
	}
	defer s.pool.Put(conn)

	var names []string
	err = sqlitex.Execute(conn,
		`SELECT name FROM images WHERE state = 'pending' ORDER BY name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				names = append(names, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "pending", err)
	}
	return names, nil
}

// Usage reports how many device bytes are reserved by entries in
// either state, and the device capacity.
func (s *Store) Usage(ctx context.Context) (reserved, capacity int64, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, 0, fault.Wrap(fault.KindIO, "usage", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `SELECT COALESCE(SUM(region_length), 0) FROM images`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				reserved = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, 0, fault.Wrap(fault.KindIO, "usage", err)
	}
	return reserved, s.device.Size(), nil
}

// Delete removes the entry called name in either state and releases
// its region. The flash contents are left as they are.
func (s *Store) Delete(ctx context.Context, name string) error {
	current, found, err := s.lookup(ctx, "name = ?", name)
	if err != nil {
		return err
	}
	if !found {
		return fault.New(fault.KindNotFound, "delete", "no image named %q", name)
	}
	return s.DeleteHandle(ctx, current.handle)
}

// DeleteHandle removes the entry with handle in either state.
func (s *Store) DeleteHandle(ctx context.Context, handle Handle) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fault.Wrap(fault.KindIO, "delete", err)
	}
	defer s.pool.Put(conn)

	if err := deleteSlot(conn, handle); err != nil {
		return err
	}
	if conn.Changes() == 0 {
		return fault.New(fault.KindNotFound, "delete", "no image with handle %d", handle)
	}

	s.mu.Lock()
	delete(s.progress, handle)
	s.mu.Unlock()

	s.logger.Info("image deleted", "handle", handle)
	return nil
}

// Reap deletes every pending entry and returns how many were removed.
// Run it at boot, before any install starts: it cannot tell an entry
// abandoned by a failed install from one an install is writing right
// now.
func (s *Store) Reap(ctx context.Context) (int, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fault.Wrap(fault.KindIO, "reap", err)
	}
	defer s.pool.Put(conn)

	var reaped []Handle
	err = sqlitex.Execute(conn,
		`DELETE FROM images WHERE state = 'pending' RETURNING handle, name`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				reaped = append(reaped, Handle(stmt.ColumnInt64(0)))
				s.logger.Warn("reaped incomplete image", "name", stmt.ColumnText(1), "handle", stmt.ColumnInt64(0))
				return nil
			},
		})
	if err != nil {
		return 0, fault.Wrap(fault.KindIO, "reap", err)
	}

	s.mu.Lock()
	for _, handle := range reaped {
		delete(s.progress, handle)
	}
	s.mu.Unlock()
	return len(reaped), nil
}

// Reader returns the bytes of a complete image.
func (s *Store) Reader(ctx context.Context, handle Handle) (*io.SectionReader, StoredImage, error) {
	image, err := s.OpenHandle(ctx, handle)
	if err != nil {
		return nil, StoredImage{}, err
	}
	return io.NewSectionReader(s.device, image.Offset, image.Size), image, nil
}

// Verify rehashes a complete image and compares it with the digest
// recorded when it was sealed.
func (s *Store) Verify(ctx context.Context, handle Handle) error {
	reader, image, err := s.Reader(ctx, handle)
	if err != nil {
		return err
	}
	digest, err := hashImage(reader)
	if err != nil {
		return fault.Wrap(fault.KindIO, "verify", err)
	}
	if digest != image.Digest {
		return fault.New(fault.KindIO, "verify",
			"image %q digest is %s, recorded %s", image.Name, digest, image.Digest)
	}
	return nil
}

// slot loads the metadata row of handle in either state.
func (s *Store) slot(ctx context.Context, op string, handle Handle) (slot, error) {
	current, found, err := s.lookup(ctx, "handle = ?", int64(handle))
	if err != nil {
		return slot{}, err
	}
	if !found {
		return slot{}, fault.New(fault.KindNotFound, op, "no image with handle %d", handle)
	}
	return current, nil
}

func (s *Store) lookup(ctx context.Context, where string, key any) (slot, bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return slot{}, false, fault.Wrap(fault.KindIO, "lookup", err)
	}
	defer s.pool.Put(conn)
	return lookupSlot(conn, where, key)
}

const slotColumns = `handle, name, size, region_offset, region_length, state`

func lookupSlot(conn *sqlite.Conn, where string, key any) (slot, bool, error) {
	var result slot
	found := false
	err := sqlitex.Execute(conn,
		`SELECT `+slotColumns+` FROM images WHERE `+where,
		&sqlitex.ExecOptions{
			Args: []any{key},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				result = scanSlot(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return slot{}, false, fault.Wrap(fault.KindIO, "lookup", err)
	}
	return result, found, nil
}

// allSlots returns every entry sorted by region offset.
func allSlots(conn *sqlite.Conn) ([]slot, error) {
	var slots []slot
	err := sqlitex.Execute(conn,
		`SELECT `+slotColumns+` FROM images ORDER BY region_offset`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				slots = append(slots, scanSlot(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fault.Wrap(fault.KindIO, "create", err)
	}
	return slots, nil
}

func scanSlot(stmt *sqlite.Stmt) slot {
	return slot{
		handle:       Handle(stmt.ColumnInt64(0)),
		name:         stmt.ColumnText(1),
		size:         stmt.ColumnInt64(2),
		regionOffset: stmt.ColumnInt64(3),
		regionLength: stmt.ColumnInt64(4),
		state:        stmt.ColumnText(5),
	}
}

func deleteSlot(conn *sqlite.Conn, handle Handle) error {
	err := sqlitex.Execute(conn, `DELETE FROM images WHERE handle = ?`,
		&sqlitex.ExecOptions{Args: []any{int64(handle)}})
	if err != nil {
		return fault.Wrap(fault.KindIO, "delete", err)
	}
	return nil
}

const imageColumns = `handle, name, title, version, size, region_offset, digest, installed_at`

func scanImage(stmt *sqlite.Stmt) StoredImage {
	image := StoredImage{
		Handle:      Handle(stmt.ColumnInt64(0)),
		Name:        stmt.ColumnText(1),
		Title:       stmt.ColumnText(2),
		Version:     uint16(stmt.ColumnInt64(3)),
		Size:        stmt.ColumnInt64(4),
		Offset:      stmt.ColumnInt64(5),
		InstalledAt: time.Unix(0, stmt.ColumnInt64(7)).UTC(),
	}
	stmt.ColumnBytes(6, image.Digest[:])
	return image
}

func describeKey(where string, key any) string {
	switch where {
	case "name = ?":
		return fmt.Sprintf("name %q", key)
	case "handle = ?":
		return fmt.Sprintf("handle %v", key)
	}
	return fmt.Sprint(key)
}

// IsNotFound reports whether err means no complete image matched.
func IsNotFound(err error) bool {
	return errors.Is(err, fault.ErrNotFound)
}
