// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package installer runs the install flow: fetch a package, decode it,
// and program it into the image store with the create, erase, write
// sequence.
//
// The image store itself never rolls back a failed install. The
// installer does: when erasing or writing fails after Create, it
// deletes the half-installed entry before returning the error, so a
// failed install leaves nothing behind for the boot path to find.
// Entries orphaned by a crash mid-install are left for
// imagestore.Store.Reap at the next boot.
//
// Installs are serialised: an Installer runs one at a time, which is
// the single-writer discipline the store expects.
package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bureau-foundation/badge/lib/catalog"
	"github.com/bureau-foundation/badge/lib/download"
	"github.com/bureau-foundation/badge/lib/fault"
	"github.com/bureau-foundation/badge/lib/imagestore"
	"github.com/bureau-foundation/badge/lib/pack"
)

// Manifest names and describes the image being installed.
type Manifest struct {
	Name    string
	Title   string
	Version uint16

	// Digest, when set, must match the decoded image. A mismatch
	// fails the install and removes the entry.
	Digest *imagestore.Digest

	// Overwrite replaces an installed image of the same name.
	Overwrite bool
}

// Config holds the parameters of an Installer.
type Config struct {
	// Store receives the images. Required.
	Store *imagestore.Store

	// Downloader fetches packages and catalogs. Required for
	// InstallURL and InstallFromCatalog.
	Downloader *download.Downloader

	// DownloadDirectory holds packages fetched to file and their
	// decoded images while they are installed. Required for file
	// downloads and InstallFile.
	DownloadDirectory string

	// Logger receives one record per install step. Nil discards.
	Logger *slog.Logger
}

// Installer installs images. Safe for concurrent use; installs run one
// at a time.
type Installer struct {
	store             *imagestore.Store
	downloader        *download.Downloader
	downloadDirectory string
	logger            *slog.Logger

	mu sync.Mutex
}

// New returns an Installer.
func New(cfg Config) (*Installer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("installer: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Installer{
		store:             cfg.Store,
		downloader:        cfg.Downloader,
		downloadDirectory: cfg.DownloadDirectory,
		logger:            logger,
	}, nil
}

// InstallBytes decodes a package held in memory and installs it.
func (i *Installer) InstallBytes(ctx context.Context, manifest Manifest, data []byte) (imagestore.StoredImage, error) {
	image, format, err := pack.Decode(data, i.store.Capacity())
	if err != nil {
		return imagestore.StoredImage{}, fmt.Errorf("installing %q: %w", manifest.Name, err)
	}
	i.logger.Debug("package decoded", "name", manifest.Name, "format", format, "package_size", len(data), "image_size", len(image))

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.install(ctx, manifest, bytes.NewReader(image), int64(len(image)))
}

// InstallFile decodes the package at path and installs it. The
// decoded image is staged in the download directory and removed
// afterwards.
func (i *Installer) InstallFile(ctx context.Context, manifest Manifest, path string) (imagestore.StoredImage, error) {
	workspace, err := i.workspace()
	if err != nil {
		return imagestore.StoredImage{}, err
	}
	defer os.RemoveAll(workspace)

	staged := filepath.Join(workspace, "image")
	size, format, err := pack.DecodeFile(path, staged, i.store.Capacity())
	if err != nil {
		return imagestore.StoredImage{}, fmt.Errorf("installing %q from %s: %w", manifest.Name, path, err)
	}
	i.logger.Debug("package decoded", "name", manifest.Name, "format", format, "path", path, "image_size", size)

	file, err := os.Open(staged)
	if err != nil {
		return imagestore.StoredImage{}, fault.Wrap(fault.KindIO, "install", err)
	}
	defer file.Close()

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.install(ctx, manifest, file, size)
}

// workspace creates a private directory under the download directory.
// Names come from catalogs, so they never become path components.
func (i *Installer) workspace() (string, error) {
	if i.downloadDirectory == "" {
		return "", fmt.Errorf("installer: DownloadDirectory is required to stage files")
	}
	directory, err := os.MkdirTemp(i.downloadDirectory, "install-*")
	if err != nil {
		return "", fault.Wrap(fault.KindIO, "install", err)
	}
	return directory, nil
}

// InstallURL downloads a package and installs it. viaFile chooses the
// file sink (staged in the download directory, no size needed up
// front) over the memory sink (requires the hub to send
// Content-Length).
func (i *Installer) InstallURL(ctx context.Context, manifest Manifest, packageURL string, viaFile bool) (imagestore.StoredImage, error) {
	if i.downloader == nil {
		return imagestore.StoredImage{}, fmt.Errorf("installer: Downloader is required to install from a URL")
	}

	if !viaFile {
		data, _, err := i.downloader.ToMemory(ctx, packageURL)
		if err != nil {
			return imagestore.StoredImage{}, fmt.Errorf("downloading %q: %w", manifest.Name, err)
		}
		return i.InstallBytes(ctx, manifest, data)
	}

	workspace, err := i.workspace()
	if err != nil {
		return imagestore.StoredImage{}, err
	}
	defer os.RemoveAll(workspace)

	packagePath := filepath.Join(workspace, "package")
	if _, err := i.downloader.ToFile(ctx, packageURL, packagePath); err != nil {
		return imagestore.StoredImage{}, fmt.Errorf("downloading %q: %w", manifest.Name, err)
	}
	return i.InstallFile(ctx, manifest, packagePath)
}

// InstallFromCatalog fetches the catalog at catalogURL and installs
// the app called name from it, replacing an older installed version.
// An installed copy at the same or a newer version is left alone and
// returned as is.
func (i *Installer) InstallFromCatalog(ctx context.Context, catalogURL, name string, viaFile bool) (imagestore.StoredImage, error) {
	if i.downloader == nil {
		return imagestore.StoredImage{}, fmt.Errorf("installer: Downloader is required to install from a catalog")
	}
	listing, err := catalog.Fetch(ctx, i.downloader, catalogURL)
	if err != nil {
		return imagestore.StoredImage{}, err
	}
	entry, ok := listing.Find(name)
	if !ok {
		return imagestore.StoredImage{}, fault.New(fault.KindNotFound, "install", "catalog %s does not list %q", catalogURL, name)
	}

	installed, err := i.store.Open(ctx, name)
	switch {
	case err == nil && !entry.Upgrade(installed.Version):
		i.logger.Info("app already up to date", "name", name, "version", installed.Version)
		return installed, nil
	case err != nil && !errors.Is(err, fault.ErrNotFound):
		return imagestore.StoredImage{}, err
	}

	manifest := Manifest{
		Name:      entry.Name,
		Title:     entry.Title,
		Version:   entry.Version,
		Digest:    entry.Digest,
		Overwrite: true,
	}
	return i.InstallURL(ctx, manifest, entry.URL, viaFile)
}

// install programs size bytes from r. Called with i.mu held.
func (i *Installer) install(ctx context.Context, manifest Manifest, r io.Reader, size int64) (imagestore.StoredImage, error) {
	logger := i.logger.With("name", manifest.Name, "version", manifest.Version)

	handle, err := i.store.Create(ctx, imagestore.CreateRequest{
		Name:      manifest.Name,
		Title:     manifest.Title,
		Version:   manifest.Version,
		Size:      size,
		Overwrite: manifest.Overwrite,
	})
	if err != nil {
		return imagestore.StoredImage{}, fmt.Errorf("installing %q: %w", manifest.Name, err)
	}

	image, err := i.program(ctx, handle, manifest, r, size)
	if err != nil {
		// The store leaves the created entry behind; remove it so the
		// name is free for a retry. The caller's context may be the
		// reason we failed, so cleanup runs without it.
		if rollbackErr := i.store.DeleteHandle(context.WithoutCancel(ctx), handle); rollbackErr != nil {
			logger.Error("rolling back failed install", "handle", handle, "error", rollbackErr)
		} else {
			logger.Warn("install failed, entry removed", "handle", handle, "error", err)
		}
		return imagestore.StoredImage{}, fmt.Errorf("installing %q: %w", manifest.Name, err)
	}

	logger.Info("app installed", "handle", image.Handle, "size", image.Size, "digest", image.Digest.String())
	return image, nil
}

// program erases the slot and writes the image a page at a time.
func (i *Installer) program(ctx context.Context, handle imagestore.Handle, manifest Manifest, r io.Reader, size int64) (imagestore.StoredImage, error) {
	if err := i.store.Erase(ctx, handle, 0, size); err != nil {
		return imagestore.StoredImage{}, err
	}

	buffer := make([]byte, i.store.PageSize())
	var offset int64
	for offset < size {
		if err := ctx.Err(); err != nil {
			return imagestore.StoredImage{}, err
		}
		length := min(int64(len(buffer)), size-offset)
		if _, err := io.ReadFull(r, buffer[:length]); err != nil {
			return imagestore.StoredImage{}, fault.Wrap(fault.KindIO, "install", fmt.Errorf("reading image at offset %d: %w", offset, err))
		}
		if err := i.store.Write(ctx, handle, offset, buffer[:length]); err != nil {
			return imagestore.StoredImage{}, err
		}
		offset += length
	}

	image, err := i.store.OpenHandle(ctx, handle)
	if err != nil {
		return imagestore.StoredImage{}, err
	}
	if manifest.Digest != nil && image.Digest != *manifest.Digest {
		return imagestore.StoredImage{}, fault.New(fault.KindIO, "install",
			"image digest %s does not match the published %s", image.Digest, *manifest.Digest)
	}
	return image, nil
}
