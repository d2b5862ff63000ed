// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Reserved names within the filesystem store root. Keys may not start
// with a dot, so these can never collide with stored values.
const (
	tmpDir   = ".tmp"
	lockFile = ".lock"
)

// ErrLocked is returned by [OpenFilesystem] when another process holds
// the store root.
var ErrLocked = errors.New("store root is locked by another process")

// Filesystem stores each value as a file at <root>/<key>. Writes go to a
// temp file under <root>/.tmp and are renamed into place, so a value is
// either fully present or absent. An exclusive flock on <root>/.lock
// keeps two registry processes from sharing one root.
type Filesystem struct {
	root string
	lock *os.File
}

// OpenFilesystem creates the root directory if needed and takes the
// root lock. The caller must call Close to release it.
func OpenFilesystem(root string) (*Filesystem, error) {
	for _, dir := range []string{root, filepath.Join(root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
		}
	}

	lock, err := os.OpenFile(filepath.Join(root, lockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening store lock: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, root)
		}
		return nil, fmt.Errorf("locking store root %s: %w", root, err)
	}

	// Temp files left by a crash mid-Save are garbage: the rename never
	// happened, so no key refers to them.
	if entries, err := os.ReadDir(filepath.Join(root, tmpDir)); err == nil {
		for _, entry := range entries {
			os.Remove(filepath.Join(root, tmpDir, entry.Name()))
		}
	}

	return &Filesystem{root: root, lock: lock}, nil
}

// Root returns the store's root directory.
func (f *Filesystem) Root() string {
	return f.root
}

// Close releases the root lock.
func (f *Filesystem) Close() error {
	if f.lock == nil {
		return nil
	}
	unix.Flock(int(f.lock.Fd()), unix.LOCK_UN)
	err := f.lock.Close()
	f.lock = nil
	return err
}

func (f *Filesystem) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	if strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidKey, key)
	}
	return filepath.Join(f.root, filepath.FromSlash(key)), nil
}

func (f *Filesystem) Save(ctx context.Context, key string, data []byte) error {
	finalPath, err := f.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Join(f.root, tmpDir), "value-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", key, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", key, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming %s into place: %w", key, err)
	}

	success = true
	return nil
}

func (f *Filesystem) Load(ctx context.Context, key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	return data, nil
}

func (f *Filesystem) Exists(ctx context.Context, key string) (bool, error) {
	path, err := f.path(key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking %s: %w", key, err)
	}
	return info.Mode().IsRegular(), nil
}

func (f *Filesystem) Delete(ctx context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
