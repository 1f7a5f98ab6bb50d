// Package storage implements safe access to markdown documents on the
// local file system: per-file advisory locking with atomic replacement,
// and workspace-level discovery and manipulation.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/natefinch/atomic"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
)

// File provides lock-coordinated access to one markdown document. Reads
// take a shared flock on the sidecar <path>.lock, writes an exclusive
// one, so concurrent processes editing the same file never interleave.
type File struct {
	path     string // resolved absolute path of the document
	lockPath string // sidecar lock file, never holds content
}

// NewFile builds an accessor for path. Symlinks are resolved when the
// target exists; a not-yet-created file keeps its absolute path as given.
func NewFile(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %s: %w: %w", path, apperr.ErrIO, err)
	}
	if resolved, rErr := filepath.EvalSymlinks(abs); rErr == nil {
		abs = resolved
	}
	return &File{path: abs, lockPath: abs + ".lock"}, nil
}

// Path returns the resolved absolute path of the document.
func (f *File) Path() string { return f.path }

// Read returns the document content under a shared lock. The content must
// be valid UTF-8 text.
func (f *File) Read() (string, error) {
	if _, err := os.Stat(f.path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage: read %s: %w", f.path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: stat %s: %w: %w", f.path, apperr.ErrIO, err)
	}

	lock, err := acquireLock(f.lockPath, false, LockTimeout)
	if err != nil {
		return "", err
	}
	defer lock.release()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("storage: read %s: %w", f.path, apperr.ErrNotFound)
		}
		return "", fmt.Errorf("storage: read %s: %w: %w", f.path, apperr.ErrIO, err)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("storage: read %s: %w", f.path, apperr.ErrDecode)
	}
	return string(data), nil
}

// Write replaces the document content under an exclusive lock. Content is
// staged to a temp file in the destination directory, fsynced and renamed
// over the target, so observers only ever see the old or the new version
// in full. Parent directories are created as needed.
func (f *File) Write(content string) error {
	lock, err := acquireLock(f.lockPath, true, LockTimeout)
	if err != nil {
		return err
	}
	defer lock.release()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("storage: mkdir for %s: %w: %w", f.path, apperr.ErrIO, err)
	}
	if err := atomic.WriteFile(f.path, strings.NewReader(content)); err != nil {
		return fmt.Errorf("storage: write %s: %w: %w", f.path, apperr.ErrIO, err)
	}
	return nil
}

// Stat reports size and timestamps. It does not take the lock; the values
// are a point-in-time snapshot either way.
func (f *File) Stat() (Metadata, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, fmt.Errorf("storage: stat %s: %w", f.path, apperr.ErrNotFound)
		}
		return Metadata{}, fmt.Errorf("storage: stat %s: %w: %w", f.path, apperr.ErrIO, err)
	}
	return Metadata{
		Path:       f.path,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
		CreatedAt:  createdAt(info),
	}, nil
}

// Release removes the sidecar lock file. Best effort and idempotent; a
// lock held by another process survives through its open descriptor.
func (f *File) Release() {
	_ = os.Remove(f.lockPath)
}
