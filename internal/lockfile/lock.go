// Package lockfile provides advisory file locks guarding read-modify-write
// cycles on shared state files.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock is a held exclusive lock.
type Lock struct {
	f *os.File
}

// Acquire opens (creating if needed) the lock file at path and blocks until
// an exclusive lock is held.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("lockfile: create dir: %w", err)
	}
	// #nosec G304 - lock path is derived from the memory root
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lockfile: open %s: %w", path, err)
	}
	if err := lockExclusive(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lockfile: lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// Release unlocks and closes the lock file. The file itself is left in
// place for the next holder.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
