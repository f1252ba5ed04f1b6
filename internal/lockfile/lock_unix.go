//go:build unix

package lockfile

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockExclusive blocks until f holds an exclusive flock.
func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
