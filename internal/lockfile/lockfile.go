// Package lockfile guards against concurrent worker instances with a
// kernel advisory lock. The lock file may exist across reboots; only a
// live process holding the flock blocks acquisition.
package lockfile

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// Lock is a held single-instance lock.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire takes the exclusive lock without blocking. The PID is
// written into the file for operators; logic never trusts the
// contents.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("already running (lock held: %s)", path)
	}
	// Best effort; the flock on the open descriptor is the lock.
	_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644)
	return &Lock{fl: fl, path: path}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.path }

// Release drops the lock. The file is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
