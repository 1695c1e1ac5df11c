// Package lock keeps two shard processes from serving the same
// instance id over the same index.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
)

// ErrLocked is returned when another process holds the instance lock.
var ErrLocked = errors.New("instance is already running")

// InstanceLock is a held cross-process lock on <db>.<instanceId>.lock.
type InstanceLock struct {
	path  string
	flock *flock.Flock
}

// PathFor returns the lock file for an instance serving database.
// In-memory databases lock in the temp directory.
func PathFor(database, instanceID string) string {
	if database == "" || strings.HasPrefix(database, ":memory:") || strings.Contains(database, "mode=memory") {
		return filepath.Join(os.TempDir(), "shardsearch."+instanceID+".lock")
	}
	return database + "." + instanceID + ".lock"
}

// Acquire takes the instance lock without blocking. It fails with
// ErrLocked if another process holds it.
func Acquire(database, instanceID string) (*InstanceLock, error) {
	path := PathFor(database, instanceID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	fl := flock.New(path)
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &InstanceLock{path: path, flock: fl}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Safe to call twice.
func (l *InstanceLock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	_ = os.Remove(l.path)
	return nil
}
