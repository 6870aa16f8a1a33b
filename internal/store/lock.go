package store

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// Lock represents held single-writer ownership of a vault path.
type Lock struct {
	path string
	log  *zap.Logger
}

// LockPath returns the lock file location for the vault.
func (s *Store) LockPath() string {
	return s.path + ".lock"
}

// AcquireLock claims single-writer access to the vault by creating the
// lock file exclusively. An existing lock file means another process
// (or a previous crash) holds the vault.
func (s *Store) AcquireLock() (*Lock, error) {
	lockPath := s.LockPath()

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLockConflict, lockPath)
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	// The pid helps a human decide whether a leftover lock is stale.
	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}

	s.log.Debug("vault lock acquired", zap.String("path", lockPath))
	return &Lock{path: lockPath, log: s.log}, nil
}

// Release removes the lock file. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	l.log.Debug("vault lock released", zap.String("path", l.path))
	l.path = ""
	return nil
}
