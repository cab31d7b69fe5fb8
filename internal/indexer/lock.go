package indexer

import (
	"fmt"

	"github.com/gofrs/flock"

	apperrors "github.com/webseek/webseek/pkg/errors"
)

// Lock serialises builds across processes with an advisory file lock. Two
// concurrent builds against the same store would interleave their table
// swaps, so the second one must not start.
type Lock struct {
	fl *flock.Flock
}

// NewLock creates a lock at the given path. The file is created on first
// acquisition and never removed; only the flock on it matters.
func NewLock(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Acquire takes the lock without blocking. A held lock surfaces as
// ErrBuildLocked so callers can treat it as a clean no-op.
func (l *Lock) Acquire() error {
	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring build lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", apperrors.ErrBuildLocked, l.fl.Path())
	}
	return nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
