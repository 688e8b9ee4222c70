package watcher

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrRootNotExist indicates the watch root does not exist.
	ErrRootNotExist = errors.New("watch root does not exist")

	// ErrRootNotDirectory indicates the watch root is not a directory.
	ErrRootNotDirectory = errors.New("watch root is not a directory")

	// ErrUnknownBackend indicates an unsupported source backend name.
	ErrUnknownBackend = errors.New("unknown watch backend")
)

// Handler receives notifications from a Source. Calls may come from the
// source's own goroutine and must not block for long.
type Handler interface {
	HandleRaw(ev RawEvent)
	HandleError(err error)
}

// Source subscribes to OS filesystem notifications for a directory tree.
type Source interface {
	// Subscribe validates root and starts delivering notifications to h.
	// Failures are reported synchronously.
	Subscribe(root string, recursive bool, h Handler) error

	// Close unsubscribes. Safe to call more than once.
	Close() error
}

// IgnoreMatcher decides whether a root-relative path is ignored.
type IgnoreMatcher interface {
	Matches(relPath string, isDir bool) bool
}

// validateRoot checks that root exists and is a directory.
func validateRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrRootNotExist, root)
		}
		return fmt.Errorf("cannot access watch root %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotDirectory, root)
	}
	return nil
}
