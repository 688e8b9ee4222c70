package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// fsnotifySource implements Source on top of fsnotify. fsnotify only watches
// single directories, so recursion is done by adding every subdirectory and
// picking up new ones as they are created.
type fsnotifySource struct {
	watcher   *fsnotify.Watcher
	root      string
	recursive bool
	skipDir   func(path string) bool // Directories that should not be watched
	handler   Handler
	stopOnce  sync.Once
	doneCh    chan struct{} // Closed when the watch goroutine has finished
	started   bool
}

// newFsnotifySource creates an fsnotify backed source. skipDir may be nil.
func newFsnotifySource(skipDir func(path string) bool) (*fsnotifySource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &fsnotifySource{
		watcher: w,
		skipDir: skipDir,
		doneCh:  make(chan struct{}),
	}, nil
}

// Subscribe adds root (and its subdirectories when recursive) to the watcher
// and starts the event loop.
func (s *fsnotifySource) Subscribe(root string, recursive bool, h Handler) error {
	if err := validateRoot(root); err != nil {
		return err
	}

	s.root = filepath.Clean(root)
	s.recursive = recursive
	s.handler = h

	if recursive {
		if err := s.addDirectoriesRecursively(s.root); err != nil {
			return err
		}
	} else if err := s.watcher.Add(s.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", s.root, err)
	}

	s.started = true
	go s.watch()
	return nil
}

// Close stops the watcher. Closing fsnotify closes its channels, which ends
// the watch goroutine.
func (s *fsnotifySource) Close() error {
	var err error
	s.stopOnce.Do(func() {
		err = s.watcher.Close()
		if s.started {
			<-s.doneCh
		}
	})
	return err
}

// watch is the main event loop.
func (s *fsnotifySource) watch() {
	defer close(s.doneCh)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.handler.HandleError(fmt.Errorf("fsnotify: %w", err))
		}
	}
}

func (s *fsnotifySource) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	if path == s.root && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		s.handler.HandleError(fmt.Errorf("watch root %s was removed", s.root))
		return
	}

	// New directories need their own watch in recursive mode
	if s.recursive && event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := s.addDirectoriesRecursively(path); err != nil {
				log.Warnf("failed to watch new directory %s: %v", path, err)
			}
		}
	}

	s.handler.HandleRaw(RawEvent{
		Paths: []string{path},
		Kind:  mapFsnotifyOp(event.Op),
	})
}

// mapFsnotifyOp converts an fsnotify op to a raw kind. The old name of a
// rename is reported as removed; the new name arrives as its own Create.
func mapFsnotifyOp(op fsnotify.Op) RawKind {
	switch {
	case op.Has(fsnotify.Create):
		return RawCreate
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return RawRemove
	case op.Has(fsnotify.Write):
		return RawModify
	default:
		return RawAny
	}
}

// addDirectoriesRecursively adds all directories in the tree to the watcher.
func (s *fsnotifySource) addDirectoriesRecursively(rootPath string) error {
	return filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// If it's the root path, fail immediately
			if path == rootPath {
				return err
			}
			log.Warnf("error accessing %s: %v", path, err)
			return nil
		}

		if !info.IsDir() {
			return nil
		}

		if path != s.root && s.skipDir != nil && s.skipDir(path) {
			return filepath.SkipDir
		}

		if err := s.watcher.Add(path); err != nil {
			if path == rootPath {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			log.Warnf("failed to watch directory %s: %v", path, err)
		}
		return nil
	})
}
