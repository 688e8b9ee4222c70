package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// GitChange describes a change inside the git directory.
type GitChange struct {
	// Path is the git-internal file that changed.
	Path string

	// PrevBranch and Branch are the HEAD branch before and after the change.
	// They are equal unless HEAD moved to another branch.
	PrevBranch string
	Branch     string
}

// BranchSwitched reports whether HEAD moved to another branch.
func (c GitChange) BranchSwitched() bool {
	return c.PrevBranch != c.Branch
}

// GitDirWatcher watches a repository's git directory for changes made by
// external processes (commits, checkouts, staging, fetches). The ignore rules
// keep .git out of the main event stream, so this is the only signal that
// repository state moved underneath a cached status.
type GitDirWatcher struct {
	gitDir     string
	headPath   string
	watcher    *fsnotify.Watcher
	lastBranch string
	stopCh     chan struct{}
	doneCh     chan struct{}
	stopOnce   sync.Once
	started    bool
	mu         sync.RWMutex // Protects lastBranch
}

// gitStateFiles are the top-level git directory entries whose changes
// affect status.
var gitStateFiles = map[string]bool{
	"HEAD":        true,
	"index":       true,
	"ORIG_HEAD":   true,
	"MERGE_HEAD":  true,
	"FETCH_HEAD":  true,
	"packed-refs": true,
}

// NewGitDirWatcher creates a watcher for gitDir (the .git directory).
// Returns an error if HEAD cannot be read.
func NewGitDirWatcher(gitDir string) (*GitDirWatcher, error) {
	headPath := filepath.Join(gitDir, "HEAD")

	if _, err := os.Stat(headPath); err != nil {
		return nil, fmt.Errorf("cannot access git HEAD: %w", err)
	}

	initialBranch, err := readBranch(headPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read initial branch: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &GitDirWatcher{
		gitDir:     gitDir,
		headPath:   headPath,
		watcher:    w,
		lastBranch: initialBranch,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Branch returns the last branch read from HEAD.
func (gw *GitDirWatcher) Branch() string {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return gw.lastBranch
}

// Start begins monitoring. The callback runs on the watcher goroutine.
func (gw *GitDirWatcher) Start(callback func(GitChange)) error {
	// Watch directories rather than files so replaced files (HEAD.lock
	// renamed over HEAD) keep being seen.
	if err := gw.watcher.Add(gw.gitDir); err != nil {
		return fmt.Errorf("failed to watch git directory: %w", err)
	}
	for _, sub := range []string{
		filepath.Join("refs", "heads"),
		filepath.Join("refs", "remotes", "origin"),
	} {
		gw.addRefDirs(filepath.Join(gw.gitDir, sub))
	}

	gw.started = true
	go gw.watch(callback)
	return nil
}

// addRefDirs watches dir and every directory below it, so refs of
// slash-named branches (refs/heads/feature/x) are seen.
func (gw *GitDirWatcher) addRefDirs(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := gw.watcher.Add(path); err != nil {
			log.Warnf("failed to watch %s: %v", path, err)
		}
		return nil
	})
	if err != nil {
		log.Warnf("failed to walk %s: %v", dir, err)
	}
}

// Stop stops the watcher and cleans up resources.
func (gw *GitDirWatcher) Stop() error {
	var err error
	gw.stopOnce.Do(func() {
		close(gw.stopCh)
		if gw.started {
			<-gw.doneCh
		}
		err = gw.watcher.Close()
	})
	return err
}

func (gw *GitDirWatcher) watch(callback func(GitChange)) {
	defer close(gw.doneCh)

	for {
		select {
		case <-gw.stopCh:
			return

		case event, ok := <-gw.watcher.Events:
			if !ok {
				return
			}
			if !gw.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					gw.addRefDirs(event.Name)
				}
			}
			gw.dispatch(event.Name, callback)

		case err, ok := <-gw.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("git directory watcher error: %v", err)
		}
	}
}

// relevant filters out lock files and unrelated git internals.
func (gw *GitDirWatcher) relevant(path string) bool {
	if strings.HasSuffix(path, ".lock") {
		return false
	}
	rel, err := filepath.Rel(gw.gitDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return gitStateFiles[rel] || strings.HasPrefix(rel, "refs/")
}

func (gw *GitDirWatcher) dispatch(path string, callback func(GitChange)) {
	gw.mu.RLock()
	oldBranch := gw.lastBranch
	gw.mu.RUnlock()

	newBranch := oldBranch
	if b, err := readBranch(gw.headPath); err == nil {
		newBranch = b
	} else if !os.IsNotExist(err) {
		log.Warnf("failed to read git HEAD: %v", err)
	}

	if newBranch != oldBranch {
		gw.mu.Lock()
		gw.lastBranch = newBranch
		gw.mu.Unlock()
	}

	// Fire callback with panic recovery
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Warnf("git watcher callback panic: %v", r)
			}
		}()
		callback(GitChange{Path: path, PrevBranch: oldBranch, Branch: newBranch})
	}()
}

// readBranch reads and parses the current branch from HEAD.
func readBranch(headPath string) (string, error) {
	content, err := os.ReadFile(headPath)
	if err != nil {
		return "", err
	}
	return parseBranch(content), nil
}

// parseBranch parses branch name from HEAD file content.
// Returns branch name, or "detached" for detached HEAD.
func parseBranch(content []byte) string {
	line := strings.TrimSpace(string(content))

	if strings.HasPrefix(line, "ref: refs/heads/") {
		return strings.TrimSpace(strings.TrimPrefix(line, "ref: refs/heads/"))
	}

	// 40 (sha1) or 64 (sha256) hex characters
	if (len(line) == 40 || len(line) == 64) && isHexString(line) {
		return "detached"
	}

	return line
}

// isHexString checks if a string contains only hexadecimal characters.
func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
