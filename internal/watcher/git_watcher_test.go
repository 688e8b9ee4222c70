package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for GitDirWatcher:
// - Detects branch switch from one branch to another
// - No callback on start
// - Detached HEAD is reported as "detached"
// - Index and ref updates fire callbacks without a branch switch
// - Refs of slash-named branches are watched, existing or created later
// - Lock files are ignored
// - Callback panics don't crash watcher
// - Concurrent Stop() calls are safe
// - Parse symbolic refs and detached hashes correctly
// - Missing HEAD fails construction

// setupGitDir creates a fake .git directory with HEAD pointing at branch.
func setupGitDir(t *testing.T, branch string) string {
	t.Helper()

	gitDir := filepath.Join(t.TempDir(), ".git")
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "refs", "heads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/"+branch+"\n"), 0644))
	return gitDir
}

// changeRecorder collects callback invocations.
type changeRecorder struct {
	mu      sync.Mutex
	changes []GitChange
}

func (r *changeRecorder) record(c GitChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) snapshot() []GitChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]GitChange(nil), r.changes...)
}

func (r *changeRecorder) switches() []GitChange {
	var out []GitChange
	for _, c := range r.snapshot() {
		if c.BranchSwitched() {
			out = append(out, c)
		}
	}
	return out
}

func TestGitDirWatcher_BranchSwitch(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "main")

	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)
	assert.Equal(t, "main", w.Branch())

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/feature\n"), 0644))

	require.Eventually(t, func() bool {
		return len(rec.switches()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	sw := rec.switches()[0]
	assert.Equal(t, "main", sw.PrevBranch)
	assert.Equal(t, "feature", sw.Branch)
	assert.Equal(t, "feature", w.Branch())
}

func TestGitDirWatcher_NoCallbackOnStart(t *testing.T) {
	t.Parallel()

	w, err := NewGitDirWatcher(setupGitDir(t, "main"))
	require.NoError(t, err)

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestGitDirWatcher_DetachedHEAD(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "main")
	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	hash := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte(hash+"\n"), 0644))

	require.Eventually(t, func() bool {
		sw := rec.switches()
		return len(sw) == 1 && sw[0].Branch == "detached"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGitDirWatcher_IndexAndRefChanges(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "main")
	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "index"), []byte("DIRC"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "refs", "heads", "main"), []byte("deadbeef\n"), 0644))

	require.Eventually(t, func() bool {
		var sawIndex, sawRef bool
		for _, c := range rec.snapshot() {
			switch filepath.Base(c.Path) {
			case "index":
				sawIndex = true
			case "main":
				sawRef = true
			}
		}
		return sawIndex && sawRef
	}, 2*time.Second, 20*time.Millisecond)

	assert.Empty(t, rec.switches())
}

func TestGitDirWatcher_NestedRefs(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "feature/auth")
	existing := filepath.Join(gitDir, "refs", "heads", "feature")
	require.NoError(t, os.MkdirAll(existing, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(existing, "auth"), []byte("aaaa\n"), 0644))

	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	sawPath := func(path string) bool {
		for _, c := range rec.snapshot() {
			if c.Path == path {
				return true
			}
		}
		return false
	}

	time.Sleep(50 * time.Millisecond)
	authRef := filepath.Join(existing, "auth")
	require.NoError(t, os.WriteFile(authRef, []byte("bbbb\n"), 0644))
	require.Eventually(t, func() bool { return sawPath(authRef) }, 2*time.Second, 20*time.Millisecond)

	created := filepath.Join(gitDir, "refs", "heads", "fix")
	require.NoError(t, os.Mkdir(created, 0755))
	time.Sleep(50 * time.Millisecond)
	loginRef := filepath.Join(created, "login")
	require.NoError(t, os.WriteFile(loginRef, []byte("cccc\n"), 0644))
	require.Eventually(t, func() bool { return sawPath(loginRef) }, 2*time.Second, 20*time.Millisecond)

	assert.Empty(t, rec.switches())
}

func TestGitDirWatcher_IgnoresLockAndUnrelatedFiles(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "main")
	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)

	rec := &changeRecorder{}
	require.NoError(t, w.Start(rec.record))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "index.lock"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "description"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestGitDirWatcher_CallbackPanic(t *testing.T) {
	t.Parallel()

	gitDir := setupGitDir(t, "main")
	w, err := NewGitDirWatcher(gitDir)
	require.NoError(t, err)

	rec := &changeRecorder{}
	first := true
	var mu sync.Mutex
	callback := func(c GitChange) {
		mu.Lock()
		panicNow := first
		first = false
		mu.Unlock()
		if panicNow {
			panic("boom")
		}
		rec.record(c)
	}
	require.NoError(t, w.Start(callback))
	defer w.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "index"), []byte("1"), 0644))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref: refs/heads/dev\n"), 0644))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) > 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestGitDirWatcher_ConcurrentStop(t *testing.T) {
	t.Parallel()

	w, err := NewGitDirWatcher(setupGitDir(t, "main"))
	require.NoError(t, err)
	require.NoError(t, w.Start(func(GitChange) {}))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.Stop())
		}()
	}
	wg.Wait()
}

func TestGitDirWatcher_StopWithoutStart(t *testing.T) {
	t.Parallel()

	w, err := NewGitDirWatcher(setupGitDir(t, "main"))
	require.NoError(t, err)
	assert.NoError(t, w.Stop())
}

func TestGitDirWatcher_MissingHEAD(t *testing.T) {
	t.Parallel()

	w, err := NewGitDirWatcher(t.TempDir())
	assert.Error(t, err)
	assert.Nil(t, w)
}

func TestParseBranch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		content string
		expect  string
	}{
		{"ref: refs/heads/main\n", "main"},
		{"ref: refs/heads/feature/auth-v2\n", "feature/auth-v2"},
		{"a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2\n", "detached"},
		{"A1B2C3D4E5F6A1B2C3D4E5F6A1B2C3D4E5F6A1B2", "detached"},
		{"  ref: refs/heads/main  \n", "main"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, parseBranch([]byte(tt.content)), "content %q", tt.content)
	}
}
