package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Matcher:
// - Built-in patterns ignore .git, target/, node_modules/, swap and tmp files, .DS_Store
// - Directory-only patterns do not match plain files of the same name
// - Contents of an ignored directory are ignored
// - .gitignore layer is read when enabled and skipped when disabled
// - Missing .gitignore is not an error
// - Caller patterns take precedence over built-ins (negation re-includes)
// - Built-ins take precedence over .gitignore negations
// - Anchored patterns only match from the root
// - Malformed patterns fail construction with ErrInvalidPattern
// - Matches is safe for concurrent use

func TestMatcher_Builtins(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Root: t.TempDir()})
	require.NoError(t, err)

	tests := []struct {
		path   string
		isDir  bool
		expect bool
	}{
		{".git", true, true},
		{".git/HEAD", false, true},
		{"target", true, true},
		{"target/debug/app", false, true},
		{"node_modules/left-pad/index.js", false, true},
		{"src/main.go.swp", false, true},
		{"x.tmp", false, true},
		{"deep/dir/.DS_Store", false, true},
		{"src/main.go", false, false},
		{"README.md", false, false},
		// target/ is directory-only
		{"target", false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expect, m.Matches(tt.path, tt.isDir), "path %q dir=%v", tt.path, tt.isDir)
	}
}

func TestMatcher_EmptyPath(t *testing.T) {
	t.Parallel()

	m, err := New(Options{})
	require.NoError(t, err)
	assert.False(t, m.Matches("", true))
	assert.False(t, m.Matches(".", true))
}

func TestMatcher_OSSeparators(t *testing.T) {
	t.Parallel()

	m, err := New(Options{})
	require.NoError(t, err)
	assert.True(t, m.Matches(filepath.Join("node_modules", "a.js"), false))
}

func TestMatcher_Gitignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	gitignore := "# build output\n*.log\n/dist\nvendor/\n!keep.log\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte(gitignore), 0644))

	t.Run("enabled", func(t *testing.T) {
		m, err := New(Options{Root: root, UseGitignore: true})
		require.NoError(t, err)

		assert.True(t, m.Matches("server.log", false))
		assert.True(t, m.Matches("logs/server.log", false))
		assert.False(t, m.Matches("keep.log", false))
		assert.True(t, m.Matches("dist", true))
		assert.True(t, m.Matches("dist/bundle.js", false))
		assert.False(t, m.Matches("web/dist/bundle.js", false))
		assert.True(t, m.Matches("vendor/lib/a.go", false))
		assert.False(t, m.Matches("main.go", false))
	})

	t.Run("disabled", func(t *testing.T) {
		m, err := New(Options{Root: root, UseGitignore: false})
		require.NoError(t, err)

		assert.False(t, m.Matches("server.log", false))
		assert.False(t, m.Matches("dist/bundle.js", false))
	})
}

func TestMatcher_MissingGitignore(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Root: t.TempDir(), UseGitignore: true})
	require.NoError(t, err)
	assert.False(t, m.Matches("main.go", false))
}

func TestMatcher_Precedence(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("!important.tmp\n"), 0644))

	t.Run("builtin beats gitignore", func(t *testing.T) {
		m, err := New(Options{Root: root, UseGitignore: true})
		require.NoError(t, err)
		assert.True(t, m.Matches("important.tmp", false))
	})

	t.Run("caller beats builtin", func(t *testing.T) {
		m, err := New(Options{Root: root, UseGitignore: true, Extra: []string{"!important.tmp"}})
		require.NoError(t, err)
		assert.False(t, m.Matches("important.tmp", false))
		assert.True(t, m.Matches("other.tmp", false))
	})

	t.Run("last caller pattern wins", func(t *testing.T) {
		m, err := New(Options{Extra: []string{"*.gen.go", "!keep.gen.go"}})
		require.NoError(t, err)
		assert.True(t, m.Matches("api.gen.go", false))
		assert.False(t, m.Matches("keep.gen.go", false))
	})
}

func TestMatcher_CallerPatterns(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Extra: []string{"/build", "docs/**/*.pdf", "cache/"}})
	require.NoError(t, err)

	assert.True(t, m.Matches("build", true))
	assert.True(t, m.Matches("build/out.o", false))
	assert.False(t, m.Matches("cmd/build", true))
	assert.True(t, m.Matches("docs/a/b/manual.pdf", false))
	assert.False(t, m.Matches("manual.pdf", false))
	assert.True(t, m.Matches("pkg/cache/entry", false))
	assert.False(t, m.Matches("cache", false))
}

func TestMatcher_InvalidPattern(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"[abc", "!"} {
		m, err := New(Options{Extra: []string{p}})
		assert.ErrorIs(t, err, ErrInvalidPattern, "pattern %q", p)
		assert.Nil(t, m)
	}
}

func TestMatcher_IgnoresBlankAndComments(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Extra: []string{"", "   ", "# comment"}})
	require.NoError(t, err)
	assert.False(t, m.Matches("main.go", false))
}

func TestMatcher_ConcurrentUse(t *testing.T) {
	t.Parallel()

	m, err := New(Options{Extra: []string{"*.out"}})
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				assert.True(t, m.Matches("a/b/c.out", false))
				assert.False(t, m.Matches("a/b/c.go", false))
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
