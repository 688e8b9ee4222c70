// Package ignore compiles layered ignore rules into a reusable predicate.
//
// Three layers are consulted, in increasing precedence:
//
//   - the repository's .gitignore at the watch root (optional)
//   - a fixed built-in list (.git, target/, node_modules/, editor swap files)
//   - caller-supplied patterns
//
// A Matcher is immutable after construction and safe for concurrent use.
package ignore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/gobwas/glob"
)

// ErrInvalidPattern indicates an ignore pattern could not be compiled.
var ErrInvalidPattern = errors.New("invalid ignore pattern")

// BuiltinPatterns are always applied, above .gitignore and below caller patterns.
var BuiltinPatterns = []string{
	".git",
	"target/",
	"node_modules/",
	"*.swp",
	"*.tmp",
	".DS_Store",
}

// Options configures a Matcher.
type Options struct {
	// Root is the directory relative paths are resolved against.
	// The .gitignore layer is read from Root/.gitignore.
	Root string

	// UseGitignore enables the .gitignore layer.
	UseGitignore bool

	// Extra are caller-supplied patterns with the highest precedence.
	Extra []string
}

// verdict is the opinion of a layer about a path.
type verdict int

const (
	noOpinion verdict = iota
	exclude
	include
)

// layer is one precedence level of rules.
type layer interface {
	match(parts []string, isDir bool) verdict
}

// Matcher reports whether a root-relative path is ignored.
type Matcher struct {
	layers []layer // lowest precedence first
}

// New compiles the configured layers. It fails with ErrInvalidPattern when a
// built-in or caller pattern is malformed, and with the read error when the
// .gitignore exists but cannot be read.
func New(opts Options) (*Matcher, error) {
	m := &Matcher{}

	if opts.UseGitignore && opts.Root != "" {
		gl, err := loadGitignore(filepath.Join(opts.Root, ".gitignore"))
		if err != nil {
			return nil, err
		}
		if gl != nil {
			m.layers = append(m.layers, gl)
		}
	}

	builtin, err := compileGlobLayer(BuiltinPatterns)
	if err != nil {
		return nil, err
	}
	m.layers = append(m.layers, builtin)

	if len(opts.Extra) > 0 {
		extra, err := compileGlobLayer(opts.Extra)
		if err != nil {
			return nil, err
		}
		m.layers = append(m.layers, extra)
	}

	return m, nil
}

// Matches reports whether relPath (slash or OS separated, relative to the
// root) is ignored. A path inside an ignored directory is always ignored.
func (m *Matcher) Matches(relPath string, isDir bool) bool {
	parts := splitRel(relPath)
	if len(parts) == 0 {
		return false
	}

	for i := 1; i < len(parts); i++ {
		if m.decide(parts[:i], true) {
			return true
		}
	}
	return m.decide(parts, isDir)
}

// decide asks layers from highest to lowest precedence; the first layer with
// an opinion wins.
func (m *Matcher) decide(parts []string, isDir bool) bool {
	for i := len(m.layers) - 1; i >= 0; i-- {
		switch m.layers[i].match(parts, isDir) {
		case exclude:
			return true
		case include:
			return false
		}
	}
	return false
}

func splitRel(relPath string) []string {
	relPath = filepath.ToSlash(relPath)
	relPath = strings.TrimPrefix(relPath, "./")
	relPath = strings.Trim(relPath, "/")
	if relPath == "" || relPath == "." {
		return nil
	}
	return strings.Split(relPath, "/")
}

// =============================================================================
// .gitignore layer
// =============================================================================

type gitignoreLayer struct {
	patterns []gitignore.Pattern
}

// loadGitignore returns nil (no layer) when the file does not exist.
func loadGitignore(file string) (*gitignoreLayer, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return parseGitignore(content), nil
}

func parseGitignore(content []byte) *gitignoreLayer {
	gl := &gitignoreLayer{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gl.patterns = append(gl.patterns, gitignore.ParsePattern(line, nil))
	}
	return gl
}

func (l *gitignoreLayer) match(parts []string, isDir bool) verdict {
	for i := len(l.patterns) - 1; i >= 0; i-- {
		switch l.patterns[i].Match(parts, isDir) {
		case gitignore.Exclude:
			return exclude
		case gitignore.Include:
			return include
		}
	}
	return noOpinion
}

// =============================================================================
// glob layer (built-in and caller patterns)
// =============================================================================

type globPattern struct {
	source   string
	glob     glob.Glob
	negate   bool
	dirOnly  bool
	anchored bool // match the whole relative path instead of the base name
}

type globLayer struct {
	patterns []globPattern
}

func compileGlobLayer(patterns []string) (*globLayer, error) {
	gl := &globLayer{}
	for _, p := range patterns {
		gp, ok, err := compileGlobPattern(p)
		if err != nil {
			return nil, err
		}
		if ok {
			gl.patterns = append(gl.patterns, gp)
		}
	}
	return gl, nil
}

// compileGlobPattern returns ok=false for blank lines and comments.
func compileGlobPattern(raw string) (globPattern, bool, error) {
	p := strings.TrimSpace(raw)
	if p == "" || strings.HasPrefix(p, "#") {
		return globPattern{}, false, nil
	}

	gp := globPattern{source: raw}
	if strings.HasPrefix(p, "!") {
		gp.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		gp.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		gp.anchored = true
		p = strings.TrimLeft(p, "/")
	}
	if strings.Contains(p, "/") {
		gp.anchored = true
	}
	if p == "" {
		return globPattern{}, false, fmt.Errorf("%w: %q", ErrInvalidPattern, raw)
	}

	g, err := glob.Compile(p, '/')
	if err != nil {
		return globPattern{}, false, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, raw, err)
	}
	gp.glob = g
	return gp, true, nil
}

func (l *globLayer) match(parts []string, isDir bool) verdict {
	rel := strings.Join(parts, "/")
	base := path.Base(rel)

	for i := len(l.patterns) - 1; i >= 0; i-- {
		p := l.patterns[i]
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.anchored {
			subject = rel
		}
		if !p.glob.Match(subject) {
			continue
		}
		if p.negate {
			return include
		}
		return exclude
	}
	return noOpinion
}
