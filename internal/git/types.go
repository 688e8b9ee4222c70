// Package git computes repository status snapshots: branch, ahead/behind
// counts against origin, and a per-path status classification.
package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	// ErrGitUnavailable indicates no usable repository: none discoverable
	// from the root, an unborn HEAD, or an unreadable object store.
	ErrGitUnavailable = errors.New("git unavailable")

	// ErrUnknownBackend indicates an unsupported provider backend name.
	ErrUnknownBackend = errors.New("unknown git backend")
)

// UpstreamRemote is the remote whose tracking branch ahead/behind is
// measured against.
const UpstreamRemote = "origin"

// DetachedBranch is reported when HEAD does not point at a branch.
const DetachedBranch = "detached"

// Provider backends.
const (
	BackendGoGit = "gogit"
	BackendCLI   = "cli"
)

// FileStatus classifies one path.
type FileStatus int

const (
	StatusUnknown FileStatus = iota
	StatusModified
	StatusAdded
	StatusDeleted
	StatusRenamed
	StatusUntracked
	StatusConflicted
	StatusStaged
)

var fileStatusNames = map[FileStatus]string{
	StatusUnknown:    "unknown",
	StatusModified:   "modified",
	StatusAdded:      "added",
	StatusDeleted:    "deleted",
	StatusRenamed:    "renamed",
	StatusUntracked:  "untracked",
	StatusConflicted: "conflicted",
	StatusStaged:     "staged",
}

func (s FileStatus) String() string {
	if name, ok := fileStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

var fileStatusCodes = map[FileStatus]string{
	StatusModified:   "M",
	StatusAdded:      "A",
	StatusDeleted:    "D",
	StatusRenamed:    "R",
	StatusUntracked:  "?",
	StatusConflicted: "U",
	StatusStaged:     "S",
}

// Code returns the one-letter form of s, a space for StatusUnknown.
func (s FileStatus) Code() string {
	if code, ok := fileStatusCodes[s]; ok {
		return code
	}
	return " "
}

// MarshalText implements encoding.TextMarshaler.
func (s FileStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *FileStatus) UnmarshalText(text []byte) error {
	for status, name := range fileStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown file status %q", text)
}

// GitInfo is an immutable status snapshot. A new value is produced on every
// computation; callers must not modify one they received.
type GitInfo struct {
	// Root is the absolute worktree root.
	Root string `json:"root"`

	// Branch is HEAD's short branch name or DetachedBranch.
	Branch string `json:"branch"`

	Ahead  uint `json:"ahead"`
	Behind uint `json:"behind"`

	HasConflicts bool `json:"has_conflicts"`

	// FileStatuses maps slash-separated repo-relative paths to their status.
	// Collapsed untracked directories carry a trailing slash.
	FileStatuses map[string]FileStatus `json:"file_statuses"`
}

// StatusCounts tallies a snapshot's paths by status.
type StatusCounts struct {
	Modified  int `json:"modified_files"`
	Staged    int `json:"staged_files"`
	Untracked int `json:"untracked_files"`
	Total     int `json:"total_files"`
}

// Counts tallies FileStatuses. A collapsed untracked directory counts once.
func (g *GitInfo) Counts() StatusCounts {
	if g == nil {
		return StatusCounts{}
	}
	c := StatusCounts{Total: len(g.FileStatuses)}
	for _, s := range g.FileStatuses {
		switch s {
		case StatusModified:
			c.Modified++
		case StatusStaged:
			c.Staged++
		case StatusUntracked:
			c.Untracked++
		}
	}
	return c
}

// Lookup resolves path against FileStatuses. path may be absolute or
// relative to Root; both forms of the key are tried. A path inside a
// collapsed untracked directory resolves to that directory's status.
func (g *GitInfo) Lookup(path string) (FileStatus, bool) {
	if g == nil || path == "" {
		return StatusUnknown, false
	}
	if s, ok := g.FileStatuses[path]; ok {
		return s, true
	}

	rel, abs := g.forms(path)
	for _, key := range []string{rel, abs} {
		if key == "" {
			continue
		}
		if s, ok := g.FileStatuses[key]; ok {
			return s, true
		}
	}

	if rel == "" {
		return StatusUnknown, false
	}
	for dir := parentDir(rel); dir != ""; dir = parentDir(dir) {
		if s, ok := g.FileStatuses[dir+"/"]; ok {
			return s, true
		}
	}
	return StatusUnknown, false
}

// forms returns the slash-separated root-relative form and the absolute form
// of path. rel is empty for absolute paths outside Root.
func (g *GitInfo) forms(path string) (rel, abs string) {
	if filepath.IsAbs(path) {
		abs = path
		if g.Root == "" {
			return "", abs
		}
		r, err := filepath.Rel(g.Root, path)
		if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			return "", abs
		}
		return filepath.ToSlash(r), abs
	}

	rel = filepath.ToSlash(filepath.Clean(path))
	if g.Root != "" {
		abs = filepath.Join(g.Root, path)
	}
	return rel, abs
}

func parentDir(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i <= 0 {
		return ""
	}
	return rel[:i]
}

// Options configures status computation.
type Options struct {
	// RecurseUntracked lists every file inside untracked directories instead
	// of collapsing them to the directory.
	RecurseUntracked bool
}

// StatusProvider computes a status snapshot for the repository containing
// root.
type StatusProvider interface {
	Compute(ctx context.Context, root string) (*GitInfo, error)
}

// NewProvider returns the provider for backend.
func NewProvider(backend string, opts Options) (StatusProvider, error) {
	switch backend {
	case "", BackendGoGit:
		return NewGoGitProvider(opts), nil
	case BackendCLI:
		return NewCLIProvider(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

func unavailable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGitUnavailable, fmt.Sprintf(format, args...))
}
