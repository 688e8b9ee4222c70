package git

import "strings"

// Status codes shared by go-git's StatusCode and porcelain v1 XY letters.
const (
	codeUnmodified = ' '
	codeUntracked  = '?'
	codeModified   = 'M'
	codeAdded      = 'A'
	codeDeleted    = 'D'
	codeRenamed    = 'R'
	codeCopied     = 'C'
	codeUnmerged   = 'U'
	codeTypeChange = 'T'
)

// Classify maps an index/worktree code pair to a FileStatus using strict
// precedence: conflicted, staged, untracked, worktree modified, worktree
// deleted, renamed, unknown.
func Classify(index, worktree byte, conflicted bool) FileStatus {
	switch {
	case conflicted || index == codeUnmerged || worktree == codeUnmerged:
		return StatusConflicted
	case index == codeAdded || index == codeModified || index == codeDeleted || index == codeTypeChange:
		return StatusStaged
	case worktree == codeUntracked:
		return StatusUntracked
	case worktree == codeModified || worktree == codeTypeChange:
		return StatusModified
	case worktree == codeDeleted:
		return StatusDeleted
	case index == codeRenamed || index == codeCopied || worktree == codeRenamed || worktree == codeCopied:
		return StatusRenamed
	default:
		return StatusUnknown
	}
}

// unmergedPair reports porcelain XY pairs that denote a merge conflict
// without a U on either side.
func unmergedPair(index, worktree byte) bool {
	return (index == codeAdded && worktree == codeAdded) ||
		(index == codeDeleted && worktree == codeDeleted)
}

// collapseUntracked maps an untracked file to its shallowest ancestor
// directory that contains no tracked files. trackedDirs holds every directory
// (slash separated, no trailing slash) that has a tracked file somewhere
// below it. Files directly in a tracked directory keep their own path.
func collapseUntracked(path string, trackedDirs map[string]bool) string {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/")
		if !trackedDirs[dir] {
			return dir + "/"
		}
	}
	return path
}

// addTrackedDirs records every ancestor directory of a tracked path.
func addTrackedDirs(trackedDirs map[string]bool, path string) {
	for dir := parentDir(path); dir != ""; dir = parentDir(dir) {
		if trackedDirs[dir] {
			return
		}
		trackedDirs[dir] = true
	}
}
