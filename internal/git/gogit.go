package git

import (
	"context"
	"errors"
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	log "github.com/sirupsen/logrus"
)

// GoGitProvider computes status in-process with go-git.
type GoGitProvider struct {
	opts Options
}

// NewGoGitProvider creates a go-git backed StatusProvider.
func NewGoGitProvider(opts Options) *GoGitProvider {
	return &GoGitProvider{opts: opts}
}

// =============================================================================
// Compute
// =============================================================================

// Compute opens the repository containing root and builds a snapshot.
func (p *GoGitProvider) Compute(ctx context.Context, root string) (*GitInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo, err := gogit.PlainOpenWithOptions(root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, unavailable("no repository at %s", root)
		}
		return nil, unavailable("open %s: %v", root, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, unavailable("worktree: %v", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, unavailable("HEAD has no commits")
		}
		return nil, unavailable("resolve HEAD: %v", err)
	}

	info := &GitInfo{
		Root:         wt.Filesystem.Root(),
		Branch:       DetachedBranch,
		FileStatuses: make(map[string]FileStatus),
	}

	if head.Name().IsBranch() {
		info.Branch = head.Name().Short()
		info.Ahead, info.Behind = p.upstreamCounts(ctx, repo, head)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	status, err := wt.Status()
	if err != nil {
		return nil, unavailable("status: %v", err)
	}

	conflicted, trackedDirs, err := readIndex(repo)
	if err != nil {
		return nil, unavailable("index: %v", err)
	}

	for path, fs := range status {
		if fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified && !conflicted[path] {
			continue
		}
		st := Classify(byte(fs.Staging), byte(fs.Worktree), conflicted[path])
		key := path
		if st == StatusUntracked && !p.opts.RecurseUntracked {
			key = collapseUntracked(path, trackedDirs)
		}
		info.FileStatuses[key] = st
	}

	// Unmerged entries go-git does not list in its status map
	for path := range conflicted {
		info.FileStatuses[path] = StatusConflicted
	}
	info.HasConflicts = len(conflicted) > 0

	return info, nil
}

// upstreamCounts measures HEAD against origin/<branch>. A missing upstream or
// an unreadable history yields zero counts.
func (p *GoGitProvider) upstreamCounts(ctx context.Context, repo *gogit.Repository, head *plumbing.Reference) (uint, uint) {
	upstreamName := plumbing.NewRemoteReferenceName(UpstreamRemote, head.Name().Short())
	upstream, err := repo.Reference(upstreamName, true)
	if err != nil {
		return 0, 0
	}
	if upstream.Hash() == head.Hash() {
		return 0, 0
	}

	ahead, behind, err := aheadBehind(ctx, repo, head.Hash(), upstream.Hash())
	if err != nil {
		log.WithFields(log.Fields{
			"branch":   head.Name().Short(),
			"upstream": upstreamName.Short(),
		}).WithError(err).Warn("ahead/behind computation failed")
		return 0, 0
	}
	return ahead, behind
}

// aheadBehind counts commits reachable from local but not upstream, and the
// reverse.
func aheadBehind(ctx context.Context, repo *gogit.Repository, local, upstream plumbing.Hash) (uint, uint, error) {
	localSet, err := ancestors(ctx, repo, local)
	if err != nil {
		return 0, 0, fmt.Errorf("walk %s: %w", local, err)
	}
	upstreamSet, err := ancestors(ctx, repo, upstream)
	if err != nil {
		return 0, 0, fmt.Errorf("walk %s: %w", upstream, err)
	}

	var ahead, behind uint
	for h := range localSet {
		if !upstreamSet[h] {
			ahead++
		}
	}
	for h := range upstreamSet {
		if !localSet[h] {
			behind++
		}
	}
	return ahead, behind, nil
}

func ancestors(ctx context.Context, repo *gogit.Repository, from plumbing.Hash) (map[plumbing.Hash]bool, error) {
	iter, err := repo.Log(&gogit.LogOptions{From: from})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	set := make(map[plumbing.Hash]bool)
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		set[c.Hash] = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// readIndex returns the set of unmerged paths and the set of directories
// holding tracked files.
func readIndex(repo *gogit.Repository) (map[string]bool, map[string]bool, error) {
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, nil, err
	}

	conflicted := make(map[string]bool)
	trackedDirs := make(map[string]bool)
	for _, e := range idx.Entries {
		if e.Stage != index.Merged {
			conflicted[e.Name] = true
		}
		addTrackedDirs(trackedDirs, e.Name)
	}
	return conflicted, trackedDirs, nil
}
