package git

import (
	"errors"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Discover locates the repository containing path and returns its worktree
// root and its git directory.
func Discover(path string) (root, gitDir string, err error) {
	repo, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return "", "", unavailable("no repository at %s", path)
		}
		return "", "", unavailable("open %s: %v", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", "", unavailable("worktree: %v", err)
	}

	storage, ok := repo.Storer.(*filesystem.Storage)
	if !ok {
		return "", "", unavailable("repository at %s is not on disk", path)
	}
	return wt.Filesystem.Root(), storage.Filesystem().Root(), nil
}
