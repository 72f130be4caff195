package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
)

// ErrNotRepository indicates the path is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// ReadRepoHead returns the HEAD commit hash of the repository containing path.
// Parent directories are searched for the .git directory, so path may be any
// directory inside the work tree.
func ReadRepoHead(path string) (string, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return "", fmt.Errorf("open repository at %s: %w", path, err)
	}

	ref, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD at %s: %w", path, err)
	}
	return ref.Hash().String(), nil
}
