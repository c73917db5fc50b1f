package capability

import (
	"context"
	"errors"
	"fmt"
	"os"

	git "github.com/go-git/go-git/v5"
)

// CloneOutcome describes what CloneOrUpdate had to do.
type CloneOutcome string

const (
	// CloneOutcomeUpToDate means the clone already matched the remote.
	CloneOutcomeUpToDate CloneOutcome = "up-to-date"
	// CloneOutcomeCloned means a fresh clone was created.
	CloneOutcomeCloned CloneOutcome = "cloned"
	// CloneOutcomeUpdated means an existing clone was fast-forwarded.
	CloneOutcomeUpdated CloneOutcome = "updated"
)

// VCSClient keeps local clones of remote repositories current.
type VCSClient interface {
	// IsCloned reports whether dest already holds a repository whose origin
	// matches url. A plain directory at dest that is not a repository is an
	// error: the tool never decides on its own to clobber user data.
	IsCloned(ctx context.Context, url, dest string) (bool, error)

	// CloneOrUpdate clones url into dest, or fast-forwards an existing clone.
	CloneOrUpdate(ctx context.Context, url, dest string) (CloneOutcome, error)
}

// NewGitClient returns a VCSClient backed by go-git.
func NewGitClient() VCSClient {
	return &gitClient{}
}

type gitClient struct{}

func (c *gitClient) IsCloned(ctx context.Context, url, dest string) (bool, error) {
	if _, err := os.Stat(dest); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("cannot access %s: %w", dest, err)
	}

	repo, err := git.PlainOpen(dest)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return false, fmt.Errorf("%s exists but is not a git repository", dest)
		}
		return false, fmt.Errorf("open repository %s: %w", dest, err)
	}

	remote, err := repo.Remote("origin")
	if err != nil {
		return false, fmt.Errorf("repository %s has no origin remote", dest)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 || urls[0] != url {
		actual := ""
		if len(urls) > 0 {
			actual = urls[0]
		}
		return false, fmt.Errorf("repository %s tracks %s, expected %s", dest, actual, url)
	}

	return true, nil
}

func (c *gitClient) CloneOrUpdate(ctx context.Context, url, dest string) (CloneOutcome, error) {
	cloned, err := c.IsCloned(ctx, url, dest)
	if err != nil {
		return "", err
	}

	if !cloned {
		_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url})
		if err != nil {
			return "", fmt.Errorf("clone %s: %w", url, err)
		}
		return CloneOutcomeCloned, nil
	}

	repo, err := git.PlainOpen(dest)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", dest, err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree for %s: %w", dest, err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{RemoteName: "origin"})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return CloneOutcomeUpToDate, nil
		}
		return "", fmt.Errorf("update %s: %w", dest, err)
	}
	return CloneOutcomeUpdated, nil
}
