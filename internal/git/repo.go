package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotTracked is returned when a path does not exist in HEAD
var ErrNotTracked = errors.New("file not tracked at HEAD")

// Repo represents a Git repository
type Repo struct {
	root string
	repo *git.Repository
}

// Open opens the git repository containing path
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	return &Repo{
		root: worktree.Filesystem.Root(),
		repo: repo,
	}, nil
}

// Root returns the worktree root
func (r *Repo) Root() string {
	return r.root
}

// CurrentBranch returns the name of the current branch
func (r *Repo) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// FileAtHead returns the committed content of path. path may be absolute or
// relative to the worktree root.
func (r *Repo) FileAtHead(path string) (string, error) {
	rel, err := r.relative(path)
	if err != nil {
		return "", err
	}

	commit, err := r.headCommit()
	if err != nil {
		return "", err
	}

	file, err := commit.File(rel)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%s: %w", rel, ErrNotTracked)
		}
		return "", fmt.Errorf("failed to read %s at HEAD: %w", rel, err)
	}
	return file.Contents()
}

func (r *Repo) headCommit() (*object.Commit, error) {
	head, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNotTracked
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return r.repo.CommitObject(head.Hash())
}

func (r *Repo) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.root, path)
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	return filepath.ToSlash(rel), nil
}
