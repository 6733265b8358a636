package storage_manager //nolint:revive // var-naming: using underscores for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitFileProvider keeps documents in a git working tree and commits every
// write or delete, so each persisted session document has a history.
type GitFileProvider struct {
	local       *LocalFileProvider
	repoPath    string
	repo        *git.Repository
	authorName  string
	authorEmail string
	now         func() time.Time
	mu          sync.Mutex
}

// GitProviderOptions holds options for creating a GitFileProvider.
type GitProviderOptions struct {
	Path          string
	AuthorName    string
	AuthorEmail   string
	InitIfMissing bool
}

func NewGitFileProvider(opts GitProviderOptions) (*GitFileProvider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("repository path is required")
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "npc-registry"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "npc-registry@localhost"
	}

	repo, err := git.PlainOpen(opts.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) && opts.InitIfMissing {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create repository directory: %w", err)
		}
		repo, err = git.PlainInit(opts.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repository: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open git repository: %w", err)
	}

	return &GitFileProvider{
		local:       NewLocalFileProvider(opts.Path),
		repoPath:    opts.Path,
		repo:        repo,
		authorName:  opts.AuthorName,
		authorEmail: opts.AuthorEmail,
		now:         time.Now,
	}, nil
}

func (p *GitFileProvider) Read(ctx context.Context, path string) ([]byte, error) {
	return p.local.Read(ctx, path)
}

func (p *GitFileProvider) Exists(ctx context.Context, path string) (bool, error) {
	return p.local.Exists(ctx, path)
}

func (p *GitFileProvider) List(_ context.Context, prefix string) ([]string, error) {
	return walkFiles(p.repoPath, prefix)
}

// Write stores data and commits it. Rewriting identical content creates no commit.
func (p *GitFileProvider) Write(ctx context.Context, path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.local.Write(ctx, path, data); err != nil {
		return err
	}
	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	return p.commit(wt, "Update "+path)
}

func (p *GitFileProvider) Delete(ctx context.Context, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := os.Stat(filepath.Join(p.repoPath, filepath.FromSlash(path))); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	wt, err := p.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	if _, err := wt.Remove(path); err != nil {
		if !errors.Is(err, index.ErrEntryNotFound) {
			return fmt.Errorf("failed to stage deletion of %s: %w", path, err)
		}
		// never committed, nothing to record
		return p.local.Delete(ctx, path)
	}
	return p.commit(wt, "Delete "+path)
}

func (p *GitFileProvider) commit(wt *git.Worktree, msg string) error {
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: p.authorName, Email: p.authorEmail, When: p.now()},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}
