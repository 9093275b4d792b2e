// Package scm adapts a local git repository to ports.SourceControl using
// go-git, and summarizes unified diffs for the judge.
package scm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chainguard-dev/clog"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/ahrav/go-pairank/internal/ports"
)

// ErrBranchNotFound is returned when a named branch does not exist.
var ErrBranchNotFound = errors.New("branch not found")

// Default commit identity.
const (
	DefaultAuthorName  = "pairank"
	DefaultAuthorEmail = "pairank@localhost"
)

// Repo is a git repository on disk. Branch operations go through the
// object store; Checkout and CommitAll touch the working tree.
type Repo struct {
	repo *git.Repository
	path string

	author string
	email  string
	now    func() time.Time
}

var _ ports.SourceControl = (*Repo)(nil)

// Option configures a Repo.
type Option func(*Repo)

// WithAuthor sets the identity recorded on commits.
func WithAuthor(name, email string) Option {
	return func(r *Repo) {
		if name != "" {
			r.author = name
		}
		if email != "" {
			r.email = email
		}
	}
}

// WithClock sets the commit timestamp source.
func WithClock(now func() time.Time) Option { return func(r *Repo) { r.now = now } }

// Open opens the repository containing path.
func Open(path string, opts ...Option) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	r := &Repo{
		repo:   repo,
		path:   path,
		author: DefaultAuthorName,
		email:  DefaultAuthorEmail,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Path returns the path the repository was opened with.
func (r *Repo) Path() string { return r.path }

func (r *Repo) branchCommit(name string) (*object.Commit, error) {
	ref, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBranchNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", name, err)
	}
	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit %s for branch %s: %w", ref.Hash(), name, err)
	}
	return commit, nil
}

// BranchExists implements ports.SourceControl.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup branch %s: %w", name, err)
	}
}

// Diff implements ports.SourceControl. It compares the branch tips, like
// "git diff base..branch".
func (r *Repo) Diff(ctx context.Context, base, branch string) (string, error) {
	from, err := r.branchCommit(base)
	if err != nil {
		return "", err
	}
	to, err := r.branchCommit(branch)
	if err != nil {
		return "", err
	}
	patch, err := from.PatchContext(ctx, to)
	if err != nil {
		return "", fmt.Errorf("diff %s..%s: %w", base, branch, err)
	}
	return patch.String(), nil
}

// CreateBranch implements ports.SourceControl. The working tree is left
// untouched; call Checkout to switch to the new branch.
func (r *Repo) CreateBranch(ctx context.Context, name, from string) (bool, error) {
	exists, err := r.BranchExists(ctx, name)
	if err != nil || exists {
		return false, err
	}
	base, err := r.branchCommit(from)
	if err != nil {
		return false, err
	}
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), base.Hash)
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return false, fmt.Errorf("create branch %s: %w", name, err)
	}
	clog.FromContext(ctx).With("branch", name).With("from", from).Debug("Created branch")
	return true, nil
}

// Checkout implements ports.SourceControl. Uncommitted changes are kept.
func (r *Repo) Checkout(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(name), Keep: true}); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("%w: %s", ErrBranchNotFound, name)
		}
		return fmt.Errorf("checkout %s: %w", name, err)
	}
	return nil
}

// CommitAll implements ports.SourceControl.
func (r *Repo) CommitAll(ctx context.Context, message string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if message == "" {
		return false, errors.New("commit message cannot be empty")
	}
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return false, fmt.Errorf("stage changes: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("worktree status: %w", err)
	}
	if status.IsClean() {
		return false, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: r.author, Email: r.email, When: r.now()},
	})
	if err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	clog.FromContext(ctx).With("commit", hash.String()).Info("Committed changes")
	return true, nil
}
