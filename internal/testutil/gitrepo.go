// Package testutil builds in-memory git repositories for package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Epoch is the committer time of the first fixture commit.
var Epoch = time.Date(2017, time.March, 1, 12, 0, 0, 0, time.UTC)

// Repo is an in-memory repository with a worktree. Every commit made through
// Commit is one minute newer than the previous one.
type Repo struct {
	t    *testing.T
	Git  *git.Repository
	FS   billy.Filesystem
	next time.Time
}

// NewRepo initialises an empty repository whose HEAD points at master.
func NewRepo(t *testing.T) *Repo {
	t.Helper()

	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	return &Repo{t: t, Git: repo, FS: fs, next: Epoch}
}

// NewDiskRepo initialises a repository with a worktree at dir.
func NewDiskRepo(t *testing.T, dir string) *Repo {
	t.Helper()

	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo at %s: %v", dir, err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	return &Repo{t: t, Git: repo, FS: w.Filesystem, next: Epoch}
}

func (r *Repo) worktree() *git.Worktree {
	r.t.Helper()
	w, err := r.Git.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	return w
}

// WriteFile writes and stages a file.
func (r *Repo) WriteFile(path, content string) {
	r.t.Helper()
	if err := util.WriteFile(r.FS, path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", path, err)
	}
	if _, err := r.worktree().Add(path); err != nil {
		r.t.Fatalf("add %s: %v", path, err)
	}
}

// RemoveFile deletes and stages the removal of a file.
func (r *Repo) RemoveFile(path string) {
	r.t.Helper()
	if _, err := r.worktree().Remove(path); err != nil {
		r.t.Fatalf("remove %s: %v", path, err)
	}
}

// Commit records the staged changes on the current branch.
func (r *Repo) Commit(msg string) plumbing.Hash {
	r.t.Helper()
	when := r.next
	r.next = r.next.Add(time.Minute)
	return r.CommitAt(msg, when)
}

// CommitAt records the staged changes with an explicit timestamp.
func (r *Repo) CommitAt(msg string, when time.Time) plumbing.Hash {
	r.t.Helper()
	return r.commit(msg, when, nil)
}

// Merge records a merge commit with the given parents.
func (r *Repo) Merge(msg string, parents ...plumbing.Hash) plumbing.Hash {
	r.t.Helper()
	when := r.next
	r.next = r.next.Add(time.Minute)
	return r.commit(msg, when, parents)
}

func (r *Repo) commit(msg string, when time.Time, parents []plumbing.Hash) plumbing.Hash {
	sig := &object.Signature{Name: "Fixture", Email: "fixture@example.com", When: when}
	h, err := r.worktree().Commit(msg, &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		Parents:           parents,
		AllowEmptyCommits: true,
	})
	if err != nil {
		r.t.Fatalf("commit %q: %v", msg, err)
	}
	return h
}

// Tag creates a lightweight tag.
func (r *Repo) Tag(name string, h plumbing.Hash) {
	r.t.Helper()
	if _, err := r.Git.CreateTag(name, h, nil); err != nil {
		r.t.Fatalf("tag %s: %v", name, err)
	}
}

// AnnotatedTag creates an annotated tag object pointing at h.
func (r *Repo) AnnotatedTag(name string, h plumbing.Hash) {
	r.t.Helper()
	opts := &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Fixture", Email: "fixture@example.com", When: Epoch},
		Message: "release " + name,
	}
	if _, err := r.Git.CreateTag(name, h, opts); err != nil {
		r.t.Fatalf("annotated tag %s: %v", name, err)
	}
}

// Branch points a local branch at h without checking it out.
func (r *Repo) Branch(name string, h plumbing.Hash) {
	r.t.Helper()
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), h)
	if err := r.Git.Storer.SetReference(ref); err != nil {
		r.t.Fatalf("branch %s: %v", name, err)
	}
}

// Checkout switches the worktree to branch, creating it at HEAD if asked.
func (r *Repo) Checkout(branch string, create bool) {
	r.t.Helper()
	err := r.worktree().Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: create,
		Force:  true,
	})
	if err != nil {
		r.t.Fatalf("checkout %s: %v", branch, err)
	}
}

// Head returns the commit HEAD resolves to.
func (r *Repo) Head() plumbing.Hash {
	r.t.Helper()
	ref, err := r.Git.Head()
	if err != nil {
		r.t.Fatalf("head: %v", err)
	}
	return ref.Hash()
}

// CargoToml renders a minimal manifest declaring name and version.
func CargoToml(name, version string) string {
	return fmt.Sprintf("[package]\nname = %q\nversion = %q\nauthors = []\n", name, version)
}
