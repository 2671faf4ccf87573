package revision

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/k0nserv/cargo-edit-locally/internal/manifest"
	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
)

var (
	// ErrNoDefaultBranch is returned when no branch exists to walk history from.
	ErrNoDefaultBranch = errors.New("repository has no default branch")
	// ErrUnknownReference is returned when an explicit branch, tag or rev is absent.
	ErrUnknownReference = errors.New("reference not found in repository")

	errNotCommit = errors.New("reference does not point at a commit")
)

// Strategy records how a commit was selected.
type Strategy string

const (
	StrategyTag       Strategy = "tag"
	StrategyBranch    Strategy = "branch"
	StrategyHistory   Strategy = "history"
	StrategyReference Strategy = "reference"
)

// Repo is a fetched repository with a worktree.
type Repo struct {
	Git *git.Repository
	URL string // remote it was fetched from, for diagnostics
	Dir string // worktree location, for diagnostics
}

// Location is the commit the worktree was reset to.
type Location struct {
	Commit    plumbing.Hash
	Strategy  Strategy
	Candidate string // tag or branch name, empty for history matches
}

// ResolutionFailure is returned when no commit corresponds to the target version.
type ResolutionFailure struct {
	Name        string
	Version     string
	Candidates  []string
	RepoURL     string
	Destination string
}

func (e *ResolutionFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "failed to check out the crate `%s` at a revision for the version `%s`\n", e.Name, e.Version)
	fmt.Fprintf(&b, "after cloning `%s` into: %s\n\n", e.RepoURL, e.Destination)
	fmt.Fprintf(&b, "  * no branch or tag found with the names: %s\n", strings.Join(e.Candidates, ", "))
	fmt.Fprintf(&b, "  * no commit found with a `%s` that contains `version = '%s'`\n\n", manifest.FileName, e.Version)
	b.WriteString("please file an issue with cargo-edit-locally if you believe this message is in\nerror")
	return b.String()
}

// Resolver maps a package version onto a commit of a cloned repository.
type Resolver struct {
	logger *log.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{logger: logger}
}

// Candidates returns the tag and branch names tried for a version, in
// precedence order.
func Candidates(name, version string) []string {
	return []string{
		version,
		"v" + version,
		name + "-" + version,
		name + "-v" + version,
	}
}

// Resolve finds the commit matching target and hard-resets the worktree to
// it. Naming conventions are tried first (tag before branch per candidate);
// otherwise history reachable from the default branch is searched for a
// manifest declaring the target name and version.
func (r *Resolver) Resolve(repo Repo, target pkgid.PackageIdentifier) (Location, error) {
	candidates := Candidates(target.Name, target.Version)

	for _, c := range candidates {
		loc, ok, err := r.byConvention(repo.Git, c)
		if err != nil {
			return Location{}, err
		}
		if !ok {
			continue
		}
		r.logger.Debug("matched reference", "strategy", loc.Strategy, "name", c, "commit", loc.Commit)
		if err := hardReset(repo.Git, loc.Commit); err != nil {
			return Location{}, err
		}
		return loc, nil
	}

	r.logger.Warnf("failed to find tag or branch for `%s`, probing git history", target.Version)

	head, err := DefaultBranch(repo.Git)
	if err != nil {
		return Location{}, err
	}
	order, err := historyOrder(repo.Git, head)
	if err != nil {
		return Location{}, fmt.Errorf("walking history: %w", err)
	}

	match := manifest.Matcher(target.Name, target.Version)
	for _, commit := range order {
		found, err := commitDeclares(repo.Git, commit, match)
		if err != nil {
			return Location{}, fmt.Errorf("inspecting commit %s: %w", commit.Hash, err)
		}
		if !found {
			continue
		}
		r.logger.Debug("matched manifest in history", "commit", commit.Hash)
		if err := hardReset(repo.Git, commit.Hash); err != nil {
			return Location{}, err
		}
		return Location{Commit: commit.Hash, Strategy: StrategyHistory}, nil
	}

	return Location{}, &ResolutionFailure{
		Name:        target.Name,
		Version:     target.Version,
		Candidates:  candidates,
		RepoURL:     repo.URL,
		Destination: repo.Dir,
	}
}

// Checkout resolves an explicit reference and hard-resets the worktree to it.
func (r *Resolver) Checkout(repo Repo, ref pkgid.GitReference) (Location, error) {
	var (
		commit *object.Commit
		err    error
	)
	switch ref.Kind {
	case pkgid.RefTag:
		commit, err = lookup(repo.Git, plumbing.NewTagReferenceName(ref.Value))
	case pkgid.RefBranch:
		commit, err = lookup(repo.Git, plumbing.NewBranchReferenceName(ref.Value))
	case pkgid.RefRev:
		commit, err = lookupRev(repo.Git, ref.Value)
	default:
		return Location{}, fmt.Errorf("unsupported reference kind %q", ref.Kind)
	}
	if err != nil {
		return Location{}, err
	}
	if commit == nil {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownReference, ref)
	}

	if err := hardReset(repo.Git, commit.Hash); err != nil {
		return Location{}, err
	}
	return Location{Commit: commit.Hash, Strategy: StrategyReference, Candidate: ref.Value}, nil
}

func (r *Resolver) byConvention(repo *git.Repository, candidate string) (Location, bool, error) {
	commit, err := lookup(repo, plumbing.NewTagReferenceName(candidate))
	if err != nil {
		return Location{}, false, err
	}
	if commit != nil {
		return Location{Commit: commit.Hash, Strategy: StrategyTag, Candidate: candidate}, true, nil
	}

	commit, err = lookup(repo, plumbing.NewBranchReferenceName(candidate))
	if err != nil {
		return Location{}, false, err
	}
	if commit != nil {
		return Location{Commit: commit.Hash, Strategy: StrategyBranch, Candidate: candidate}, true, nil
	}
	return Location{}, false, nil
}

// lookup resolves a reference name and peels it to a commit. A missing
// reference or one that does not peel to a commit yields nil.
func lookup(repo *git.Repository, name plumbing.ReferenceName) (*object.Commit, error) {
	ref, err := repo.Reference(name, true)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	commit, err := peel(repo, ref.Hash())
	if errors.Is(err, errNotCommit) {
		return nil, nil
	}
	return commit, err
}

func lookupRev(repo *git.Repository, rev string) (*object.Commit, error) {
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", rev, err)
	}

	commit, err := peel(repo, *h)
	if errors.Is(err, errNotCommit) {
		return nil, nil
	}
	return commit, err
}

// peel follows tag objects until a commit is reached.
func peel(repo *git.Repository, h plumbing.Hash) (*object.Commit, error) {
	for {
		obj, err := repo.Object(plumbing.AnyObject, h)
		if err != nil {
			return nil, fmt.Errorf("reading object %s: %w", h, err)
		}
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			h = o.Target
		default:
			return nil, errNotCommit
		}
	}
}

// DefaultBranch returns the tip of the branch HEAD names, falling back to
// master and then main.
func DefaultBranch(repo *git.Repository) (plumbing.Hash, error) {
	var names []plumbing.ReferenceName
	if head, err := repo.Storer.Reference(plumbing.HEAD); err == nil && head.Type() == plumbing.SymbolicReference {
		names = append(names, head.Target())
	}
	names = append(names,
		plumbing.NewBranchReferenceName(pkgid.DefaultBranch),
		plumbing.NewBranchReferenceName("main"),
	)

	for _, name := range names {
		ref, err := repo.Reference(name, true)
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			continue
		}
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("reading %s: %w", name, err)
		}
		return ref.Hash(), nil
	}
	return plumbing.ZeroHash, ErrNoDefaultBranch
}

// Declares reports whether the tree of commit h holds a manifest for target,
// at its root or nested at any depth.
func Declares(repo *git.Repository, h plumbing.Hash, target pkgid.PackageIdentifier) (bool, error) {
	commit, err := repo.CommitObject(h)
	if err != nil {
		return false, fmt.Errorf("reading commit %s: %w", h, err)
	}
	return commitDeclares(repo, commit, manifest.Matcher(target.Name, target.Version))
}

func commitDeclares(repo *git.Repository, commit *object.Commit, match func(manifest.Descriptor) bool) (bool, error) {
	tree, err := commit.Tree()
	if err != nil {
		return false, err
	}
	gt := manifest.NewGitTree(repo.Storer, tree)

	found, err := manifest.MatchRoot(gt, match)
	if err != nil || found {
		return found, err
	}
	return manifest.Locate(gt, match)
}

// hardReset moves HEAD's branch to h and resets index and worktree. An
// unborn HEAD branch is created at h first.
func hardReset(repo *git.Repository, h plumbing.Hash) error {
	head, err := repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return fmt.Errorf("reading HEAD: %w", err)
	}
	if head.Type() == plumbing.SymbolicReference {
		_, err := repo.Storer.Reference(head.Target())
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			err = repo.Storer.SetReference(plumbing.NewHashReference(head.Target(), h))
		}
		if err != nil {
			return fmt.Errorf("preparing %s: %w", head.Target(), err)
		}
	}

	w, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("opening worktree: %w", err)
	}
	if err := w.Reset(&git.ResetOptions{Commit: h, Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting to %s: %w", h, err)
	}
	return nil
}
