// Package editlocally checks a dependency out into a local directory and
// points the workspace manifest at it through a [replace] entry.
package editlocally

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/spf13/afero"

	"github.com/k0nserv/cargo-edit-locally/internal/cargo"
	"github.com/k0nserv/cargo-edit-locally/internal/lockfile"
	"github.com/k0nserv/cargo-edit-locally/internal/manifest"
	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
	"github.com/k0nserv/cargo-edit-locally/internal/registry"
	"github.com/k0nserv/cargo-edit-locally/internal/replace"
	"github.com/k0nserv/cargo-edit-locally/internal/revision"
	"github.com/k0nserv/cargo-edit-locally/internal/workspace"
)

var (
	// ErrAlreadyPath is returned for packages that are already local.
	ErrAlreadyPath = errors.New("is already a path dependency to edit locally")
	// ErrAlreadyReplaced is returned when the package already has a [replace] entry.
	ErrAlreadyReplaced = errors.New("is already replaced, cannot replace it again")
	// ErrDestinationExists is returned instead of overwriting a checkout.
	ErrDestinationExists = errors.New("looks like the destination directory for this checkout already exists")
)

// Method records how the sources were obtained.
type Method string

const (
	MethodPath    Method = "path"
	MethodGit     Method = "git"
	MethodCopy    Method = "copy"
	MethodTag     Method = Method(revision.StrategyTag)
	MethodBranch  Method = Method(revision.StrategyBranch)
	MethodHistory Method = Method(revision.StrategyHistory)
	MethodRef     Method = Method(revision.StrategyReference)
)

// Cargo resolves the workspace.
type Cargo interface {
	Load(ctx context.Context, manifestPath string) (*cargo.Workspace, error)
	Regenerate(ctx context.Context, manifestPath string) error
}

// Registry returns crate metadata.
type Registry interface {
	Lookup(ctx context.Context, name string) (*registry.Crate, error)
}

// Fetcher materialises sources.
type Fetcher interface {
	Clone(ctx context.Context, url, dest string) (*git.Repository, error)
	Copy(src, dst string) error
}

// Resolver selects and checks out commits.
type Resolver interface {
	Resolve(repo revision.Repo, target pkgid.PackageIdentifier) (revision.Location, error)
	Checkout(repo revision.Repo, ref pkgid.GitReference) (revision.Location, error)
}

// Deps are the collaborators of an Editor.
type Deps struct {
	FS       afero.Fs
	Cargo    Cargo
	Registry Registry
	Fetcher  Fetcher
	Resolver Resolver
	Logger   *log.Logger
}

// Options describe one invocation.
type Options struct {
	Spec         string // package id spec, e.g. "log" or "log:0.3.5"
	Cwd          string
	Dir          string // checkout parent directory, defaults to Cwd
	ManifestPath string

	// Explicit replacement source. At most one of Path and Git is set.
	Path string
	Git  string
	Ref  pkgid.GitReference
}

// Result describes a completed edit.
type Result struct {
	Package     pkgid.PackageIdentifier
	Destination string
	Manifest    string
	Directive   replace.Directive
	Method      Method
	Commit      string
}

// Editor runs the edit-locally workflow.
type Editor struct {
	fs       afero.Fs
	files    *workspace.Files
	cargo    Cargo
	registry Registry
	fetcher  Fetcher
	resolver Resolver
	logger   *log.Logger
}

// NewEditor creates an editor from its collaborators.
func NewEditor(d Deps) *Editor {
	logger := d.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Editor{
		fs:       d.FS,
		files:    workspace.NewFiles(d.FS),
		cargo:    d.Cargo,
		registry: d.Registry,
		fetcher:  d.Fetcher,
		resolver: d.Resolver,
		logger:   logger,
	}
}

// Run checks the package out and patches the workspace manifest. On error
// nothing on disk is changed: a checkout created by this run is removed and
// the manifest is restored.
func (e *Editor) Run(ctx context.Context, opts Options) (res *Result, err error) {
	if opts.Path != "" && opts.Git != "" {
		return nil, errors.New("--path and --git cannot be used together")
	}
	if opts.Git == "" && opts.Ref.Value != "" {
		return nil, errors.New("--branch, --tag and --rev require --git")
	}

	memberManifest, err := e.files.FindManifest(opts.Cwd, opts.ManifestPath)
	if err != nil {
		return nil, err
	}
	ws, err := e.cargo.Load(ctx, memberManifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve crate: %w", err)
	}

	spec, err := pkgid.ParseSpec(opts.Spec)
	if err != nil {
		return nil, err
	}
	id, pkg, err := ws.Lock.Query(spec)
	if err != nil {
		return nil, err
	}

	rootManifest := ws.Metadata.ManifestPath()
	original, err := e.files.Read(rootManifest)
	if err != nil {
		return nil, err
	}
	if err := e.guard(id, pkg, original); err != nil {
		return nil, err
	}

	res = &Result{Package: id, Manifest: rootManifest}
	var value replace.Value

	if opts.Path != "" {
		res.Destination = e.abs(opts.Cwd, opts.Path)
		if err := e.verifyPath(id, res.Destination); err != nil {
			return nil, err
		}
		res.Method = MethodPath
		value = replace.PathValue(ws.Metadata.WorkspaceRoot, res.Destination)
	} else {
		parent := e.abs(opts.Cwd, opts.Dir)
		res.Destination = filepath.Join(parent, id.Name)
		var created, exists bool
		created, err = e.files.EnsureDir(parent)
		if err != nil {
			return nil, err
		}
		// A parent created by this run is removed along with the checkout.
		cleanup := res.Destination
		if created {
			cleanup = parent
		}
		exists, err = e.files.Exists(res.Destination)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: %s", ErrDestinationExists, res.Destination)
		}
		defer func() {
			if err == nil {
				return
			}
			if rmErr := e.files.RemoveAll(cleanup); rmErr != nil {
				e.logger.Warn("failed to remove checkout", "path", cleanup, "err", rmErr)
			}
		}()

		if opts.Git != "" {
			value, err = e.acquireGit(ctx, id, opts, res)
		} else {
			err = e.acquire(ctx, id, pkg, ws.Metadata, res)
			value = replace.PathValue(ws.Metadata.WorkspaceRoot, res.Destination)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to clone dependency: %w", err)
		}
	}

	res.Directive = replace.Compose(id, value)
	if err := e.patch(ctx, rootManifest, original, res.Directive); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Editor) guard(id pkgid.PackageIdentifier, pkg lockfile.Package, rootManifest []byte) error {
	if id.Source.Kind == pkgid.KindLocalPath {
		return fmt.Errorf("%s %w", id, ErrAlreadyPath)
	}
	if pkg.IsReplaced() {
		return fmt.Errorf("%s %w", id, ErrAlreadyReplaced)
	}
	dup, err := replace.HasKey(rootManifest, replace.Key(id))
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%s %w", id, ErrAlreadyReplaced)
	}
	return nil
}

// acquire fetches the sources of id from where the lock file says it came.
func (e *Editor) acquire(ctx context.Context, id pkgid.PackageIdentifier, pkg lockfile.Package, md *cargo.Metadata, res *Result) error {
	switch id.Source.Kind {
	case pkgid.KindVersionControlled:
		repo, err := e.clone(ctx, id.Source.URL, res.Destination)
		if err != nil {
			return err
		}
		ref := id.Source.Reference
		if id.Source.Precise != "" {
			ref = pkgid.GitReference{Kind: pkgid.RefRev, Value: id.Source.Precise}
		} else if ref.Value == "" {
			ref = pkgid.DefaultReference()
		}
		loc, err := e.resolver.Checkout(repo, ref)
		if err != nil {
			return err
		}
		res.Method, res.Commit = Method(loc.Strategy), loc.Commit.String()
		return nil

	case pkgid.KindDefaultRegistry:
		e.logger.Infof("Fetching metadata for `%s`", id.Name)
		crate, err := e.registry.Lookup(ctx, id.Name)
		if err != nil {
			return err
		}
		if crate.Repository != "" {
			repo, err := e.clone(ctx, crate.Repository, res.Destination)
			if err != nil {
				return err
			}
			loc, err := e.resolver.Resolve(repo, id)
			if err != nil {
				return err
			}
			res.Method, res.Commit = Method(loc.Strategy), loc.Commit.String()
			return nil
		}
		e.logger.Warnf("no repository listed for `%s` in crates.io metadata, "+
			"falling back to copying files directly from crates.io; "+
			"note that this may not work for all crates", id.Name)

	default:
		e.logger.Warnf("`%s` comes from a registry without a metadata API, "+
			"falling back to copying the downloaded package", id.Name)
	}

	src, err := md.SourceDir(id.Name, id.Version, pkg.Source)
	if err != nil {
		return err
	}
	if err := e.fetcher.Copy(src, res.Destination); err != nil {
		return err
	}
	res.Method = MethodCopy
	return nil
}

// acquireGit clones an explicitly requested repository and makes sure it
// actually contains the package at the locked version.
func (e *Editor) acquireGit(ctx context.Context, id pkgid.PackageIdentifier, opts Options, res *Result) (replace.Value, error) {
	repo, err := e.clone(ctx, opts.Git, res.Destination)
	if err != nil {
		return replace.Value{}, err
	}

	ref := opts.Ref
	if ref.Value == "" {
		loc, err := e.resolver.Resolve(repo, id)
		if err != nil {
			return replace.Value{}, &SourceMismatchError{Package: id, Source: opts.Git, Kind: pkgid.KindVersionControlled, Err: err}
		}
		res.Method, res.Commit = Method(loc.Strategy), loc.Commit.String()
		return replace.GitValue(opts.Git, locationRef(loc)), nil
	}

	loc, err := e.resolver.Checkout(repo, ref)
	if err != nil {
		return replace.Value{}, &SourceMismatchError{Package: id, Source: opts.Git, Ref: ref, Kind: pkgid.KindVersionControlled, Err: err}
	}
	ok, err := revision.Declares(repo.Git, loc.Commit, id)
	if err != nil {
		return replace.Value{}, err
	}
	if !ok {
		return replace.Value{}, &SourceMismatchError{Package: id, Source: opts.Git, Ref: ref, Kind: pkgid.KindVersionControlled}
	}
	res.Method, res.Commit = MethodGit, loc.Commit.String()
	return replace.GitValue(opts.Git, ref), nil
}

func (e *Editor) verifyPath(id pkgid.PackageIdentifier, dir string) error {
	ok, err := manifest.Locate(manifest.NewDirTree(e.fs, dir), manifest.Matcher(id.Name, id.Version))
	if err != nil {
		return &SourceMismatchError{Package: id, Source: dir, Kind: pkgid.KindLocalPath, Err: err}
	}
	if !ok {
		return &SourceMismatchError{Package: id, Source: dir, Kind: pkgid.KindLocalPath}
	}
	return nil
}

func (e *Editor) clone(ctx context.Context, url, dest string) (revision.Repo, error) {
	repo, err := e.fetcher.Clone(ctx, url, dest)
	if err != nil {
		return revision.Repo{}, err
	}
	return revision.Repo{Git: repo, URL: url, Dir: dest}, nil
}

// patch writes the directive into the manifest and lets cargo pick it up.
// The manifest is restored when cargo rejects the result.
func (e *Editor) patch(ctx context.Context, path string, original []byte, d replace.Directive) error {
	patched, err := replace.Patch(original, d)
	if err != nil {
		return fmt.Errorf("updating %s: %w", path, err)
	}
	if err := e.files.WriteAtomic(path, patched); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	e.logger.Debug("updated manifest", "path", path, "entry", d.Line())

	if err := e.cargo.Regenerate(ctx, path); err != nil {
		if restoreErr := e.files.WriteAtomic(path, original); restoreErr != nil {
			return errors.Join(err, fmt.Errorf("restoring %s: %w", path, restoreErr))
		}
		return err
	}
	return nil
}

func (e *Editor) abs(cwd, p string) string {
	switch {
	case p == "":
		return cwd
	case filepath.IsAbs(p):
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

// locationRef turns a resolved location into the reference cargo should
// fetch: the matched tag or branch, or the exact commit.
func locationRef(loc revision.Location) pkgid.GitReference {
	switch loc.Strategy {
	case revision.StrategyTag:
		return pkgid.GitReference{Kind: pkgid.RefTag, Value: loc.Candidate}
	case revision.StrategyBranch:
		return pkgid.GitReference{Kind: pkgid.RefBranch, Value: loc.Candidate}
	}
	return pkgid.GitReference{Kind: pkgid.RefRev, Value: loc.Commit.String()}
}
