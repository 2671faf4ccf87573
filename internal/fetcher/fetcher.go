// Package fetcher materialises package sources in a destination directory,
// either by fetching a git repository or by copying a directory verbatim.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/spf13/afero"

	"github.com/k0nserv/cargo-edit-locally/internal/netretry"
)

const remoteName = "origin"

var refSpecs = []config.RefSpec{
	"+refs/heads/*:refs/heads/*",
	"+refs/tags/*:refs/tags/*",
}

// Fetcher clones repositories and copies source trees.
type Fetcher struct {
	fs     afero.Fs
	retry  netretry.Policy
	logger *log.Logger
}

// NewFetcher creates a fetcher. Copies go through fs; git data is written to
// the operating system filesystem.
func NewFetcher(fs afero.Fs, retry netretry.Policy, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Fetcher{fs: fs, retry: retry, logger: logger}
}

// Clone initialises a repository at dest and fetches every branch and tag of
// url into it as local refs. The worktree is left empty; the caller resets
// it to the commit it selects.
func (f *Fetcher) Clone(ctx context.Context, url, dest string) (*git.Repository, error) {
	repo, err := git.PlainInit(dest, false)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize git repo at %s: %w", dest, err)
	}

	remote, err := repo.CreateRemote(&config.RemoteConfig{
		Name:  remoteName,
		URLs:  []string{url},
		Fetch: refSpecs,
	})
	if err != nil {
		return nil, fmt.Errorf("adding remote %s: %w", url, err)
	}

	f.logger.Info("Cloning", "url", url)
	err = f.retry.Do(ctx, func() error {
		err := remote.FetchContext(ctx, &git.FetchOptions{
			RemoteName: remoteName,
			RefSpecs:   refSpecs,
			Tags:       git.NoTags,
			Force:      true,
		})
		switch {
		case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
			return nil
		case permanentFetchError(err):
			return netretry.Permanent(err)
		}
		f.logger.Debug("fetch failed", "url", url, "err", err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch `%s`: %w", url, err)
	}
	return repo, nil
}

func permanentFetchError(err error) bool {
	return errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) ||
		errors.Is(err, transport.ErrInvalidAuthMethod)
}

// Copy recursively copies src into dst, preserving file modes. Entries that
// are neither regular files nor directories are skipped.
func (f *Fetcher) Copy(src, dst string) error {
	f.logger.Debug("copying package source", "from", src, "to", dst)

	return afero.Walk(f.fs, src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return f.fs.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode().IsRegular():
			return f.copyFile(path, target, info.Mode().Perm())
		}
		f.logger.Debug("skipping special file", "path", path)
		return nil
	})
}

func (f *Fetcher) copyFile(src, dst string, perm fs.FileMode) error {
	in, err := f.fs.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := f.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
