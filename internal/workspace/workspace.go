// Package workspace finds the project manifest and writes files in place
// without exposing partial contents.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/k0nserv/cargo-edit-locally/internal/manifest"
)

// ErrManifestNotFound is returned when no manifest exists in or above the
// starting directory.
var ErrManifestNotFound = errors.New("could not find `Cargo.toml` in the current directory or any parent directory")

// ErrNotDirectory is returned when the checkout destination is a file.
var ErrNotDirectory = errors.New("destination must be a directory")

// Files reads and writes project files.
type Files struct {
	fs afero.Fs
}

// NewFiles creates a Files backed by fs.
func NewFiles(fs afero.Fs) *Files {
	return &Files{fs: fs}
}

// FindManifest returns the absolute path of override when set, otherwise of
// the nearest manifest in cwd or one of its parents.
func (f *Files) FindManifest(cwd, override string) (string, error) {
	if override != "" {
		path := override
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		if filepath.Base(path) != manifest.FileName {
			return "", fmt.Errorf("the manifest-path must be a path to a %s file", manifest.FileName)
		}
		if _, err := f.fs.Stat(path); err != nil {
			return "", fmt.Errorf("manifest path `%s` does not exist", override)
		}
		return path, nil
	}

	dir := cwd
	for {
		path := filepath.Join(dir, manifest.FileName)
		if ok, err := afero.Exists(f.fs, path); err != nil {
			return "", err
		} else if ok {
			return path, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrManifestNotFound
		}
		dir = parent
	}
}

// Read returns the contents of path.
func (f *Files) Read(path string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Exists reports whether path exists.
func (f *Files) Exists(path string) (bool, error) {
	return afero.Exists(f.fs, path)
}

// EnsureDir creates dir when missing and fails when it is not a directory.
// created reports whether dir had to be made.
func (f *Files) EnsureDir(dir string) (created bool, err error) {
	info, err := f.fs.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return false, ErrNotDirectory
		}
		return false, nil
	}
	if !os.IsNotExist(err) {
		return false, err
	}
	if err := f.fs.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create destination directory: %w", err)
	}
	return true, nil
}

// RemoveAll deletes path and everything below it.
func (f *Files) RemoveAll(path string) error {
	return f.fs.RemoveAll(path)
}

// WriteAtomic replaces path with data. The data is written to a temporary
// file in the same directory and renamed over path, so readers see either
// the old or the new contents. An existing file keeps its permissions.
func (f *Files) WriteAtomic(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := f.fs.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	dir, base := filepath.Split(path)
	tmp, err := afero.TempFile(f.fs, dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.fs.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		f.fs.Remove(tmpPath)
		return fmt.Errorf("syncing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := f.fs.Chmod(tmpPath, perm); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := f.fs.Rename(tmpPath, path); err != nil {
		f.fs.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}
