package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/spf13/afero"
)

// EntryKind classifies tree entries.
type EntryKind int

const (
	EntryBlob EntryKind = iota
	EntryTree
	EntryOther // submodules, symlinks on disk, devices
)

// Entry is one child of a Tree.
type Entry struct {
	Name string
	Kind EntryKind

	key string // adapter-specific handle (object hash or filesystem path)
}

// Tree is a read-only directory listing the locator can descend into.
// Entries must be returned in the tree's native order.
type Tree interface {
	Entries() ([]Entry, error)
	Read(e Entry) ([]byte, error)
	Subtree(e Entry) (Tree, error)
}

// Locate walks tree depth-first and reports whether any file named exactly
// FileName decodes to a descriptor accepted by match. Files that fail to
// decode are skipped; errors reading the tree itself are returned.
func Locate(tree Tree, match func(Descriptor) bool) (bool, error) {
	entries, err := tree.Entries()
	if err != nil {
		return false, err
	}

	for _, e := range entries {
		switch e.Kind {
		case EntryTree:
			sub, err := tree.Subtree(e)
			if err != nil {
				return false, fmt.Errorf("opening tree %s: %w", e.Name, err)
			}
			found, err := Locate(sub, match)
			if err != nil || found {
				return found, err
			}
			continue
		case EntryBlob:
		default:
			continue
		}

		if e.Name != FileName {
			continue
		}
		data, err := tree.Read(e)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", e.Name, err)
		}
		if d, err := Describe(data); err == nil && match(d) {
			return true, nil
		}
	}

	return false, nil
}

// MatchRoot checks only the top level of tree for a matching manifest.
func MatchRoot(tree Tree, match func(Descriptor) bool) (bool, error) {
	entries, err := tree.Entries()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Kind != EntryBlob || e.Name != FileName {
			continue
		}
		data, err := tree.Read(e)
		if err != nil {
			return false, fmt.Errorf("reading %s: %w", e.Name, err)
		}
		d, err := Describe(data)
		return err == nil && match(d), nil
	}
	return false, nil
}

// GitTree adapts a git tree object.
type GitTree struct {
	store storer.EncodedObjectStorer
	tree  *object.Tree
}

// NewGitTree wraps tree, resolving children through store.
func NewGitTree(store storer.EncodedObjectStorer, tree *object.Tree) *GitTree {
	return &GitTree{store: store, tree: tree}
}

// Entries lists the tree in git order, which is sorted by name.
func (t *GitTree) Entries() ([]Entry, error) {
	entries := make([]Entry, 0, len(t.tree.Entries))
	for _, te := range t.tree.Entries {
		kind := EntryBlob
		switch te.Mode {
		case filemode.Dir:
			kind = EntryTree
		case filemode.Submodule, filemode.Empty:
			kind = EntryOther
		}
		entries = append(entries, Entry{Name: te.Name, Kind: kind, key: te.Hash.String()})
	}
	return entries, nil
}

// Read returns the contents of the blob e.
func (t *GitTree) Read(e Entry) ([]byte, error) {
	blob, err := object.GetBlob(t.store, plumbing.NewHash(e.key))
	if err != nil {
		return nil, err
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Subtree opens the tree object e.
func (t *GitTree) Subtree(e Entry) (Tree, error) {
	sub, err := object.GetTree(t.store, plumbing.NewHash(e.key))
	if err != nil {
		return nil, err
	}
	return NewGitTree(t.store, sub), nil
}

// DirTree adapts a directory on an afero filesystem. VCS metadata and
// build output directories are not descended into.
type DirTree struct {
	fs  afero.Fs
	dir string
}

// NewDirTree wraps dir on fs.
func NewDirTree(fs afero.Fs, dir string) *DirTree {
	return &DirTree{fs: fs, dir: dir}
}

var skippedDirs = map[string]bool{
	".git":   true,
	"target": true,
}

// Entries lists the directory sorted by name.
func (t *DirTree) Entries() ([]Entry, error) {
	infos, err := afero.ReadDir(t.fs, t.dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		kind := EntryOther
		switch mode := info.Mode(); {
		case mode&os.ModeSymlink != 0:
		case mode.IsDir():
			if skippedDirs[info.Name()] {
				continue
			}
			kind = EntryTree
		case mode.IsRegular():
			kind = EntryBlob
		}
		entries = append(entries, Entry{
			Name: info.Name(),
			Kind: kind,
			key:  filepath.Join(t.dir, info.Name()),
		})
	}
	return entries, nil
}

// Read returns the contents of the file e.
func (t *DirTree) Read(e Entry) ([]byte, error) {
	return afero.ReadFile(t.fs, e.key)
}

// Subtree opens the directory e.
func (t *DirTree) Subtree(e Entry) (Tree, error) {
	return NewDirTree(t.fs, e.key), nil
}
