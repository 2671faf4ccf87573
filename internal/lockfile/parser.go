package lockfile

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"

	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
)

// FileName is the lock file written by cargo next to the workspace manifest.
const FileName = "Cargo.lock"

var (
	// ErrNoMatch is returned when a spec selects no locked package.
	ErrNoMatch = errors.New("package specification did not match any packages")
	// ErrAmbiguousSpec is returned when a spec selects more than one package.
	ErrAmbiguousSpec = errors.New("package specification is ambiguous")
)

// Package is one [[package]] entry of the lock file.
type Package struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Replace      string   `toml:"replace"`
	Dependencies []string `toml:"dependencies"`
}

// File is a decoded lock file.
type File struct {
	Version  int       `toml:"version"`
	Packages []Package `toml:"package"`
}

// Parser reads cargo lock files.
type Parser struct {
	fs afero.Fs
}

// NewParser creates a lock file parser reading through fs.
func NewParser(fs afero.Fs) *Parser {
	return &Parser{fs: fs}
}

// Parse reads and decodes the lock file at path.
func (p *Parser) Parse(path string) (*File, error) {
	data, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes decodes lock file contents.
func (p *Parser) ParseBytes(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	return &f, nil
}

// Query returns the single locked package matching spec.
func (f *File) Query(spec pkgid.Spec) (pkgid.PackageIdentifier, Package, error) {
	var (
		ids  []pkgid.PackageIdentifier
		pkgs []Package
	)
	for _, p := range f.Packages {
		id, err := p.Identifier()
		if err != nil {
			return pkgid.PackageIdentifier{}, Package{}, err
		}
		if spec.Matches(id) {
			ids = append(ids, id)
			pkgs = append(pkgs, p)
		}
	}

	switch len(ids) {
	case 0:
		return pkgid.PackageIdentifier{}, Package{}, fmt.Errorf("%w: `%s`", ErrNoMatch, spec)
	case 1:
		return ids[0], pkgs[0], nil
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = "  " + id.String()
	}
	sort.Strings(names)
	return pkgid.PackageIdentifier{}, Package{}, fmt.Errorf(
		"%w: `%s` matches\n%s\nqualify it with a version, e.g. %s:%s",
		ErrAmbiguousSpec, spec, strings.Join(names, "\n"), ids[0].Name, ids[0].Version)
}

// Identifier converts the entry into a package identifier.
func (p Package) Identifier() (pkgid.PackageIdentifier, error) {
	src, err := pkgid.ParseSource(p.Source)
	if err != nil {
		return pkgid.PackageIdentifier{}, fmt.Errorf("package %s %s: %w", p.Name, p.Version, err)
	}
	return pkgid.PackageIdentifier{Name: p.Name, Version: p.Version, Source: src}, nil
}

// IsReplaced reports whether the resolver already substituted this package.
func (p Package) IsReplaced() bool {
	return p.Replace != ""
}
