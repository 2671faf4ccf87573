package pkgid

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRegistryIndex is the crates.io index URL as it appears in lock files.
const DefaultRegistryIndex = "https://github.com/rust-lang/crates.io-index"

// SparseRegistryIndex is the sparse-protocol alias of the crates.io index.
const SparseRegistryIndex = "https://index.crates.io/"

// Kind identifies where a resolved package comes from.
type Kind int

const (
	KindDefaultRegistry Kind = iota
	KindAlternateRegistry
	KindVersionControlled
	KindLocalPath
)

func (k Kind) String() string {
	switch k {
	case KindDefaultRegistry:
		return "registry"
	case KindAlternateRegistry:
		return "alternate-registry"
	case KindVersionControlled:
		return "git"
	case KindLocalPath:
		return "path"
	}
	return "unknown"
}

// RefKind is the flavour of a git reference.
type RefKind string

const (
	RefBranch RefKind = "branch"
	RefTag    RefKind = "tag"
	RefRev    RefKind = "rev"
)

// DefaultBranch is the branch assumed when a git source names no reference.
const DefaultBranch = "master"

// GitReference names a branch, tag or revision.
type GitReference struct {
	Kind  RefKind
	Value string
}

// DefaultReference returns the implicit branch reference.
func DefaultReference() GitReference {
	return GitReference{Kind: RefBranch, Value: DefaultBranch}
}

// IsDefault reports whether r is the implicit "master" branch.
func (r GitReference) IsDefault() bool {
	return r.Kind == RefBranch && r.Value == DefaultBranch
}

func (r GitReference) String() string {
	return fmt.Sprintf("%s=%s", r.Kind, r.Value)
}

// Source describes a package source. Only the fields relevant to Kind are set.
type Source struct {
	Kind      Kind
	URL       string       // registry index or repository URL
	Reference GitReference // version-controlled only
	Precise   string       // locked commit, version-controlled only
	Path      string       // local path only
}

// IsDefaultRegistry reports whether the source is crates.io.
func (s Source) IsDefaultRegistry() bool {
	return s.Kind == KindDefaultRegistry
}

// PackageIdentifier is one resolved package.
type PackageIdentifier struct {
	Name    string
	Version string
	Source  Source
}

func (id PackageIdentifier) String() string {
	switch id.Source.Kind {
	case KindDefaultRegistry:
		return fmt.Sprintf("%s v%s", id.Name, id.Version)
	case KindLocalPath:
		if id.Source.Path == "" {
			return fmt.Sprintf("%s v%s (path)", id.Name, id.Version)
		}
		return fmt.Sprintf("%s v%s (%s)", id.Name, id.Version, id.Source.Path)
	}
	return fmt.Sprintf("%s v%s (%s)", id.Name, id.Version, id.Source.URL)
}

// ParseSource parses a lock-file source string such as
// "registry+https://github.com/rust-lang/crates.io-index" or
// "git+https://github.com/rust-lang/log?tag=0.3.6#1c79a9c8".
// An empty string is a path dependency.
func ParseSource(raw string) (Source, error) {
	if raw == "" {
		return Source{Kind: KindLocalPath}, nil
	}

	scheme, rest, ok := strings.Cut(raw, "+")
	if !ok {
		return Source{}, fmt.Errorf("invalid source %q: missing kind prefix", raw)
	}

	switch scheme {
	case "registry", "sparse":
		if isDefaultIndex(scheme, rest) {
			return Source{Kind: KindDefaultRegistry, URL: DefaultRegistryIndex}, nil
		}
		return Source{Kind: KindAlternateRegistry, URL: rest}, nil
	case "git":
		return parseGitSource(rest)
	case "path":
		u, err := url.Parse(rest)
		if err != nil {
			return Source{}, fmt.Errorf("invalid path source %q: %w", raw, err)
		}
		return Source{Kind: KindLocalPath, Path: u.Path}, nil
	}
	return Source{}, fmt.Errorf("invalid source %q: unknown kind %q", raw, scheme)
}

func isDefaultIndex(scheme, rest string) bool {
	if scheme == "registry" {
		return strings.TrimSuffix(rest, "/") == DefaultRegistryIndex
	}
	return strings.TrimSuffix(rest, "/") == strings.TrimSuffix(SparseRegistryIndex, "/")
}

func parseGitSource(rest string) (Source, error) {
	rawURL, precise, _ := strings.Cut(rest, "#")
	u, err := url.Parse(rawURL)
	if err != nil {
		return Source{}, fmt.Errorf("invalid git source %q: %w", rest, err)
	}

	ref := DefaultReference()
	query := u.Query()
	for _, kind := range []RefKind{RefBranch, RefTag, RefRev} {
		if v := query.Get(string(kind)); v != "" {
			ref = GitReference{Kind: kind, Value: v}
			break
		}
	}

	u.RawQuery = ""
	u.Fragment = ""
	return Source{
		Kind:      KindVersionControlled,
		URL:       u.String(),
		Reference: ref,
		Precise:   precise,
	}, nil
}

// Spec is a parsed package ID specification ("log", "log:0.3.5",
// "log@0.3.5", "https://github.com/rust-lang/log#log:0.3.5").
type Spec struct {
	URL     string
	Name    string
	Version string
}

// ParseSpec parses a package ID specification.
func ParseSpec(raw string) (Spec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Spec{}, fmt.Errorf("empty package specification")
	}

	var spec Spec
	rest := raw
	if strings.Contains(raw, "://") {
		u, frag, ok := strings.Cut(raw, "#")
		if !ok || frag == "" {
			return Spec{}, fmt.Errorf("invalid package specification %q: url requires #name", raw)
		}
		spec.URL = u
		rest = frag
	}

	name, version, ok := strings.Cut(rest, "@")
	if !ok {
		name, version, _ = strings.Cut(rest, ":")
	}
	if name == "" {
		return Spec{}, fmt.Errorf("invalid package specification %q: missing name", raw)
	}
	spec.Name = name
	spec.Version = strings.TrimPrefix(version, "v")
	return spec, nil
}

// Matches reports whether id satisfies the spec. A spec version may be
// partial ("0.3" matches "0.3.5").
func (s Spec) Matches(id PackageIdentifier) bool {
	if s.Name != id.Name {
		return false
	}
	if s.URL != "" && strings.TrimSuffix(s.URL, "/") != strings.TrimSuffix(id.Source.URL, "/") {
		return false
	}
	if s.Version == "" {
		return true
	}
	return id.Version == s.Version || strings.HasPrefix(id.Version, s.Version+".")
}

func (s Spec) String() string {
	var b strings.Builder
	if s.URL != "" {
		b.WriteString(s.URL)
		b.WriteString("#")
	}
	b.WriteString(s.Name)
	if s.Version != "" {
		b.WriteString(":")
		b.WriteString(s.Version)
	}
	return b.String()
}
