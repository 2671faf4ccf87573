package editlocally

import (
	"fmt"
	"strings"

	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
)

// SourceMismatchError is returned when an explicitly chosen replacement
// source does not contain the package at the locked version.
type SourceMismatchError struct {
	Package pkgid.PackageIdentifier
	Source  string             // repository URL or local directory
	Ref     pkgid.GitReference // git only, zero when none was given
	Kind    pkgid.Kind         // KindVersionControlled or KindLocalPath
	Err     error
}

func (e *SourceMismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "could not find `%s` at version `%s` in `%s`", e.Package.Name, e.Package.Version, e.Source)
	if e.Ref.Value != "" {
		fmt.Fprintf(&b, " (%s)", e.Ref)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	b.WriteString("\n\n")

	if e.Kind == pkgid.KindLocalPath {
		fmt.Fprintf(&b, "check that --path points at a checkout of `%s` whose Cargo.toml declares version `%s`",
			e.Package.Name, e.Package.Version)
	} else {
		fmt.Fprintf(&b, "pass --branch or --tag naming a revision whose Cargo.toml declares version `%s`, "+
			"or --rev with the exact commit", e.Package.Version)
	}
	return b.String()
}

func (e *SourceMismatchError) Unwrap() error { return e.Err }
