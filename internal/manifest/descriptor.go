package manifest

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the manifest file name looked for in source trees.
const FileName = "Cargo.toml"

var (
	// ErrNotUTF8 is returned for manifest bytes that are not valid UTF-8.
	ErrNotUTF8 = errors.New("manifest is not valid utf-8")
	// ErrNoDescriptor is returned when neither [package] nor [project] is present.
	ErrNoDescriptor = errors.New("manifest has no [package] or [project] table")
)

// Descriptor is the name and version a manifest declares.
type Descriptor struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// document covers both table names used for the package description;
// [project] is the legacy spelling.
type document struct {
	Package *Descriptor `toml:"package"`
	Project *Descriptor `toml:"project"`
}

// Describe decodes manifest bytes and extracts the declared name and version.
func Describe(data []byte) (Descriptor, error) {
	if !utf8.Valid(data) {
		return Descriptor{}, ErrNotUTF8
	}

	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return Descriptor{}, fmt.Errorf("parsing manifest: %w", err)
	}

	switch {
	case doc.Package != nil:
		return *doc.Package, nil
	case doc.Project != nil:
		return *doc.Project, nil
	}
	return Descriptor{}, ErrNoDescriptor
}

// Matcher returns a predicate selecting descriptors equal to name and version.
func Matcher(name, version string) func(Descriptor) bool {
	return func(d Descriptor) bool {
		return d.Name == name && d.Version == version
	}
}
