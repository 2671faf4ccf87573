// Package replace composes [replace] directives and inserts them into a
// Cargo manifest without re-serialising it.
package replace

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
)

// Value is the replacement source of a directive. Either Path or Git is set.
type Value struct {
	Path string
	Git  string
	Ref  pkgid.GitReference
}

// Directive is one entry of the [replace] section.
type Directive struct {
	Key   string
	Value Value
}

// Key returns the package id spec cargo expects as a [replace] key.
func Key(id pkgid.PackageIdentifier) string {
	if id.Source.IsDefaultRegistry() {
		return fmt.Sprintf("%s:%s", id.Name, id.Version)
	}
	return fmt.Sprintf("%s#%s:%s", id.Source.URL, id.Name, id.Version)
}

// PathValue points the replacement at dir. The path is written relative to
// root when dir lies inside it, otherwise as given.
func PathValue(root, dir string) Value {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Value{Path: filepath.ToSlash(dir)}
	}
	return Value{Path: filepath.ToSlash(rel)}
}

// GitValue points the replacement at a repository. A zero ref means the
// default branch.
func GitValue(url string, ref pkgid.GitReference) Value {
	if ref.Value == "" {
		ref = pkgid.DefaultReference()
	}
	return Value{Git: url, Ref: ref}
}

// Compose builds the directive replacing id with v.
func Compose(id pkgid.PackageIdentifier, v Value) Directive {
	return Directive{Key: Key(id), Value: v}
}

// Line renders the directive as a single TOML line without the newline.
func (d Directive) Line() string {
	var b strings.Builder
	b.WriteString(quote(d.Key))
	b.WriteString(" = { ")
	if d.Value.Git == "" {
		b.WriteString("path = ")
		b.WriteString(quote(d.Value.Path))
	} else {
		b.WriteString("git = ")
		b.WriteString(quote(d.Value.Git))
		if d.Value.Ref.Value != "" && !d.Value.Ref.IsDefault() {
			fmt.Fprintf(&b, ", %s = %s", d.Value.Ref.Kind, quote(d.Value.Ref.Value))
		}
	}
	b.WriteString(" }")
	return b.String()
}

// quote renders s as a TOML basic string.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
