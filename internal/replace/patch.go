package replace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const header = "[replace]"

var (
	// ErrAmbiguousSection is returned when "[replace]" occurs but not as a
	// section header at the start of a line.
	ErrAmbiguousSection = errors.New("found `[replace]` outside a section header, edit the manifest manually")
	// ErrDuplicateKey is returned when the [replace] section already has the key.
	ErrDuplicateKey = errors.New("manifest already has a [replace] entry for this package")
	// ErrMalformedManifest is returned when the manifest is not valid TOML.
	ErrMalformedManifest = errors.New("manifest is not valid TOML")
)

// Patch returns original with d inserted as the first entry of the [replace]
// section, creating the section at the end of the file when absent. Every
// byte of original outside the inserted text is preserved, and inserted lines
// end in CRLF when original uses CRLF.
func Patch(original []byte, d Directive) ([]byte, error) {
	section, err := check(original, d.Key)
	if err != nil {
		return nil, err
	}

	text := string(original)
	eol := "\n"
	if strings.Contains(text, "\r\n") {
		eol = "\r\n"
	}
	line := d.Line() + eol

	start := -1
	if strings.HasPrefix(text, header) {
		start = 0
	} else if i := strings.Index(text, "\n"+header); i >= 0 {
		start = i + 1
	}

	if start >= 0 {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return []byte(text + eol + line), nil
		}
		at := start + nl + 1
		return []byte(text[:at] + line + text[at:]), nil
	}

	// A replace table spelled differently ("[ replace ]", dotted keys or an
	// inline table) cannot be extended in place.
	if section || strings.Contains(text, header) {
		return nil, ErrAmbiguousSection
	}

	var b strings.Builder
	b.Grow(len(text) + len(header) + len(line) + 2*len(eol))
	b.WriteString(text)
	if text != "" {
		if !strings.HasSuffix(text, "\n") {
			b.WriteString(eol)
		}
		if !strings.HasSuffix(b.String(), eol+eol) {
			b.WriteString(eol)
		}
	}
	b.WriteString(header + eol)
	b.WriteString(line)
	return []byte(b.String()), nil
}

// HasKey reports whether the manifest's [replace] table contains key.
func HasKey(manifest []byte, key string) (bool, error) {
	table, err := replaceTable(manifest)
	if err != nil {
		return false, err
	}
	_, ok := table[key]
	return ok, nil
}

// replaceTable decodes the [replace] table, nil when the manifest has none.
func replaceTable(manifest []byte) (map[string]any, error) {
	var doc struct {
		Replace map[string]any `toml:"replace"`
	}
	if err := toml.Unmarshal(manifest, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedManifest, err)
	}
	return doc.Replace, nil
}

// check rejects a manifest that already replaces key and reports whether a
// replace table exists at all.
func check(manifest []byte, key string) (bool, error) {
	table, err := replaceTable(manifest)
	if err != nil {
		return false, err
	}
	if _, dup := table[key]; dup {
		return false, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
	}
	return table != nil, nil
}
