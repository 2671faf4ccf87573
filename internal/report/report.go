// Package report prints the outcome of a successful edit.
package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

var (
	colorHighlight = lipgloss.Color("#3B82F6")
	colorMuted     = lipgloss.Color("#6B7280")
)

// Summary describes where a dependency now lives and how the manifest changed.
type Summary struct {
	Package     string `yaml:"package"`
	Version     string `yaml:"version"`
	Destination string `yaml:"destination"`
	Manifest    string `yaml:"manifest"`
	Directive   string `yaml:"directive"`
	Method      string `yaml:"method"`
	Commit      string `yaml:"commit,omitempty"`
}

// Printer renders summaries to a writer.
type Printer struct {
	w        io.Writer
	renderer *lipgloss.Renderer
}

// NewPrinter creates a printer for w. Colours follow the renderer's profile,
// which is detected from w unless set by the caller.
func NewPrinter(w io.Writer, renderer *lipgloss.Renderer) *Printer {
	if renderer == nil {
		renderer = lipgloss.NewRenderer(w)
	}
	return &Printer{w: w, renderer: renderer}
}

// Print writes s in the given format.
func (p *Printer) Print(format string, s Summary) error {
	switch format {
	case "", FormatText:
		return p.text(s)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func (p *Printer) text(s Summary) error {
	code := p.renderer.NewStyle().Foreground(colorHighlight)
	hint := p.renderer.NewStyle().Foreground(colorMuted)

	_, err := fmt.Fprintf(p.w,
		"Dependency `%s` has its source code now located at `%s`.\n"+
			"The following entry was added to the `[replace]` section of `%s`\n\n"+
			"    %s\n\n"+
			"%s\n",
		s.Package, s.Destination, s.Manifest,
		code.Render(s.Directive),
		hint.Render("When you're done working with the source code then you can delete the `[replace]` section entry"),
	)
	return err
}
