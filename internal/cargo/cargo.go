// Package cargo runs the cargo binary to resolve a workspace and reads the
// result back from `cargo metadata` and the lock file.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/k0nserv/cargo-edit-locally/internal/lockfile"
)

// DefaultBinary is the cargo executable looked up on PATH.
const DefaultBinary = "cargo"

// CommandError is returned when cargo exits unsuccessfully.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("running `cargo %s`: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// runFunc executes bin with args and returns its standard output.
type runFunc func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Package is one entry of `cargo metadata` output.
type Package struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ID           string `json:"id"`
	Source       string `json:"source"`
	ManifestPath string `json:"manifest_path"`
}

// Metadata is the subset of `cargo metadata --format-version 1` used here.
type Metadata struct {
	Packages      []Package `json:"packages"`
	WorkspaceRoot string    `json:"workspace_root"`
}

// SourceDir returns the directory holding the unpacked sources of the
// package with the given name, version and lock-file source string.
func (m *Metadata) SourceDir(name, version, source string) (string, error) {
	for _, p := range m.Packages {
		if p.Name == name && p.Version == version && p.Source == source {
			return filepath.Dir(p.ManifestPath), nil
		}
	}
	return "", fmt.Errorf("cargo metadata lists no package %s %s", name, version)
}

// ManifestPath returns the workspace root manifest.
func (m *Metadata) ManifestPath() string {
	return filepath.Join(m.WorkspaceRoot, "Cargo.toml")
}

// Workspace is a resolved workspace.
type Workspace struct {
	Metadata *Metadata
	Lock     *lockfile.File
}

// Cargo drives the cargo binary.
type Cargo struct {
	bin    string
	run    runFunc
	parser *lockfile.Parser
	logger *log.Logger
}

// New creates an adapter for bin that reads the lock file through fs. An
// empty bin means DefaultBinary.
func New(fs afero.Fs, bin string, logger *log.Logger) *Cargo {
	if bin == "" {
		bin = DefaultBinary
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cargo{
		bin:    bin,
		run:    execRun,
		parser: lockfile.NewParser(fs),
		logger: logger,
	}
}

// Metadata resolves the workspace of manifestPath. Cargo writes the lock
// file as a side effect when it is missing or stale, and downloads registry
// sources that are not yet unpacked.
func (c *Cargo) Metadata(ctx context.Context, manifestPath string) (*Metadata, error) {
	args := []string{"metadata", "--format-version", "1", "--manifest-path", manifestPath}
	c.logger.Debug("running cargo", "args", args)

	out, err := c.run(ctx, c.bin, args...)
	if err != nil {
		return nil, err
	}

	var md Metadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, fmt.Errorf("parsing cargo metadata: %w", err)
	}
	if md.WorkspaceRoot == "" {
		return nil, fmt.Errorf("cargo metadata reported no workspace root")
	}
	return &md, nil
}

// Load resolves the workspace of manifestPath and reads its lock file.
func (c *Cargo) Load(ctx context.Context, manifestPath string) (*Workspace, error) {
	md, err := c.Metadata(ctx, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace: %w", err)
	}

	lock, err := c.parser.Parse(filepath.Join(md.WorkspaceRoot, lockfile.FileName))
	if err != nil {
		return nil, err
	}
	return &Workspace{Metadata: md, Lock: lock}, nil
}

// Regenerate re-resolves the workspace so the lock file reflects the
// current manifest.
func (c *Cargo) Regenerate(ctx context.Context, manifestPath string) error {
	if _, err := c.Metadata(ctx, manifestPath); err != nil {
		return fmt.Errorf("regenerating lock file: %w", err)
	}
	return nil
}

func execRun(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &CommandError{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return stdout.Bytes(), nil
}
