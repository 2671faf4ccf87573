package cargo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lockContents = `version = 3

[[package]]
name = "app"
version = "0.1.0"
dependencies = ["log"]

[[package]]
name = "log"
version = "0.3.5"
source = "registry+https://github.com/rust-lang/crates.io-index"
`

func metadataJSON(root string) string {
	return fmt.Sprintf(`{
  "packages": [
    {"name": "app", "version": "0.1.0", "id": "path+file://%[1]s#0.1.0", "source": null, "manifest_path": "%[1]s/Cargo.toml"},
    {"name": "log", "version": "0.3.5", "id": "registry+https://github.com/rust-lang/crates.io-index#log@0.3.5",
     "source": "registry+https://github.com/rust-lang/crates.io-index",
     "manifest_path": "/home/u/.cargo/registry/src/index.crates.io-6f17d22bba15001f/log-0.3.5/Cargo.toml"}
  ],
  "workspace_root": "%[1]s",
  "version": 1
}`, root)
}

type call struct {
	bin  string
	args []string
}

func fakeCargo(out string, err error, calls *[]call) runFunc {
	return func(_ context.Context, bin string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{bin: bin, args: args})
		return []byte(out), err
	}
}

func TestCargo_Load(t *testing.T) {
	// Arrange
	fs := afero.NewMemMapFs()
	root := "/work/app"
	require.NoError(t, afero.WriteFile(fs, filepath.Join(root, "Cargo.lock"), []byte(lockContents), 0o644))

	var calls []call
	c := New(fs, "/opt/cargo", nil)
	c.run = fakeCargo(metadataJSON(root), nil, &calls)

	// Act
	ws, err := c.Load(context.Background(), filepath.Join(root, "member", "Cargo.toml"))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, root, ws.Metadata.WorkspaceRoot)
	assert.Equal(t, filepath.Join(root, "Cargo.toml"), ws.Metadata.ManifestPath())
	require.Len(t, ws.Lock.Packages, 2)
	assert.Equal(t, "log", ws.Lock.Packages[1].Name)

	require.Len(t, calls, 1)
	assert.Equal(t, "/opt/cargo", calls[0].bin)
	assert.Equal(t, []string{"metadata", "--format-version", "1", "--manifest-path", filepath.Join(root, "member", "Cargo.toml")}, calls[0].args)
}

func TestCargo_LoadMissingLock(t *testing.T) {
	root := "/work/app"
	var calls []call
	c := New(afero.NewMemMapFs(), "", nil)
	c.run = fakeCargo(metadataJSON(root), nil, &calls)

	_, err := c.Load(context.Background(), filepath.Join(root, "Cargo.toml"))

	assert.Error(t, err)
}

func TestCargo_MetadataErrors(t *testing.T) {
	boom := &CommandError{Args: []string{"metadata"}, Stderr: "error: failed to parse manifest", Err: errors.New("exit status 101")}

	tests := []struct {
		name string
		out  string
		err  error
	}{
		{name: "cargo fails", err: boom},
		{name: "not json", out: "warning: something"},
		{name: "no workspace root", out: `{"packages": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []call
			c := New(afero.NewMemMapFs(), "", nil)
			c.run = fakeCargo(tt.out, tt.err, &calls)

			_, err := c.Metadata(context.Background(), "/p/Cargo.toml")

			assert.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestCargo_Regenerate(t *testing.T) {
	var calls []call
	c := New(afero.NewMemMapFs(), "", nil)
	c.run = fakeCargo(metadataJSON("/p"), nil, &calls)

	require.NoError(t, c.Regenerate(context.Background(), "/p/Cargo.toml"))

	require.Len(t, calls, 1)
	assert.Equal(t, DefaultBinary, calls[0].bin)
}

func TestMetadata_SourceDir(t *testing.T) {
	var calls []call
	c := New(afero.NewMemMapFs(), "", nil)
	c.run = fakeCargo(metadataJSON("/p"), nil, &calls)
	md, err := c.Metadata(context.Background(), "/p/Cargo.toml")
	require.NoError(t, err)

	dir, err := md.SourceDir("log", "0.3.5", "registry+https://github.com/rust-lang/crates.io-index")
	require.NoError(t, err)
	assert.Equal(t, "/home/u/.cargo/registry/src/index.crates.io-6f17d22bba15001f/log-0.3.5", dir)

	_, err = md.SourceDir("log", "0.3.6", "registry+https://github.com/rust-lang/crates.io-index")
	assert.Error(t, err)
}

func TestCommandError(t *testing.T) {
	inner := errors.New("exit status 101")
	err := &CommandError{Args: []string{"metadata", "--format-version", "1"}, Stderr: "error: boom", Err: inner}

	assert.Equal(t, "running `cargo metadata --format-version 1`: exit status 101\nerror: boom", err.Error())
	assert.ErrorIs(t, err, inner)
}

func TestExecRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := execRun(context.Background(), "sh", "-c", "printf ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	_, err = execRun(context.Background(), "sh", "-c", "echo bad >&2; exit 3")
	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "bad", cmdErr.Stderr)
}
