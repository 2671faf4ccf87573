package workspace

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles_FindManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/app/Cargo.toml", []byte("[package]\n"), 0o644))
	require.NoError(t, fs.MkdirAll("/work/app/src/bin", 0o755))
	require.NoError(t, fs.MkdirAll("/elsewhere", 0o755))
	files := NewFiles(fs)

	tests := []struct {
		name     string
		cwd      string
		override string
		want     string
		wantErr  error
	}{
		{name: "in cwd", cwd: "/work/app", want: "/work/app/Cargo.toml"},
		{name: "in a parent", cwd: "/work/app/src/bin", want: "/work/app/Cargo.toml"},
		{name: "nowhere", cwd: "/elsewhere", wantErr: ErrManifestNotFound},
		{name: "absolute override", cwd: "/elsewhere", override: "/work/app/Cargo.toml", want: "/work/app/Cargo.toml"},
		{name: "relative override", cwd: "/work", override: "app/Cargo.toml", want: "/work/app/Cargo.toml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := files.FindManifest(tt.cwd, tt.override)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFiles_FindManifestBadOverride(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/app/Cargo.toml", []byte("[package]\n"), 0o644))
	files := NewFiles(fs)

	_, err := files.FindManifest("/work", "/work/app/Cargo.lock")
	assert.ErrorContains(t, err, "must be a path to a Cargo.toml file")

	_, err = files.FindManifest("/work", "/work/other/Cargo.toml")
	assert.ErrorContains(t, err, "does not exist")
}

func TestFiles_WriteAtomic(t *testing.T) {
	// Arrange
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/app/Cargo.toml", []byte("old"), 0o600))
	files := NewFiles(fs)

	// Act
	err := files.WriteAtomic("/app/Cargo.toml", []byte("new contents\n"))

	// Assert
	require.NoError(t, err)
	got, err := files.Read("/app/Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "new contents\n", string(got))

	info, err := fs.Stat("/app/Cargo.toml")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().Perm().String())

	entries, err := afero.ReadDir(fs, "/app")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFiles_WriteAtomicNewFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/app", 0o755))
	files := NewFiles(fs)

	require.NoError(t, files.WriteAtomic("/app/Cargo.toml", []byte("x")))

	ok, err := files.Exists("/app/Cargo.toml")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFiles_WriteAtomicReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/app/Cargo.toml", []byte("old"), 0o644))
	files := NewFiles(afero.NewReadOnlyFs(base))

	err := files.WriteAtomic("/app/Cargo.toml", []byte("new"))

	assert.Error(t, err)
	got, _ := afero.ReadFile(base, "/app/Cargo.toml")
	assert.Equal(t, "old", string(got))
}

func TestFiles_EnsureDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/work/file", []byte("x"), 0o644))
	files := NewFiles(fs)

	created, err := files.EnsureDir("/work/deps/nested")
	require.NoError(t, err)
	assert.True(t, created)
	info, err := fs.Stat("/work/deps/nested")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	created, err = files.EnsureDir("/work")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = files.EnsureDir("/work/file")
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestFiles_RemoveAll(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/dest/log/src/lib.rs", []byte("x"), 0o644))
	files := NewFiles(fs)

	require.NoError(t, files.RemoveAll("/dest/log"))

	ok, err := files.Exists("/dest/log")
	require.NoError(t, err)
	assert.False(t, ok)
}
