package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/k0nserv/cargo-edit-locally/internal/registry"
)

func TestConfigConstants(t *testing.T) {
	assert.Equal(t, "cargo-edit-locally", configBaseName)
	assert.Equal(t, "EDIT_LOCALLY", envPrefix)
	assert.Equal(t, "registry.api", registryAPIKey)
	assert.Equal(t, "registry.user-agent", registryUserAgentKey)
	assert.Equal(t, "net.retries", netRetriesKey)
	assert.Equal(t, "cargo.bin", cargoBinKey)
	assert.Equal(t, "log.file", logFileKey)
	assert.Equal(t, "log.max_size", logMaxSizeKey)
	assert.Equal(t, "log.max_backups", logMaxBackupsKey)
	assert.Equal(t, "log.max_age", logMaxAgeKey)
	assert.Equal(t, "log.compress", logCompressKey)
}

func TestConfigDefaults(t *testing.T) {
	assert.Equal(t, registry.DefaultAPI, viper.GetString(registryAPIKey))
	assert.Equal(t, 2, viper.GetInt(netRetriesKey))
	assert.Equal(t, "cargo", viper.GetString(cargoBinKey))
	assert.Equal(t, 10, viper.GetInt(logMaxSizeKey))
	assert.True(t, viper.GetBool(logCompressKey))
}

func TestConfigEnvOverride(t *testing.T) {
	t.Setenv("EDIT_LOCALLY_REGISTRY_API", "http://localhost:8080/api/v1")
	t.Setenv("EDIT_LOCALLY_NET_RETRIES", "5")

	assert.Equal(t, "http://localhost:8080/api/v1", viper.GetString(registryAPIKey))
	assert.Equal(t, 5, viper.GetInt(netRetriesKey))
}

func TestReadConfig(t *testing.T) {
	t.Cleanup(func() {
		_ = viper.MergeConfigMap(map[string]any{"cargo": map[string]any{"bin": "cargo"}})
	})

	// Arrange
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cargo:\n  bin: /opt/rust/bin/cargo\n"), 0o644))

	// Act
	err := readConfig(path)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "/opt/rust/bin/cargo", viper.GetString(cargoBinKey))
}

func TestReadConfigMissingExplicitFile(t *testing.T) {
	err := readConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "reading config")
}

func TestColorProfile(t *testing.T) {
	tests := []struct {
		mode       string
		want       termenv.Profile
		wantForced bool
		wantErr    bool
	}{
		{mode: "auto", want: termenv.Ascii},
		{mode: "", want: termenv.Ascii},
		{mode: "always", want: termenv.TrueColor, wantForced: true},
		{mode: "never", want: termenv.Ascii, wantForced: true},
		{mode: "sometimes", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, forced, err := colorProfile(tt.mode)
			if tt.wantErr {
				assert.ErrorContains(t, err, "must be auto, always, or never")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantForced, forced)
		})
	}
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, log.InfoLevel, logLevel(0, false))
	assert.Equal(t, log.DebugLevel, logLevel(1, false))
	assert.Equal(t, log.DebugLevel, logLevel(3, false))
	assert.Equal(t, log.WarnLevel, logLevel(0, true))
}

func TestNewLoggerWritesFile(t *testing.T) {
	// Arrange
	file := filepath.Join(t.TempDir(), "edit.log")
	viper.Set(logFileKey, file)
	t.Cleanup(func() { viper.Set(logFileKey, "") })
	var stderr bytes.Buffer

	// Act
	logger, closer, err := newLogger(&stderr, log.InfoLevel, "always")
	require.NoError(t, err)
	logger.Info("Fetching metadata for `log`")
	require.NoError(t, closer.Close())

	// Assert
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Fetching metadata for `log`")
	assert.NotContains(t, string(data), "\x1b[", "file output must not be coloured")
	assert.Equal(t, stderr.String(), string(data))
}

func TestNewLoggerRejectsColorMode(t *testing.T) {
	_, _, err := newLogger(&bytes.Buffer{}, log.InfoLevel, "rainbow")
	assert.Error(t, err)
}
