package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/k0nserv/cargo-edit-locally/internal/cargo"
	"github.com/k0nserv/cargo-edit-locally/internal/netretry"
	"github.com/k0nserv/cargo-edit-locally/internal/registry"
	"github.com/k0nserv/cargo-edit-locally/internal/report"
)

const (
	configBaseName = "cargo-edit-locally"
	envPrefix      = "EDIT_LOCALLY"

	registryAPIKey       = "registry.api"
	registryUserAgentKey = "registry.user-agent"
	netRetriesKey        = "net.retries"
	cargoBinKey          = "cargo.bin"
	outputFormatKey      = "output.format"

	logFileKey       = "log.file"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true

	logPrefix = "cargo-edit-locally"
)

func init() {
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(registryAPIKey, registry.DefaultAPI)
	viper.SetDefault(registryUserAgentKey, registry.DefaultUserAgent)
	viper.SetDefault(netRetriesKey, netretry.DefaultRetries)
	viper.SetDefault(cargoBinKey, cargo.DefaultBinary)
	viper.SetDefault(outputFormatKey, report.FormatText)

	viper.SetDefault(logFileKey, "")
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// readConfig loads path, or cargo-edit-locally.yaml from the working
// directory or the user config directory when path is empty, and merges it
// into the global configuration. Only an explicitly named file is required
// to exist.
func readConfig(path string) error {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configBaseName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configBaseName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return viper.MergeConfigMap(v.AllSettings())
}

// colorProfile maps --color onto a terminal profile. ok is false for auto,
// where the profile is detected from the output.
func colorProfile(mode string) (profile termenv.Profile, ok bool, err error) {
	switch mode {
	case "", "auto":
		return termenv.Ascii, false, nil
	case "always":
		return termenv.TrueColor, true, nil
	case "never":
		return termenv.Ascii, true, nil
	}
	return termenv.Ascii, false, fmt.Errorf("argument for --color must be auto, always, or never, but found `%s`", mode)
}

func logLevel(verbosity int, quiet bool) log.Level {
	switch {
	case quiet:
		return log.WarnLevel
	case verbosity > 0:
		return log.DebugLevel
	}
	return log.InfoLevel
}

// newLogger writes to w and, when log.file is configured, to a rotating
// file as well. Output is uncoloured whenever a file receives it.
func newLogger(w io.Writer, level log.Level, mode string) (*log.Logger, io.Closer, error) {
	profile, forced, err := colorProfile(mode)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if file := viper.GetString(logFileKey); file != "" {
		lj := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    viper.GetInt(logMaxSizeKey),
			MaxBackups: viper.GetInt(logMaxBackupsKey),
			MaxAge:     viper.GetInt(logMaxAgeKey),
			Compress:   viper.GetBool(logCompressKey),
		}
		w, closer = io.MultiWriter(w, lj), lj
		profile, forced = termenv.Ascii, true
	}

	logger := log.NewWithOptions(w, log.Options{
		Prefix: logPrefix,
		Level:  level,
	})
	if forced {
		logger.SetColorProfile(profile)
	}
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
