package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/k0nserv/cargo-edit-locally/internal/cargo"
	"github.com/k0nserv/cargo-edit-locally/internal/editlocally"
	"github.com/k0nserv/cargo-edit-locally/internal/fetcher"
	"github.com/k0nserv/cargo-edit-locally/internal/netretry"
	"github.com/k0nserv/cargo-edit-locally/internal/pkgid"
	"github.com/k0nserv/cargo-edit-locally/internal/registry"
	"github.com/k0nserv/cargo-edit-locally/internal/report"
	"github.com/k0nserv/cargo-edit-locally/internal/revision"
)

// subcommand is the token cargo passes when invoked as `cargo edit-locally`.
const subcommand = "edit-locally"

var (
	manifestPath string
	verbosity    int
	quiet        bool
	colorMode    string
	pathFlag     string
	gitFlag      string
	branchFlag   string
	tagFlag      string
	revFlag      string
	formatFlag   string
	configPath   string
)

const longDescription = `Check out a dependency of the current crate into a local directory and
add a [replace] entry to the workspace manifest that points at it.

The spec is a package ID specification such as "log", "log:0.3.5" or
"https://github.com/rust-lang/log#log:0.3.5". The checkout is placed in
<dir>/<name>, where <dir> defaults to the current directory.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cargo-edit-locally [edit-locally] <spec> [dir]",
		Short:         "Edit a dependency of the current crate locally",
		Long:          longDescription,
		Args:          cobra.RangeArgs(1, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return readConfig(configPath)
		},
		RunE: runEditLocally,
	}

	flags := cmd.Flags()
	flags.StringVar(&manifestPath, "manifest-path", "", "Path to the manifest to resolve")
	flags.CountVarP(&verbosity, "verbose", "v", "Use verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "No output printed to stdout")
	flags.StringVar(&colorMode, "color", "auto", "Coloring: auto, always, never")
	flags.StringVar(&pathFlag, "path", "", "Use an existing checkout instead of fetching one")
	flags.StringVar(&gitFlag, "git", "", "Clone this repository instead of the package's own")
	flags.StringVar(&branchFlag, "branch", "", "Branch of --git to use")
	flags.StringVar(&tagFlag, "tag", "", "Tag of --git to use")
	flags.StringVar(&revFlag, "rev", "", "Commit of --git to use")
	flags.StringVar(&formatFlag, "format", viper.GetString(outputFormatKey), "Summary format: text, yaml")
	flags.StringVar(&configPath, "config", "", "Path to a config file")
	bindFlagToConfig(flags.Lookup("format"), outputFormatKey)

	cmd.MarkFlagsMutuallyExclusive("path", "git")
	cmd.MarkFlagsMutuallyExclusive("branch", "tag", "rev")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
	return cmd
}

// bindFlagToConfig wires a flag to a viper key so config and env values feed it.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runEditLocally(cmd *cobra.Command, args []string) error {
	spec, dir, err := parseArgs(args)
	if err != nil {
		return err
	}
	ref, err := gitReference(branchFlag, tagFlag, revFlag)
	if err != nil {
		return err
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	logger, closer, err := newLogger(cmd.ErrOrStderr(), logLevel(verbosity, quiet), colorMode)
	if err != nil {
		return err
	}
	defer closer.Close()

	retry := netretry.NewPolicy(viper.GetInt(netRetriesKey))
	retry.OnRetry = func(err error, wait time.Duration) {
		logger.Warn("network request failed, retrying", "err", err, "in", wait.Round(time.Millisecond))
	}

	fs := afero.NewOsFs()
	editor := editlocally.NewEditor(editlocally.Deps{
		FS:       fs,
		Cargo:    cargo.New(fs, viper.GetString(cargoBinKey), logger),
		Registry: registry.NewClient(viper.GetString(registryAPIKey), viper.GetString(registryUserAgentKey), retry),
		Fetcher:  fetcher.NewFetcher(fs, retry, logger),
		Resolver: revision.NewResolver(logger),
		Logger:   logger,
	})

	res, err := editor.Run(cmd.Context(), editlocally.Options{
		Spec:         spec,
		Cwd:          cwd,
		Dir:          dir,
		ManifestPath: manifestPath,
		Path:         pathFlag,
		Git:          gitFlag,
		Ref:          ref,
	})
	if err != nil {
		return err
	}
	if quiet {
		return nil
	}

	out := cmd.OutOrStdout()
	renderer := lipgloss.NewRenderer(out)
	if profile, forced, _ := colorProfile(colorMode); forced {
		renderer.SetColorProfile(profile)
	}
	return report.NewPrinter(out, renderer).Print(viper.GetString(outputFormatKey), summarize(cwd, res))
}

// parseArgs drops the subcommand token cargo inserts and returns the spec
// and the optional checkout directory.
func parseArgs(args []string) (spec, dir string, err error) {
	if len(args) > 0 && args[0] == subcommand {
		args = args[1:]
	}
	switch len(args) {
	case 1:
		return args[0], "", nil
	case 2:
		return args[0], args[1], nil
	case 0:
		return "", "", errors.New("missing package specification")
	}
	return "", "", fmt.Errorf("unexpected argument `%s`", args[2])
}

// gitReference builds the reference requested by --branch, --tag or --rev.
func gitReference(branch, tag, rev string) (pkgid.GitReference, error) {
	var refs []pkgid.GitReference
	for _, r := range []pkgid.GitReference{
		{Kind: pkgid.RefBranch, Value: branch},
		{Kind: pkgid.RefTag, Value: tag},
		{Kind: pkgid.RefRev, Value: rev},
	} {
		if r.Value != "" {
			refs = append(refs, r)
		}
	}
	switch len(refs) {
	case 0:
		return pkgid.GitReference{}, nil
	case 1:
		return refs[0], nil
	}
	return pkgid.GitReference{}, errors.New("only one of --branch, --tag or --rev may be given")
}

func summarize(cwd string, res *editlocally.Result) report.Summary {
	return report.Summary{
		Package:     res.Package.Name,
		Version:     res.Package.Version,
		Destination: relative(cwd, res.Destination),
		Manifest:    relative(cwd, res.Manifest),
		Directive:   res.Directive.Line(),
		Method:      string(res.Method),
		Commit:      res.Commit,
	}
}

// relative shortens path for display when it lies below cwd.
func relative(cwd, path string) string {
	rel, err := filepath.Rel(cwd, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
