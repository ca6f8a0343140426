package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/config"
	"github.com/roach88/stagerun/internal/toolexec"
	"github.com/roach88/stagerun/internal/translate"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	EnvFile    string

	// Lookup reads tool overrides from the environment. Tests replace it;
	// nil means os.LookupEnv.
	Lookup toolexec.LookupFunc
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stagerun CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stagerun",
		Short: "Staged compilation pipeline driver",
		Long: `Drive a program through the compilation stages

  source -> graph-ir -> dialect-ir -> lowered-ir -> llvm-ir -> object -> executable

Any stage can be the starting point and any later stage can be written out.
Each transition is performed by an external tool whose path can be overridden
with an environment variable or the toolchain config file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			configureLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "toolchain config file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", "", "env file with tool overrides (default .env when present)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))
	cmd.AddCommand(NewStagesCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))

	return cmd
}

// Main runs the CLI with args and returns the process exit code. Failures are
// reported as a single line on stderr, or as a JSON error response on stdout
// with --format json.
func Main(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr, Verbose: opts.Verbose}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	_ = f.Error(errorCode(err), err.Error(), nil)

	// Flag and argument errors from cobra itself are command errors.
	if !isExitError(err) {
		return ExitCommandError
	}
	return GetExitCode(err)
}

// configureLogging installs the process-wide slog handler.
func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// toolchain loads the env file and config, then resolves every tool.
func (o *RootOptions) toolchain() (translate.Toolchain, *config.Config, error) {
	if err := config.LoadEnvFile(o.EnvFile, o.EnvFile != ""); err != nil {
		return translate.Toolchain{}, nil, WrapExitError(ExitCommandError, "failed to load env file", err)
	}

	var cfg *config.Config
	if o.ConfigPath != "" {
		var err error
		cfg, err = config.Load(o.ConfigPath)
		if err != nil {
			return translate.Toolchain{}, nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}

	lookup := o.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	tc := cfg.Toolchain(lookup)
	for _, tool := range tc.Tools() {
		slog.Debug("resolved tool", "tool", tool.Name, "path", tool.Path, "origin", tool.Origin.String())
	}
	return tc, cfg, nil
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
