package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/journal"
	"github.com/roach88/stagerun/internal/pipeline"
	"github.com/roach88/stagerun/internal/runner"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	pipelineFlags
	Journal string
}

// RunResult is the output of a run.
type RunResult struct {
	RunID    string     `json:"run_id,omitempty"`
	Input    string     `json:"input"`
	Steps    []stepView `json:"steps"`
	Executed bool       `json:"executed"`
}

// String renders the result as text: one line per written artifact.
func (r RunResult) String() string {
	var b strings.Builder
	for _, s := range r.Steps {
		if s.Destination != "" {
			fmt.Fprintf(&b, "wrote %s (%s) to %s\n", s.To, s.Encoding, s.Destination)
		}
	}
	return b.String()
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <input> [-- program args...]",
		Short: "Compile an input and run the program",
		Long: `Drive the input through every remaining stage, write the requested
artifacts and execute the resulting program.

The input stage is inferred from the file extension unless --stage is given.
Use - to read a textual artifact from standard input.

Examples:
  stagerun run prog.cue
  stagerun run prog.cue --graph-out prog.json --no-run
  stagerun run prog.ll --stage llvm-ir -o prog --no-run
  stagerun run prog.o -- --verbose
  stagerun run prog.cue --emit-encoding dialect-ir=binary --dialect-out prog.mlirbc --no-run`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd, args[0], args[1:])
		},
	}

	opts.pipelineFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the run in this SQLite journal")

	return cmd
}

func runPipeline(opts *RunOptions, cmd *cobra.Command, input string, programArgs []string) error {
	ctx := cmd.Context()

	req, err := opts.request(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	tc, cfg, err := opts.toolchain()
	if err != nil {
		return err
	}

	// Keep stdout parseable in JSON mode.
	programOut := cmd.OutOrStdout()
	if opts.Format == "json" {
		programOut = cmd.ErrOrStderr()
	}
	driverOpts := []pipeline.Option{
		pipeline.WithRunner(&runner.Exec{
			Stdin:  cmd.InOrStdin(),
			Stdout: programOut,
			Stderr: cmd.ErrOrStderr(),
			Args:   programArgs,
		}),
	}

	journalPath := opts.Journal
	if journalPath == "" && cfg != nil {
		journalPath = cfg.Journal
	}
	if journalPath != "" {
		j, err := journal.Open(journalPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		driverOpts = append(driverOpts, pipeline.WithRecorder(j))
	}

	d, err := pipeline.NewDriver(tc.Translators(), driverOpts...)
	if err != nil {
		return WrapExitError(ExitFailure, "", err)
	}

	res, err := d.Run(ctx, req)
	if err != nil {
		return WrapExitError(ExitFailure, "", err)
	}

	result := RunResult{
		RunID:    res.RunID,
		Input:    req.Input.String(),
		Steps:    make([]stepView, 0, len(res.Steps)),
		Executed: res.Executed,
	}
	for i, s := range res.Steps {
		result.Steps = append(result.Steps, stepView{
			Index:       i + 1,
			Translator:  s.Translator,
			From:        s.From.String(),
			To:          s.To.String(),
			Encoding:    s.Encoding.String(),
			Destination: s.Destination,
		})
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}
	if res.RunID != "" {
		f.VerboseLog("recorded run %s in %s", res.RunID, journalPath)
	}
	return f.Success(result)
}
