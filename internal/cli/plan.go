package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/pipeline"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	pipelineFlags
}

// PlanResult is the output of plan.
type PlanResult struct {
	Input    string     `json:"input"`
	Encoding string     `json:"encoding"`
	Steps    []stepView `json:"steps"`
	Execute  bool       `json:"execute"`
}

// String renders the plan as an aligned table.
func (p PlanResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "input: %s (%s)\n", p.Input, p.Encoding)

	w := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tTRANSLATOR\tFROM\tTO\tACTION\tENCODING\tDESTINATION")
	for _, s := range p.Steps {
		enc, dest := "-", "-"
		if s.Encoding != "" {
			enc = s.Encoding
		}
		switch {
		case s.Destination != "":
			dest = s.Destination
		case s.Reason != "":
			dest = "(" + s.Reason + ")"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", s.Index, s.Translator, s.From, s.To, s.Action, enc, dest)
	}
	w.Flush()

	if p.Execute {
		b.WriteString("execute: yes\n")
	} else {
		b.WriteString("execute: no\n")
	}
	return b.String()
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <input>",
		Short: "Show what run would do",
		Long: `Show which translators run would execute for the same flags, where
each artifact would be written and whether the program would be executed.
Nothing is compiled and no tool is started.

Examples:
  stagerun plan prog.cue --graph-out prog.json --no-run
  stagerun plan prog.o --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, cmd, args[0])
		},
	}

	opts.pipelineFlags.register(cmd)

	return cmd
}

func runPlan(opts *PlanOptions, cmd *cobra.Command, input string) error {
	req, err := opts.request(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	tc, _, err := opts.toolchain()
	if err != nil {
		return err
	}

	d, err := pipeline.NewDriver(tc.Translators())
	if err != nil {
		return WrapExitError(ExitFailure, "", err)
	}
	plan, err := d.Plan(req)
	if err != nil {
		return WrapExitError(rejectionExitCode(err), "", err)
	}

	result := PlanResult{
		Input:    plan.Input.String(),
		Encoding: plan.Encoding.String(),
		Steps:    make([]stepView, 0, len(plan.Steps)),
		Execute:  plan.Execute,
	}
	for i, s := range plan.Steps {
		view := stepView{
			Index:       i + 1,
			Translator:  s.Translator,
			From:        s.From.String(),
			To:          s.To.String(),
			Action:      string(s.Action),
			Reason:      s.Reason,
			Destination: s.Destination,
		}
		if s.Action == pipeline.ActionRun {
			view.Encoding = s.Encoding.String()
		}
		result.Steps = append(result.Steps, view)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	return f.Success(result)
}
