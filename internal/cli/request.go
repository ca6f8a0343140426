package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/pipeline"
	"github.com/roach88/stagerun/internal/stage"
)

// stdinArg selects standard input as the pipeline input.
const stdinArg = "-"

// pipelineFlags are the flags shared by run and plan.
type pipelineFlags struct {
	Stage         string
	Encoding      string
	GraphOut      string
	DialectOut    string
	LoweredOut    string
	LLVMOut       string
	ObjectOut     string
	Output        string
	EmitEncodings []string
	NoRun         bool
	Module        string
}

func (f *pipelineFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.Stage, "stage", "", "stage of the input (default: inferred from the extension, else source)")
	flags.StringVar(&f.Encoding, "encoding", "", "encoding of the input: binary or textual (default: inferred)")
	flags.StringVar(&f.GraphOut, "graph-out", "", "write the graph-ir artifact to this file")
	flags.StringVar(&f.DialectOut, "dialect-out", "", "write the dialect-ir artifact to this file")
	flags.StringVar(&f.LoweredOut, "lowered-out", "", "write the lowered-ir artifact to this file")
	flags.StringVar(&f.LLVMOut, "llvm-out", "", "write the llvm-ir artifact to this file")
	flags.StringVar(&f.ObjectOut, "object-out", "", "write the object file to this file")
	flags.StringVarP(&f.Output, "output", "o", "", "write the executable to this file")
	flags.StringArrayVar(&f.EmitEncodings, "emit-encoding", nil, "force the encoding of a stage's output, as stage=mode (repeatable)")
	flags.BoolVar(&f.NoRun, "no-run", false, "do not execute the program")
	flags.StringVar(&f.Module, "module", "", "name of the entry module in the source program")
}

// outputs maps each stage to the destination given on the command line.
func (f *pipelineFlags) outputs() map[stage.Stage]string {
	out := make(map[stage.Stage]string)
	for s, path := range map[stage.Stage]string{
		stage.GraphIR:    f.GraphOut,
		stage.DialectIR:  f.DialectOut,
		stage.LoweredIR:  f.LoweredOut,
		stage.LowLevelIR: f.LLVMOut,
		stage.Object:     f.ObjectOut,
		stage.Executable: f.Output,
	} {
		if path != "" {
			out[s] = path
		}
	}
	return out
}

// encodings parses the --emit-encoding values.
func (f *pipelineFlags) encodings() (map[stage.Stage]stage.Encoding, error) {
	out := make(map[stage.Stage]stage.Encoding)
	for _, entry := range f.EmitEncodings {
		name, mode, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --emit-encoding %q: expected stage=mode", entry)
		}
		s, err := stage.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --emit-encoding %q: %w", entry, err)
		}
		enc, err := stage.ParseEncoding(mode)
		if err != nil {
			return nil, fmt.Errorf("invalid --emit-encoding %q: %w", entry, err)
		}
		out[s] = enc
	}
	return out, nil
}

// input builds the starting artifact. Stdin is always read as text.
func (f *pipelineFlags) input(arg string, stdin io.Reader) (*artifact.Handle, error) {
	inStage := stage.Source
	if f.Stage != "" {
		s, err := stage.Parse(f.Stage)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid flags", err)
		}
		inStage = s
	} else if s, ok := stage.InferStage(arg); ok && arg != stdinArg {
		inStage = s
	}

	var enc stage.Encoding
	if f.Encoding != "" {
		e, err := stage.ParseEncoding(f.Encoding)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid flags", err)
		}
		enc = e
	}

	if arg == stdinArg {
		h, err := artifact.FromReader(inStage, enc.Or(stage.Textual), stdin)
		if err != nil {
			return nil, WrapExitError(ExitFailure, "failed to read input", err)
		}
		return h, nil
	}

	if _, err := os.Stat(arg); err != nil {
		return nil, WrapExitError(ExitCommandError, "input not found", err)
	}
	enc = enc.Or(stage.InferEncoding(inStage, arg)).Or(inStage.DefaultEncoding())
	if err := inStage.CheckEncoding(enc); err != nil {
		return nil, WrapExitError(ExitFailure, "", err)
	}
	return artifact.FromPath(inStage, enc, arg), nil
}

// request assembles a pipeline request from the flags and checks it. An
// empty Module leaves the choice to the toolchain config.
func (f *pipelineFlags) request(arg string, stdin io.Reader) (pipeline.Request, error) {
	outputs := f.outputs()
	if f.NoRun && len(outputs) == 0 {
		return pipeline.Request{}, NewExitError(ExitCommandError,
			"nothing to do: --no-run given without any output flag")
	}
	encodings, err := f.encodings()
	if err != nil {
		return pipeline.Request{}, WrapExitError(ExitCommandError, "invalid flags", err)
	}

	in, err := f.input(arg, stdin)
	if err != nil {
		return pipeline.Request{}, err
	}

	req := pipeline.Request{
		Input:      in,
		Outputs:    outputs,
		Encodings:  encodings,
		NoRun:      f.NoRun,
		ModuleName: f.Module,
	}
	if err := req.Validate(); err != nil {
		return pipeline.Request{}, WrapExitError(rejectionExitCode(err), "", err)
	}
	return req, nil
}

// rejectionExitCode is the exit code for a request refused before any
// translator ran. Encoding mismatches exit like the translator failure they
// stand in for.
func rejectionExitCode(err error) int {
	if errors.As(err, new(*stage.UnsupportedEncodingError)) {
		return ExitFailure
	}
	return ExitCommandError
}

// stepView is the printable form of a planned or executed step.
type stepView struct {
	Index       int    `json:"index"`
	Translator  string `json:"translator"`
	From        string `json:"from"`
	To          string `json:"to"`
	Action      string `json:"action,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Destination string `json:"destination,omitempty"`
}
