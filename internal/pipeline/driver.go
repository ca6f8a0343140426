package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/runner"
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/translate"
)

// Request describes one run.
type Request struct {
	// Input is the starting artifact.
	Input *artifact.Handle
	// Outputs maps a stage to the file its artifact is written to.
	Outputs map[stage.Stage]string
	// Encodings forces the encoding of a stage's artifact.
	Encodings map[stage.Stage]stage.Encoding
	// NoRun skips execution of the final artifact.
	NoRun bool
	// ModuleName selects the program's entry module.
	ModuleName string
}

// Validate checks that every requested output lies after the input stage and
// that every forced encoding is one its stage supports.
func (r Request) Validate() error {
	if r.Input == nil {
		return &AssemblyError{Message: "no input artifact"}
	}
	for _, s := range sortedStages(r.Outputs) {
		if !s.Valid() {
			return &AssemblyError{Message: fmt.Sprintf("unknown output stage %d", int(s))}
		}
		if s <= r.Input.Stage() {
			return &AssemblyError{Message: fmt.Sprintf("cannot produce %s output from %s input", s, r.Input.Stage())}
		}
	}
	for s, enc := range r.Encodings {
		if !s.Valid() {
			return &AssemblyError{Message: fmt.Sprintf("unknown encoding stage %d", int(s))}
		}
		if enc == stage.Unknown {
			continue
		}
		if err := s.CheckEncoding(enc); err != nil {
			return err
		}
	}
	return nil
}

// last returns the latest requested output stage, or Executable when the
// final artifact is to be run.
func (r Request) last() stage.Stage {
	if !r.NoRun {
		return stage.Executable
	}
	var out stage.Stage
	for s := range r.Outputs {
		out = max(out, s)
	}
	return out
}

// done reports whether every requested output is at or before current.
func (r Request) done(current stage.Stage) bool {
	for s := range r.Outputs {
		if s > current {
			return false
		}
	}
	return true
}

// Step is one executed translator.
type Step struct {
	Translator  string
	From        stage.Stage
	To          stage.Stage
	Encoding    stage.Encoding
	Destination string
	// Output is nil when the step failed.
	Output *artifact.Handle
	Err    error
}

// Result is the outcome of Run. On failure it holds the steps up to and
// including the failed one.
type Result struct {
	RunID    string
	Steps    []Step
	Final    *artifact.Handle
	Executed bool
}

// Driver runs requests against a fixed translator list.
type Driver struct {
	translators []translate.Translator
	runner      runner.Runner
	recorder    Recorder
}

// Option configures a Driver.
type Option func(*Driver)

// WithRunner sets the runner that executes the final artifact.
func WithRunner(r runner.Runner) Option {
	return func(d *Driver) { d.runner = r }
}

// WithRecorder sets the recorder that journals runs and steps.
func WithRecorder(r Recorder) Option {
	return func(d *Driver) { d.recorder = r }
}

// NewDriver checks that translators cover every adjacent stage pair in order.
// Without WithRunner the driver refuses requests that need execution.
func NewDriver(translators []translate.Translator, opts ...Option) (*Driver, error) {
	if err := translate.CheckChain(translators); err != nil {
		return nil, &AssemblyError{Message: err.Error()}
	}
	d := &Driver{
		translators: slices.Clone(translators),
		recorder:    nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run drives req.Input forward until every requested output exists and, unless
// NoRun is set, hands the executable to the runner.
func (d *Driver) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !req.NoRun && d.runner == nil {
		return nil, &AssemblyError{Message: "execution requested but no runner configured"}
	}
	if err := d.checkEncodings(req); err != nil {
		return nil, err
	}

	res := &Result{}
	res.RunID = d.begin(ctx, req)
	err := d.run(ctx, req, res)
	d.finish(ctx, res.RunID, err)
	return res, err
}

func (d *Driver) run(ctx context.Context, req Request, res *Result) error {
	current := req.Input
	for _, t := range d.translators {
		if req.NoRun && req.done(current.Stage()) {
			slog.Info("early termination", "stage", current.Stage().String())
			break
		}
		if current.Stage() != t.InputStage() {
			slog.Debug("skipping stage", "translator", translate.Name(t), "current", current.Stage().String())
			continue
		}

		dest := req.Outputs[t.OutputStage()]
		opts := translate.Options{
			Destination: dest,
			Encoding:    req.Encodings[t.OutputStage()],
			ModuleName:  req.ModuleName,
		}
		slog.Info("compiling stage",
			"translator", translate.Name(t),
			"from", t.InputStage().String(),
			"to", t.OutputStage().String(),
			"destination", dest)

		out, err := t.Run(ctx, current, opts)
		step := Step{
			Translator:  translate.Name(t),
			From:        t.InputStage(),
			To:          t.OutputStage(),
			Encoding:    translate.ResolveEncoding(t.OutputStage(), opts.Encoding, dest),
			Destination: dest,
			Output:      out,
			Err:         err,
		}
		res.Steps = append(res.Steps, step)
		d.record(ctx, res.RunID, len(res.Steps)-1, step)
		if err != nil {
			return &StepError{Translator: step.Translator, From: step.From, To: step.To, Err: err}
		}
		current = out
	}
	res.Final = current

	if req.NoRun {
		return nil
	}
	if current.Stage() != stage.Executable {
		return &InvariantError{Message: fmt.Sprintf("pipeline ended at %s, expected %s", current.Stage(), stage.Executable)}
	}
	res.Executed = true
	return d.runner.Run(ctx, current)
}

// checkEncodings rejects, before any translator runs, a request whose
// resolved encoding for some stage cannot be produced by its translator.
func (d *Driver) checkEncodings(req Request) error {
	first, last := req.Input.Stage(), req.last()
	for _, t := range d.translators {
		if t.InputStage() < first || t.OutputStage() > last {
			continue
		}
		opts := translate.Options{
			Destination: req.Outputs[t.OutputStage()],
			Encoding:    req.Encodings[t.OutputStage()],
		}
		if err := translate.CheckEncoding(t, opts); err != nil {
			return err
		}
	}
	return nil
}

func sortedStages(m map[stage.Stage]string) []stage.Stage {
	out := make([]stage.Stage, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
