package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/runner"
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/translate"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// fakeTranslator produces a payload naming its output stage.
type fakeTranslator struct {
	in, out stage.Stage
	log     *[]string
	err     error
	// emit overrides the stage of the produced artifact.
	emit *stage.Stage
}

func (f *fakeTranslator) InputStage() stage.Stage  { return f.in }
func (f *fakeTranslator) OutputStage() stage.Stage { return f.out }
func (f *fakeTranslator) Name() string             { return "to-" + f.out.String() }

func (f *fakeTranslator) Run(_ context.Context, in *artifact.Handle, opts translate.Options) (*artifact.Handle, error) {
	if in.Stage() != f.in {
		return nil, &stage.InvalidStageError{Got: in.Stage(), Expected: f.in}
	}
	*f.log = append(*f.log, f.Name())
	if f.err != nil {
		return nil, f.err
	}
	s := f.out
	if f.emit != nil {
		s = *f.emit
	}
	h := artifact.New(s, f.out.DefaultEncoding(), []byte(f.out.String()))
	if opts.Destination != "" {
		if err := h.WriteTo(opts.Destination); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func fakeChain(log *[]string) []translate.Translator {
	var trs []translate.Translator
	for _, s := range stage.All[:len(stage.All)-1] {
		next, _ := s.Next()
		trs = append(trs, &fakeTranslator{in: s, out: next, log: log})
	}
	return trs
}

type recordingRunner struct {
	got []*artifact.Handle
	err error
}

func (r *recordingRunner) Run(_ context.Context, exe *artifact.Handle) error {
	r.got = append(r.got, exe)
	return r.err
}

func newDriver(t *testing.T, trs []translate.Translator, opts ...Option) *Driver {
	t.Helper()
	d, err := NewDriver(trs, opts...)
	require.NoError(t, err)
	return d
}

func TestNewDriver_RejectsBrokenChain(t *testing.T) {
	var log []string
	trs := fakeChain(&log)

	_, err := NewDriver(trs[:3])
	var ae *AssemblyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodePipeline, ae.Code())

	trs[2], trs[3] = trs[3], trs[2]
	_, err = NewDriver(trs)
	require.ErrorAs(t, err, &ae)
}

func TestRun_EarlyTermination(t *testing.T) {
	for _, target := range stage.All[1:] {
		t.Run(target.String(), func(t *testing.T) {
			var log []string
			r := &recordingRunner{}
			d := newDriver(t, fakeChain(&log), WithRunner(r))

			dest := filepath.Join(t.TempDir(), "out")
			res, err := d.Run(context.Background(), Request{
				Input:   artifact.NewText(stage.Source, "src"),
				Outputs: map[stage.Stage]string{target: dest},
				NoRun:   true,
			})
			require.NoError(t, err)

			assert.Len(t, log, int(target), "translators up to %s run, none after", target)
			assert.Equal(t, "to-"+target.String(), log[len(log)-1])
			assert.Equal(t, target, res.Final.Stage())
			assert.FileExists(t, dest)
			assert.Empty(t, r.got)
			assert.False(t, res.Executed)
		})
	}
}

func TestRun_EarlyTerminationWaitsForLatestOutput(t *testing.T) {
	var log []string
	d := newDriver(t, fakeChain(&log))
	dir := t.TempDir()

	_, err := d.Run(context.Background(), Request{
		Input: artifact.NewText(stage.Source, "src"),
		Outputs: map[stage.Stage]string{
			stage.GraphIR:    filepath.Join(dir, "g.json"),
			stage.LowLevelIR: filepath.Join(dir, "p.ll"),
		},
		NoRun: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"to-graph-ir", "to-dialect-ir", "to-lowered-ir", "to-llvm-ir"}, log)
	assert.FileExists(t, filepath.Join(dir, "g.json"))
	assert.FileExists(t, filepath.Join(dir, "p.ll"))
}

func TestRun_Resumption(t *testing.T) {
	for _, start := range stage.All[:len(stage.All)-1] {
		t.Run(start.String(), func(t *testing.T) {
			var log []string
			r := &recordingRunner{}
			d := newDriver(t, fakeChain(&log), WithRunner(r))

			res, err := d.Run(context.Background(), Request{Input: artifact.New(start, start.DefaultEncoding(), nil)})
			require.NoError(t, err)

			assert.Len(t, log, len(stage.All)-1-int(start), "translators before %s are skipped", start)
			require.Len(t, r.got, 1)
			assert.Equal(t, stage.Executable, r.got[0].Stage())
			assert.True(t, res.Executed)
			assert.Len(t, res.Steps, len(log))
		})
	}
}

func TestRun_ExecutableInputGoesStraightToRunner(t *testing.T) {
	var log []string
	r := &recordingRunner{}
	d := newDriver(t, fakeChain(&log), WithRunner(r))

	exe := artifact.New(stage.Executable, stage.Binary, []byte("bin"))
	_, err := d.Run(context.Background(), Request{Input: exe})
	require.NoError(t, err)
	assert.Empty(t, log)
	require.Len(t, r.got, 1)
	assert.Same(t, exe, r.got[0])
}

func TestRun_FirstFailureAborts(t *testing.T) {
	var log []string
	trs := fakeChain(&log)
	boom := errors.New("boom")
	trs[2].(*fakeTranslator).err = boom
	r := &recordingRunner{}
	d := newDriver(t, trs, WithRunner(r))

	res, err := d.Run(context.Background(), Request{Input: artifact.NewText(stage.Source, "src")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, stage.DialectIR, se.From)
	assert.Equal(t, stage.LoweredIR, se.To)
	assert.Equal(t, "dialect-ir -> lowered-ir (to-lowered-ir): boom", err.Error())
	assert.Equal(t, "", se.Code())

	assert.Equal(t, []string{"to-graph-ir", "to-dialect-ir", "to-lowered-ir"}, log)
	assert.Empty(t, r.got)
	require.Len(t, res.Steps, 3)
	assert.Nil(t, res.Steps[2].Output)
	assert.Equal(t, boom, res.Steps[2].Err)
}

func TestRun_RunnerError(t *testing.T) {
	var log []string
	r := &recordingRunner{err: &runner.ExecutionError{ExitCode: 2}}
	d := newDriver(t, fakeChain(&log), WithRunner(r))

	res, err := d.Run(context.Background(), Request{Input: artifact.NewText(stage.Source, "src")})
	var ee *runner.ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.True(t, res.Executed)
}

func TestRun_InvariantViolation(t *testing.T) {
	var log []string
	trs := fakeChain(&log)
	wrong := stage.Object
	trs[len(trs)-1].(*fakeTranslator).emit = &wrong
	r := &recordingRunner{}
	d := newDriver(t, trs, WithRunner(r))

	_, err := d.Run(context.Background(), Request{Input: artifact.New(stage.Object, stage.Binary, nil)})
	var ie *InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "pipeline ended at object")
	assert.Empty(t, r.got)
}

func TestRun_RequestValidation(t *testing.T) {
	var log []string
	d := newDriver(t, fakeChain(&log))

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"no input", Request{NoRun: true}, "no input artifact"},
		{"output before input", Request{
			Input:   artifact.New(stage.Object, stage.Binary, nil),
			Outputs: map[stage.Stage]string{stage.GraphIR: "g.json"},
			NoRun:   true,
		}, "cannot produce graph-ir output from object input"},
		{"output at input", Request{
			Input:   artifact.NewText(stage.LowLevelIR, ""),
			Outputs: map[stage.Stage]string{stage.LowLevelIR: "p.ll"},
			NoRun:   true,
		}, "cannot produce llvm-ir output"},
		{"no runner", Request{Input: artifact.NewText(stage.Source, "")}, "no runner configured"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Run(context.Background(), tt.req)
			var ae *AssemblyError
			require.ErrorAs(t, err, &ae)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Empty(t, log)
}

func TestRun_ForcedEncodingsAndModuleReachTranslators(t *testing.T) {
	var got []translate.Options
	spy := &optionSpy{fakeTranslator: fakeTranslator{in: stage.Source, out: stage.GraphIR, log: new([]string)}, got: &got}
	var log []string
	trs := fakeChain(&log)
	trs[0] = spy
	d := newDriver(t, trs)

	_, err := d.Run(context.Background(), Request{
		Input:      artifact.NewText(stage.Source, "src"),
		Outputs:    map[stage.Stage]string{stage.GraphIR: filepath.Join(t.TempDir(), "g")},
		Encodings:  map[stage.Stage]stage.Encoding{stage.GraphIR: stage.Binary},
		NoRun:      true,
		ModuleName: "app",
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stage.Binary, got[0].Encoding)
	assert.Equal(t, "app", got[0].ModuleName)
}

type optionSpy struct {
	fakeTranslator
	got *[]translate.Options
}

func (s *optionSpy) Run(ctx context.Context, in *artifact.Handle, opts translate.Options) (*artifact.Handle, error) {
	*s.got = append(*s.got, opts)
	return s.fakeTranslator.Run(ctx, in, opts)
}

type memRecorder struct {
	begun    int
	steps    []Step
	finished []error
}

func (m *memRecorder) BeginRun(context.Context, Request) (string, error) {
	m.begun++
	return "run-1", nil
}

func (m *memRecorder) RecordStep(_ context.Context, runID string, index int, step Step) error {
	if runID != "run-1" || index != len(m.steps) {
		return errors.New("unexpected step")
	}
	m.steps = append(m.steps, step)
	return nil
}

func (m *memRecorder) FinishRun(_ context.Context, _ string, err error) error {
	m.finished = append(m.finished, err)
	return nil
}

func TestRun_Recorder(t *testing.T) {
	var log []string
	trs := fakeChain(&log)
	trs[1].(*fakeTranslator).err = errors.New("nope")
	rec := &memRecorder{}
	d := newDriver(t, trs, WithRecorder(rec), WithRunner(&recordingRunner{}))

	res, err := d.Run(context.Background(), Request{Input: artifact.NewText(stage.Source, "src")})
	require.Error(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 1, rec.begun)
	require.Len(t, rec.steps, 2)
	assert.Equal(t, stage.GraphIR, rec.steps[0].To)
	assert.Error(t, rec.steps[1].Err)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, err, rec.finished[0])
}

type failingRecorder struct{}

func (failingRecorder) BeginRun(context.Context, Request) (string, error) {
	return "", errors.New("disk full")
}
func (failingRecorder) RecordStep(context.Context, string, int, Step) error { return nil }
func (failingRecorder) FinishRun(context.Context, string, error) error      { return nil }

func TestRun_RecorderFailureDoesNotFailRun(t *testing.T) {
	var log []string
	d := newDriver(t, fakeChain(&log), WithRecorder(failingRecorder{}))
	res, err := d.Run(context.Background(), Request{
		Input:   artifact.NewText(stage.Source, "src"),
		Outputs: map[stage.Stage]string{stage.GraphIR: filepath.Join(t.TempDir(), "g.json")},
		NoRun:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "", res.RunID)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeGeneric, ErrorCode(errors.New("plain")))
	assert.Equal(t, ErrCodePipeline, ErrorCode(&AssemblyError{}))
	assert.Equal(t, "E201", ErrorCode(&StepError{Err: &stage.InvalidStageError{}}))
	assert.Equal(t, ErrCodeGeneric, ErrorCode(&StepError{Err: errors.New("x")}))
}
