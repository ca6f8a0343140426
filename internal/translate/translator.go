// Package translate implements the stage translators: one per adjacent pair
// of stages, each consuming an artifact at its input stage and producing a
// new artifact at the next stage.
//
// Every translator follows the same contract, implemented once in run:
//
//  1. reject input at the wrong stage (InvalidStageError)
//  2. resolve the output encoding: explicit override, else the destination's
//     extension, else the output stage default
//  3. reject encodings the translator cannot produce (UnsupportedEncodingError)
//     before anything is written or executed
//  4. use the input's backing file, or write the payload to a temp file that
//     is removed on every exit path
//  5. transform the working file
//  6. wrap the result in a new handle
//  7. copy the payload to the destination, if one was given
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/stage"
)

// Translator converts an artifact at InputStage into one at OutputStage.
type Translator interface {
	InputStage() stage.Stage
	OutputStage() stage.Stage
	Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error)
}

// Options are the per-run settings of a translator.
type Options struct {
	// Destination is where the output payload is copied. Empty means the
	// output stays in memory only.
	Destination string
	// Encoding forces the output encoding. Unknown means resolve it.
	Encoding stage.Encoding
	// ModuleName selects the module entry point. Only the program compiler
	// reads it.
	ModuleName string
}

// Name returns a translator's display name.
func Name(t Translator) string {
	if n, ok := t.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%s-to-%s", t.InputStage(), t.OutputStage())
}

// ResolveEncoding picks the output encoding for stage out: the override if
// set, else the destination's extension, else the stage default.
func ResolveEncoding(out stage.Stage, override stage.Encoding, destination string) stage.Encoding {
	if override != stage.Unknown {
		return override
	}
	if destination != "" {
		if enc := stage.InferEncoding(out, destination); enc != stage.Unknown {
			return enc
		}
	}
	return out.DefaultEncoding()
}

// OutputEncodings returns the encodings t can produce. Translators defined
// outside this package are taken to support every encoding of their output
// stage.
func OutputEncodings(t Translator) []stage.Encoding {
	if s, ok := t.(step); ok {
		return s.outputEncodings()
	}
	return t.OutputStage().Encodings()
}

// CheckEncoding reports an UnsupportedEncodingError when t cannot produce the
// encoding that opts resolve to.
func CheckEncoding(t Translator, opts Options) error {
	enc := ResolveEncoding(t.OutputStage(), opts.Encoding, opts.Destination)
	if !slices.Contains(OutputEncodings(t), enc) {
		return &stage.UnsupportedEncodingError{Stage: t.OutputStage(), Encoding: enc}
	}
	return nil
}

// work is what a translator's transformation receives.
type work struct {
	// Path is the file holding the input payload.
	Path string
	// Temporary is true when Path is a scratch file.
	Temporary bool
	// In is the input artifact.
	In *artifact.Handle
	// Encoding is the resolved output encoding.
	Encoding stage.Encoding
	// Opts are the caller's options.
	Opts Options
}

// step is implemented by every concrete translator.
type step interface {
	Translator
	outputEncodings() []stage.Encoding
	process(ctx context.Context, w work) ([]byte, error)
}

func run(ctx context.Context, t step, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	if in.Stage() != t.InputStage() {
		return nil, &stage.InvalidStageError{Got: in.Stage(), Expected: t.InputStage()}
	}

	if err := CheckEncoding(t, opts); err != nil {
		return nil, err
	}
	enc := ResolveEncoding(t.OutputStage(), opts.Encoding, opts.Destination)

	w := work{Path: in.Path(), In: in, Encoding: enc, Opts: opts}
	if !in.FileBacked() {
		path, cleanup, err := writeTemp(in)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		w.Path = path
		w.Temporary = true
	}

	slog.Debug("translating",
		"translator", Name(t),
		"input", in.String(),
		"work_file", w.Path,
		"encoding", enc.String())

	data, err := t.process(ctx, w)
	if err != nil {
		return nil, err
	}

	out := artifact.New(t.OutputStage(), enc, data)
	if opts.Destination != "" {
		if err := out.WriteTo(opts.Destination); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// writeTemp materializes a resident handle into a uniquely named file whose
// suffix matches the handle's stage and encoding.
func writeTemp(in *artifact.Handle) (string, func(), error) {
	suffix, err := stage.CanonicalSuffix(in.Stage(), in.Encoding())
	if err != nil {
		return "", nil, err
	}
	payload, err := in.Payload()
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "stagerun-*"+suffix)
	if err != nil {
		return "", nil, fmt.Errorf("creating work file: %w", err)
	}
	cleanup := func() {
		if err := os.Remove(f.Name()); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove work file", "path", f.Name(), "error", err)
		}
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing work file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("writing work file: %w", err)
	}
	return f.Name(), cleanup, nil
}
