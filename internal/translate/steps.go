package translate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/graphir"
	"github.com/roach88/stagerun/internal/loader"
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/toolexec"
)

var (
	bothEncodings = []stage.Encoding{stage.Binary, stage.Textual}
	textualOnly   = []stage.Encoding{stage.Textual}
	binaryOnly    = []stage.Encoding{stage.Binary}
)

// ProgramCompiler loads a source program and emits its graph IR.
type ProgramCompiler struct {
	Loader loader.Loader
	// ModuleName is used when Options.ModuleName is empty.
	ModuleName string
}

func (*ProgramCompiler) Name() string             { return "program-compiler" }
func (*ProgramCompiler) InputStage() stage.Stage  { return stage.Source }
func (*ProgramCompiler) OutputStage() stage.Stage { return stage.GraphIR }

func (*ProgramCompiler) outputEncodings() []stage.Encoding { return bothEncodings }

// Run compiles in. Binary sources are rejected as a load error rather than
// an encoding error.
func (c *ProgramCompiler) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	if in.Stage() == stage.Source && in.Encoding() == stage.Binary {
		return nil, &loader.ProgramLoadError{Kind: loader.KindBinarySource, Module: c.module(opts), Path: in.Path()}
	}
	return run(ctx, c, in, opts)
}

func (c *ProgramCompiler) module(opts Options) string {
	switch {
	case opts.ModuleName != "":
		return opts.ModuleName
	case c.ModuleName != "":
		return c.ModuleName
	default:
		return loader.DefaultModuleName
	}
}

func (c *ProgramCompiler) process(_ context.Context, w work) ([]byte, error) {
	l := c.Loader
	if l == nil {
		l = loader.CUELoader{}
	}
	g, err := l.Load(w.Path, loader.Options{ModuleName: c.module(w.Opts), Temporary: w.Temporary})
	if err != nil {
		return nil, err
	}
	return graphir.Encode(g, w.Encoding)
}

// GraphTranslator converts graph IR into the hugr MLIR dialect.
type GraphTranslator struct {
	Tool toolexec.Tool
}

func (*GraphTranslator) Name() string             { return "graph-translator" }
func (*GraphTranslator) InputStage() stage.Stage  { return stage.GraphIR }
func (*GraphTranslator) OutputStage() stage.Stage { return stage.DialectIR }

func (*GraphTranslator) outputEncodings() []stage.Encoding { return textualOnly }

func (t *GraphTranslator) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	return run(ctx, t, in, opts)
}

// process decodes the input graph first so malformed IR never reaches the
// tool.
func (t *GraphTranslator) process(ctx context.Context, w work) ([]byte, error) {
	if _, err := graphir.Load(w.In); err != nil {
		return nil, err
	}
	flag := "--hugr-json-to-mlir"
	if w.In.Encoding() == stage.Binary {
		flag = "--hugr-rmp-to-mlir"
	}
	out, err := t.Tool.Run(ctx, w.Encoding, flag, w.Path)
	if err != nil {
		return nil, err
	}
	// The entry point must be public to survive lowering.
	return []byte(strings.ReplaceAll(string(out), "func @main", "func public @main")), nil
}

// DialectLowerer lowers the hugr dialect to the llvm dialect.
type DialectLowerer struct {
	Tool toolexec.Tool
}

func (*DialectLowerer) Name() string             { return "dialect-lowerer" }
func (*DialectLowerer) InputStage() stage.Stage  { return stage.DialectIR }
func (*DialectLowerer) OutputStage() stage.Stage { return stage.LoweredIR }

func (*DialectLowerer) outputEncodings() []stage.Encoding { return bothEncodings }

func (t *DialectLowerer) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	return run(ctx, t, in, opts)
}

func (t *DialectLowerer) process(ctx context.Context, w work) ([]byte, error) {
	args := []string{w.Path, "--lower-hugr"}
	if w.Encoding == stage.Binary {
		args = append(args, "--emit-bytecode")
	}
	return t.Tool.Run(ctx, w.Encoding, args...)
}

// LLVMTranslator converts the llvm dialect into LLVM IR.
type LLVMTranslator struct {
	Tool toolexec.Tool
}

func (*LLVMTranslator) Name() string             { return "llvm-translator" }
func (*LLVMTranslator) InputStage() stage.Stage  { return stage.LoweredIR }
func (*LLVMTranslator) OutputStage() stage.Stage { return stage.LowLevelIR }

func (*LLVMTranslator) outputEncodings() []stage.Encoding { return textualOnly }

func (t *LLVMTranslator) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	return run(ctx, t, in, opts)
}

func (t *LLVMTranslator) process(ctx context.Context, w work) ([]byte, error) {
	return t.Tool.Run(ctx, w.Encoding, w.Path, "--mlir-to-llvmir")
}

// ObjectCompiler compiles LLVM IR into a native object file.
type ObjectCompiler struct {
	Tool toolexec.Tool
}

func (*ObjectCompiler) Name() string             { return "object-compiler" }
func (*ObjectCompiler) InputStage() stage.Stage  { return stage.LowLevelIR }
func (*ObjectCompiler) OutputStage() stage.Stage { return stage.Object }

func (*ObjectCompiler) outputEncodings() []stage.Encoding { return binaryOnly }

func (t *ObjectCompiler) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	return run(ctx, t, in, opts)
}

func (t *ObjectCompiler) process(ctx context.Context, w work) ([]byte, error) {
	return t.Tool.Run(ctx, w.Encoding, w.Path, "--filetype=obj", "-o", "-")
}

// Linker links an object file against the runtime into an executable.
type Linker struct {
	Tool toolexec.Tool
	// RuntimeLibDir is passed with -L when set.
	RuntimeLibDir string
	// Libs are passed as -l<lib>.
	Libs []string
}

func (*Linker) Name() string             { return "linker" }
func (*Linker) InputStage() stage.Stage  { return stage.Object }
func (*Linker) OutputStage() stage.Stage { return stage.Executable }

func (*Linker) outputEncodings() []stage.Encoding { return binaryOnly }

func (t *Linker) Run(ctx context.Context, in *artifact.Handle, opts Options) (*artifact.Handle, error) {
	return run(ctx, t, in, opts)
}

// LinkArgs returns the linker arguments for input and output paths.
func (t *Linker) LinkArgs(input, output string) []string {
	args := []string{input, "-o", output}
	if t.RuntimeLibDir != "" {
		args = append(args, "-L", t.RuntimeLibDir)
	}
	for _, lib := range t.Libs {
		args = append(args, "-l"+lib)
	}
	return args
}

// process links into a scratch file and returns its bytes. The linker cannot
// write an executable to stdout.
func (t *Linker) process(ctx context.Context, w work) ([]byte, error) {
	f, err := os.CreateTemp("", "stagerun-*.out")
	if err != nil {
		return nil, fmt.Errorf("creating link output: %w", err)
	}
	output := f.Name()
	f.Close()
	defer os.Remove(output)

	if _, err := t.Tool.Run(ctx, stage.Binary, t.LinkArgs(w.Path, output)...); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("reading link output: %w", err)
	}
	return data, nil
}
