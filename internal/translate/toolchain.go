package translate

import (
	"fmt"
	"strings"

	"github.com/roach88/stagerun/internal/loader"
	"github.com/roach88/stagerun/internal/stage"
	"github.com/roach88/stagerun/internal/toolexec"
)

// Default tool names and the environment variables that override them.
const (
	ToolHugrMLIRTranslate = "hugr-mlir-translate"
	ToolHugrMLIROpt       = "hugr-mlir-opt"
	ToolMLIRTranslate     = "mlir-translate"
	ToolLLC               = "llc"
	ToolClang             = "clang"

	EnvHugrMLIRTranslate = "HUGR_MLIR_TRANSLATE"
	EnvHugrMLIROpt       = "HUGR_MLIR_OPT"
	EnvMLIRTranslate     = "MLIR_TRANSLATE"
	EnvLLC               = "LLC"
	EnvClang             = "CLANG"
	EnvRuntimeLibs       = "QIR_BACKEND_LIBS"
)

// DefaultLinkLibs are linked when a runtime library directory is set and no
// libraries were configured.
var DefaultLinkLibs = []string{"qir_backend", "m"}

// Toolchain holds every resolved tool. It is built once, before any
// translator runs.
type Toolchain struct {
	Loader         loader.Loader
	ModuleName     string
	GraphTranslate toolexec.Tool
	Lower          toolexec.Tool
	LLVMTranslate  toolexec.Tool
	LLC            toolexec.Tool
	Clang          toolexec.Tool
	RuntimeLibDir  string
	LinkLibs       []string
}

// DefaultToolchain resolves every tool from lookup (usually os.LookupEnv).
func DefaultToolchain(lookup toolexec.LookupFunc) Toolchain {
	tc := Toolchain{
		Loader:         loader.CUELoader{},
		GraphTranslate: toolexec.Resolve(ToolHugrMLIRTranslate, EnvHugrMLIRTranslate, lookup),
		Lower:          toolexec.Resolve(ToolHugrMLIROpt, EnvHugrMLIROpt, lookup),
		LLVMTranslate:  toolexec.Resolve(ToolMLIRTranslate, EnvMLIRTranslate, lookup),
		LLC:            toolexec.Resolve(ToolLLC, EnvLLC, lookup),
		Clang:          toolexec.Resolve(ToolClang, EnvClang, lookup),
	}
	if lookup != nil {
		if dir, ok := lookup(EnvRuntimeLibs); ok && strings.TrimSpace(dir) != "" {
			tc.RuntimeLibDir = dir
		}
	}
	return tc
}

// Tools lists the external tools in pipeline order.
func (tc Toolchain) Tools() []toolexec.Tool {
	return []toolexec.Tool{tc.GraphTranslate, tc.Lower, tc.LLVMTranslate, tc.LLC, tc.Clang}
}

// Translators returns one translator per adjacent stage pair, in order.
func (tc Toolchain) Translators() []Translator {
	libs := tc.LinkLibs
	if libs == nil && tc.RuntimeLibDir != "" {
		libs = DefaultLinkLibs
	}
	return []Translator{
		&ProgramCompiler{Loader: tc.Loader, ModuleName: tc.ModuleName},
		&GraphTranslator{Tool: tc.GraphTranslate},
		&DialectLowerer{Tool: tc.Lower},
		&LLVMTranslator{Tool: tc.LLVMTranslate},
		&ObjectCompiler{Tool: tc.LLC},
		&Linker{Tool: tc.Clang, RuntimeLibDir: tc.RuntimeLibDir, Libs: libs},
	}
}

// CheckChain verifies that translators cover every adjacent stage pair from
// First to Last exactly once, in order.
func CheckChain(translators []Translator) error {
	if len(translators) != len(stage.All)-1 {
		return fmt.Errorf("expected %d translators, got %d", len(stage.All)-1, len(translators))
	}
	for i, t := range translators {
		in := stage.All[i]
		out, _ := in.Next()
		if t.InputStage() != in || t.OutputStage() != out {
			return fmt.Errorf("translator %d (%s) converts %s to %s, expected %s to %s",
				i, Name(t), t.InputStage(), t.OutputStage(), in, out)
		}
	}
	return nil
}
