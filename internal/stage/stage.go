package stage

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Stage is a named point in the compilation sequence.
type Stage int

const (
	// Source is the input program.
	Source Stage = iota
	// GraphIR is the dataflow graph produced by the program loader.
	GraphIR
	// DialectIR is the graph lowered into its high level MLIR dialect.
	DialectIR
	// LoweredIR is MLIR in the llvm dialect.
	LoweredIR
	// LowLevelIR is LLVM IR.
	LowLevelIR
	// Object is native object code.
	Object
	// Executable is a linked program.
	Executable
)

// All lists every stage in pipeline order.
var All = []Stage{Source, GraphIR, DialectIR, LoweredIR, LowLevelIR, Object, Executable}

// First and Last bound the pipeline.
const (
	First = Source
	Last  = Executable
)

type stageInfo struct {
	name       string
	defaultEnc Encoding
	suffixes   map[Encoding]string // canonical suffix per supported encoding
	exts       map[string]Encoding // recognized extensions
}

var stageTable = map[Stage]stageInfo{
	Source: {
		name:       "source",
		defaultEnc: Textual,
		suffixes:   map[Encoding]string{Textual: ".cue"},
		exts:       map[string]Encoding{".cue": Textual},
	},
	GraphIR: {
		name:       "graph-ir",
		defaultEnc: Textual,
		suffixes:   map[Encoding]string{Textual: ".json", Binary: ".msgpack"},
		exts:       map[string]Encoding{".json": Textual, ".msgpack": Binary},
	},
	DialectIR: {
		name:       "dialect-ir",
		defaultEnc: Textual,
		suffixes:   map[Encoding]string{Textual: ".mlir", Binary: ".mlirbc"},
		exts:       map[string]Encoding{".mlir": Textual, ".mlirbc": Binary},
	},
	LoweredIR: {
		name:       "lowered-ir",
		defaultEnc: Textual,
		suffixes:   map[Encoding]string{Textual: ".mlir", Binary: ".mlirbc"},
		exts:       map[string]Encoding{".mlir": Textual, ".mlirbc": Binary},
	},
	LowLevelIR: {
		name:       "llvm-ir",
		defaultEnc: Textual,
		suffixes:   map[Encoding]string{Textual: ".ll", Binary: ".bc"},
		exts:       map[string]Encoding{".ll": Textual, ".bc": Binary},
	},
	Object: {
		name:       "object",
		defaultEnc: Binary,
		suffixes:   map[Encoding]string{Binary: ".o"},
		exts:       map[string]Encoding{".o": Binary, ".obj": Binary},
	},
	Executable: {
		name:       "executable",
		defaultEnc: Binary,
		suffixes:   map[Encoding]string{Binary: ".out"},
		exts:       map[string]Encoding{".out": Binary, ".exe": Binary, "": Binary},
	},
}

// String returns the stage name used in flags, logs and error messages.
func (s Stage) String() string {
	if info, ok := stageTable[s]; ok {
		return info.name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	_, ok := stageTable[s]
	return ok
}

// Next returns the stage immediately after s.
// The second result is false for Executable and invalid stages.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s == Last {
		return s, false
	}
	return s + 1, true
}

// DefaultEncoding returns the encoding used when nothing better is known.
func (s Stage) DefaultEncoding() Encoding {
	return stageTable[s].defaultEnc
}

// Encodings returns the encodings the stage can be stored in, binary first.
func (s Stage) Encodings() []Encoding {
	var encs []Encoding
	for _, e := range []Encoding{Binary, Textual} {
		if s.Supports(e) {
			encs = append(encs, e)
		}
	}
	return encs
}

// Supports reports whether artifacts of stage s may use encoding e.
func (s Stage) Supports(e Encoding) bool {
	_, ok := stageTable[s].suffixes[e]
	return ok
}

// CheckEncoding returns an UnsupportedEncodingError if s cannot use e.
func (s Stage) CheckEncoding(e Encoding) error {
	if !s.Supports(e) {
		return &UnsupportedEncodingError{Stage: s, Encoding: e}
	}
	return nil
}

// Extensions returns the recognized file extensions of the stage, sorted.
func (s Stage) Extensions() []string {
	info := stageTable[s]
	exts := make([]string, 0, len(info.exts))
	for ext := range info.exts {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// CanonicalSuffix returns the file suffix used when an artifact of stage s in
// encoding e has to be written to a temporary file.
func CanonicalSuffix(s Stage, e Encoding) (string, error) {
	suffix, ok := stageTable[s].suffixes[e]
	if !ok {
		return "", &UnsupportedEncodingError{Stage: s, Encoding: e}
	}
	return suffix, nil
}

// InferEncoding derives the encoding of a file name or bare extension for
// stage s. It returns Unknown when the extension is not listed for s.
func InferEncoding(s Stage, nameOrExt string) Encoding {
	ext := strings.ToLower(filepath.Ext(nameOrExt))
	if enc, ok := stageTable[s].exts[ext]; ok {
		return enc
	}
	return Unknown
}

// InferEncodingFromPayload guesses an encoding from the Go type of an
// in-memory value: strings are textual, byte slices binary. Anything else is
// Unknown. This is a low-confidence fallback; prefer explicit encodings.
func InferEncodingFromPayload(v any) Encoding {
	switch v.(type) {
	case string:
		return Textual
	case []byte:
		return Binary
	default:
		return Unknown
	}
}

// InferStage guesses the stage of a file from its extension. Extensions shared
// by several stages resolve to the earliest one. The second result is false
// when no stage lists the extension.
func InferStage(name string) (Stage, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Source, false
	}
	for _, s := range All {
		if _, ok := stageTable[s].exts[ext]; ok {
			return s, true
		}
	}
	return Source, false
}

// Parse converts a stage name into a Stage.
func Parse(name string) (Stage, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	for _, s := range All {
		if stageTable[s].name == normalized {
			return s, nil
		}
	}
	return Source, fmt.Errorf("unknown stage %q: must be one of %v", name, Names())
}

// Names returns the names of all stages in order.
func Names() []string {
	names := make([]string, len(All))
	for i, s := range All {
		names[i] = s.String()
	}
	return names
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
