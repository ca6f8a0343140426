package stage

import (
	"fmt"
	"strings"
)

// Encoding is the storage format of an artifact.
type Encoding int

const (
	// Unknown means the encoding could not be inferred. Callers fall back
	// to an explicit encoding or the stage default.
	Unknown Encoding = iota
	// Binary is opaque byte data (bitcode, MessagePack, object code).
	Binary
	// Textual is human-readable UTF-8 text.
	Textual
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case Binary:
		return "binary"
	case Textual:
		return "textual"
	default:
		return "unknown"
	}
}

// IsText reports whether the encoding is Textual.
func (e Encoding) IsText() bool {
	return e == Textual
}

// Or returns e, or fallback when e is Unknown.
func (e Encoding) Or(fallback Encoding) Encoding {
	if e == Unknown {
		return fallback
	}
	return e
}

// ParseEncoding converts an encoding name into an Encoding.
// "text" and "bitcode" are accepted as aliases.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "binary", "bitcode", "bin":
		return Binary, nil
	case "textual", "text":
		return Textual, nil
	default:
		return Unknown, fmt.Errorf("unknown encoding %q: must be binary or textual", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (e Encoding) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Encoding) UnmarshalText(text []byte) error {
	parsed, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
