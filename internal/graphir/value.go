package graphir

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the value types a graph document may hold.
// There is no float type: graph documents must encode identically everywhere.
type Value interface {
	graphValue()
}

// String is a string value.
type String string

// Int is an integer value.
type Int int64

// Bool is a boolean value.
type Bool bool

// Array is an ordered list of values.
type Array []Value

// Object is a string-keyed map. Iterate with SortedKeys for stable output.
type Object map[string]Value

func (String) graphValue() {}
func (Int) graphValue()    {}
func (Bool) graphValue()   {}
func (Array) graphValue()  {}
func (Object) graphValue() {}

// SortedKeys returns the keys in RFC 8785 order (UTF-16 code units).
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units. Plain string comparison
// orders by UTF-8 bytes, which differs for characters above U+FFFF.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
