package graphir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tinylib/msgp/msgp"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/stagerun/internal/artifact"
	"github.com/roach88/stagerun/internal/stage"
)

// Encode serializes g. Textual produces canonical JSON, Binary MessagePack.
func Encode(g *Graph, enc stage.Encoding) ([]byte, error) {
	if err := stage.GraphIR.CheckEncoding(enc); err != nil {
		return nil, err
	}
	v := g.Value()
	if enc == stage.Binary {
		return appendMsgpack(nil, v)
	}
	return MarshalCanonical(v)
}

// Decode parses a graph in the given encoding and validates it. Malformed
// payloads are reported as a *DecodeError.
func Decode(data []byte, enc stage.Encoding) (*Graph, error) {
	if err := stage.GraphIR.CheckEncoding(enc); err != nil {
		return nil, err
	}
	var raw any
	var err error
	if enc == stage.Binary {
		raw, err = readMsgpack(data)
	} else {
		raw, err = readJSON(data)
	}
	if err != nil {
		return nil, &DecodeError{Encoding: enc, Err: err}
	}
	g, err := graphFromAny(raw)
	if err != nil {
		return nil, &DecodeError{Encoding: enc, Err: fmt.Errorf("decoding graph: %w", err)}
	}
	if err := g.Validate(); err != nil {
		return nil, &DecodeError{Encoding: enc, Err: fmt.Errorf("invalid graph: %w", err)}
	}
	return g, nil
}

// Load decodes the payload of a graph IR artifact. A decode failure carries
// the artifact's path.
func Load(h *artifact.Handle) (*Graph, error) {
	if h.Stage() != stage.GraphIR {
		return nil, &stage.InvalidStageError{Got: h.Stage(), Expected: stage.GraphIR}
	}
	data, err := h.Payload()
	if err != nil {
		return nil, err
	}
	g, err := Decode(data, h.Encoding())
	var de *DecodeError
	if errors.As(err, &de) {
		de.Path = h.Path()
	}
	return g, err
}

// appendMsgpack writes v with map keys in the same order as the canonical
// JSON form, so equal graphs always produce equal bytes.
func appendMsgpack(b []byte, v Value) ([]byte, error) {
	var err error
	switch val := v.(type) {
	case String:
		return msgp.AppendString(b, norm.NFC.String(string(val))), nil
	case Int:
		return msgp.AppendInt64(b, int64(val)), nil
	case Bool:
		return msgp.AppendBool(b, bool(val)), nil
	case Array:
		b = msgp.AppendArrayHeader(b, uint32(len(val)))
		for i, elem := range val {
			if b, err = appendMsgpack(b, elem); err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		return b, nil
	case Object:
		b = msgp.AppendMapHeader(b, uint32(len(val)))
		for _, k := range val.SortedKeys() {
			b = msgp.AppendString(b, norm.NFC.String(k))
			if b, err = appendMsgpack(b, val[k]); err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported type for msgpack: %T", v)
	}
}

func readMsgpack(data []byte) (any, error) {
	raw, rest, err := msgp.ReadIntfBytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding graph msgpack: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("decoding graph msgpack: %d trailing bytes", len(rest))
	}
	return raw, nil
}

func readJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding graph json: %w", err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding graph json: trailing data after document")
	}
	return raw, nil
}

func graphFromAny(raw any) (*Graph, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document must be an object, got %T", raw)
	}
	g := &Graph{}
	var err error
	if g.Version, err = str(doc, "version"); err != nil {
		return nil, err
	}
	if g.Name, err = str(doc, "name"); err != nil {
		return nil, err
	}
	nodes, err := list(doc, "nodes")
	if err != nil {
		return nil, err
	}
	for i, rn := range nodes {
		n, err := nodeFromAny(rn)
		if err != nil {
			return nil, fmt.Errorf("nodes[%d]: %w", i, err)
		}
		g.Nodes = append(g.Nodes, n)
	}
	edges, err := list(doc, "edges")
	if err != nil {
		return nil, err
	}
	for i, re := range edges {
		m, ok := re.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("edges[%d]: must be an object", i)
		}
		var e Edge
		if e.Src, err = integer(m, "src"); err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		if e.Dst, err = integer(m, "dst"); err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		if e.Kind, err = str(m, "kind"); err != nil {
			return nil, fmt.Errorf("edges[%d]: %w", i, err)
		}
		g.Edges = append(g.Edges, e)
	}
	return g, nil
}

func nodeFromAny(raw any) (Node, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Node{}, fmt.Errorf("must be an object")
	}
	var n Node
	var err error
	if n.ID, err = integer(m, "id"); err != nil {
		return n, err
	}
	if n.Op, err = str(m, "op"); err != nil {
		return n, err
	}
	if n.Name, err = str(m, "name"); err != nil {
		return n, err
	}
	if n.Returns, err = str(m, "returns"); err != nil {
		return n, err
	}
	params, err := list(m, "params")
	if err != nil {
		return n, err
	}
	for i, rp := range params {
		pm, ok := rp.(map[string]any)
		if !ok {
			return n, fmt.Errorf("params[%d]: must be an object", i)
		}
		var p Param
		if p.Name, err = str(pm, "name"); err != nil {
			return n, fmt.Errorf("params[%d]: %w", i, err)
		}
		if p.Type, err = str(pm, "type"); err != nil {
			return n, fmt.Errorf("params[%d]: %w", i, err)
		}
		n.Params = append(n.Params, p)
	}
	return n, nil
}

func str(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string, got %T", key, v)
	}
	return s, nil
}

func integer(m map[string]any, key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing field %q", key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("field %q overflows int64", key)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("field %q must be an integer: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("field %q must be an integer, got %T", key, v)
	}
}

func list(m map[string]any, key string) ([]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("missing field %q", key)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be an array, got %T", key, v)
	}
	return l, nil
}
