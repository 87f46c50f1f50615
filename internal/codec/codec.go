// Package codec serializes state values with encoding/gob. It is used
// wherever a value has to cross an isolation boundary: the isolated worker
// pool and the monitor stores.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/petrijr/stepflow/pkg/api"
)

func init() {
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// Register makes a concrete type known to the codec. Values stored behind an
// interface (step results, bound arguments) must be registered before they
// can be encoded, exactly as with gob.Register.
func Register(value any) {
	gob.Register(value)
}

// EncodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that values are gob-encodable; see Portable.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer

	// Encode as interface{} so the payload always decodes into interface{}.
	var iv = v
	if err := gob.NewEncoder(&buf).Encode(&iv); err != nil {
		return nil, fmt.Errorf("codec: encode %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// DecodeValue decodes a payload produced by EncodeValue.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var iv any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&iv); err != nil {
		return nil, fmt.Errorf("codec: decode: %w", err)
	}
	return iv, nil
}

// RoundTrip encodes and decodes v, returning a copy that shares no memory
// with the original.
func RoundTrip(v any) (any, error) {
	data, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return DecodeValue(data)
}

// Portable rewrites values gob cannot carry into plain equivalents: errors
// become their message and ScopeFailure records become maps with "step" and
// "error" keys. Slices of any and maps of any are rewritten recursively.
func Portable(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case api.ScopeFailure:
		return map[string]any{"step": t.Step, "error": errString(t.Err)}
	case *api.ScopeFailure:
		if t == nil {
			return nil
		}
		return map[string]any{"step": t.Step, "error": errString(t.Err)}
	case error:
		return t.Error()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Portable(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Portable(e)
		}
		return out
	default:
		return v
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
