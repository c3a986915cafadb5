// Package ktcodec implements the pluggable value-serialization pipeline
// (binary, json, msgpack, pickle-equivalent, none, table) plus the
// tab-separated "map" and length-prefixed "list" in-value formats used by
// server-side scripts and table records.
package ktcodec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Name identifies one of the recognized serializers.
type Name string

const (
	Binary  Name = "binary"
	JSON    Name = "json"
	Msgpack Name = "msgpack"
	None    Name = "none"
	Pickle  Name = "pickle"
	Table   Name = "table"
)

// Codec encodes and decodes application values to and from the wire byte
// representation used for a Record's value. Implementations are stateless
// and safe for concurrent use, matching the immutable-after-construction
// requirement on the Client's codec.
type Codec interface {
	Name() Name
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// New constructs the Codec for name. An unrecognized name is a
// configuration error.
func New(name Name) (Codec, error) {
	switch name {
	case Binary, "":
		return binaryCodec{}, nil
	case JSON:
		return jsonCodec{}, nil
	case Msgpack:
		return msgpackCodec{}, nil
	case None:
		return noneCodec{}, nil
	case Pickle:
		return pickleCodec{}, nil
	case Table:
		return tableCodec{}, nil
	default:
		return nil, fmt.Errorf("ktcodec: unrecognized serializer %q - use one of: binary, json, msgpack, none, pickle, table", name)
	}
}

// binaryCodec UTF-8 encodes text, passes bytes through unchanged, and turns
// a nil value into an empty byte string. Decoding prefers UTF-8 text,
// falling back to the raw bytes when decoding fails.
type binaryCodec struct{}

func (binaryCodec) Name() Name { return Binary }

func (binaryCodec) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("ktcodec: binary serializer cannot encode %T", v)
	}
}

func (binaryCodec) Decode(b []byte) (any, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	return b, nil
}

// jsonCodec encodes/decodes minified UTF-8 JSON.
type jsonCodec struct{}

func (jsonCodec) Name() Name { return JSON }

func (jsonCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Decode(b []byte) (any, error) {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// msgpackCodec uses the binary-type-preserving variant (the msgpack library
// defaults to use_bin_type semantics), chosen per spec's open question for
// round-trip correctness of raw byte strings.
type msgpackCodec struct{}

func (msgpackCodec) Name() Name { return Msgpack }

func (msgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Decode(b []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// noneCodec passes bytes through unchanged; strings are UTF-8 encoded.
type noneCodec struct{}

func (noneCodec) Name() Name { return None }

func (noneCodec) Encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, fmt.Errorf("ktcodec: none serializer cannot encode %T", v)
	}
}

func (noneCodec) Decode(b []byte) (any, error) {
	return b, nil
}

func init() {
	// gob requires every concrete type that will ever appear boxed in an
	// interface{} to be registered up front. pickle has no such
	// restriction, so we register the handful of JSON-ish primitives and
	// containers callers realistically pass through this codec.
	for _, v := range []any{
		"", 0, int64(0), float64(0), false, []byte(nil),
		[]any(nil), map[string]any(nil),
	} {
		gob.Register(v)
	}
}

// pickleCodec realizes the "pickle at highest protocol" contract with
// encoding/gob, the closest Go-native equivalent to an arbitrary
// object-graph serializer (see DESIGN.md for why this stays on stdlib
// rather than reaching for an ecosystem library).
type pickleCodec struct{}

func (pickleCodec) Name() Name { return Pickle }

func (pickleCodec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (pickleCodec) Decode(b []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// tableCodec composes the TabMap byte format with a pass-through byte
// layer: it encodes a map-of-text into TabMap bytes, and is the codec
// backing typed "table" records (model.Schema layers on top of this).
type tableCodec struct{}

func (tableCodec) Name() Name { return Table }

func (tableCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(map[string]string)
	if !ok {
		return nil, fmt.Errorf("ktcodec: table serializer requires map[string]string, got %T", v)
	}
	bm := make(map[string][]byte, len(m))
	for k, val := range m {
		bm[k] = []byte(val)
	}
	return EncodeTabMap(bm), nil
}

func (tableCodec) Decode(b []byte) (any, error) {
	bm, err := DecodeTabMap(b)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(bm))
	for k, v := range bm {
		m[k] = string(v)
	}
	return m, nil
}
