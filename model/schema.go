package model

import (
	"fmt"
	"strconv"

	"github.com/coleifer/kt/pkg/ktcodec"
)

// Schema is a named, ordered list of Fields describing one table-database
// record shape. It knows only how to (de)serialize a record's columns
// through the TabMap wire format and how to look up its own Fields by wire
// name; it does not build queries itself, and it does not construct Go
// types at runtime the way the original's metaclass-driven models did.
type Schema struct {
	Name   string
	Fields []Field
}

// NewSchema returns a Schema named name over fields, in the given order.
func NewSchema(name string, fields ...Field) *Schema {
	return &Schema{Name: name, Fields: fields}
}

// Field looks up one of the schema's fields by wire name, or returns
// (nil, false) if it isn't part of the schema.
func (s *Schema) Field(wireName string) (Field, bool) {
	for _, f := range s.Fields {
		if f.WireName() == wireName {
			return f, true
		}
	}
	return nil, false
}

// Encode serializes record's columns (by wire name) into TabMap bytes.
// Keys in record that aren't part of the schema are encoded as-is; this
// mirrors the sibling server's table database, which tolerates
// unindexed/unknown columns on a record.
func (s *Schema) Encode(record map[string]any) ([]byte, error) {
	bm := make(map[string][]byte, len(record))
	for k, v := range record {
		b, err := encodeColumn(v)
		if err != nil {
			return nil, fmt.Errorf("model: column %q: %w", k, err)
		}
		bm[k] = b
	}
	return ktcodec.EncodeTabMap(bm), nil
}

// Decode parses TabMap bytes into a column map. Every value comes back as
// a string; callers expecting a numeric Field convert with ParseInt/
// ParseFloat themselves, the same way the wire format carries numbers as
// decimal text.
func (s *Schema) Decode(b []byte) (map[string]any, error) {
	bm, err := ktcodec.DecodeTabMap(b)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(bm))
	for k, v := range bm {
		out[k] = string(v)
	}
	return out, nil
}

func encodeColumn(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	case int:
		return []byte(strconv.Itoa(t)), nil
	case int64:
		return []byte(strconv.FormatInt(t, 10)), nil
	case float64:
		return []byte(strconv.FormatFloat(t, 'g', -1, 64)), nil
	case bool:
		if t {
			return []byte("1"), nil
		}
		return []byte("0"), nil
	default:
		return nil, fmt.Errorf("unsupported column type %T", v)
	}
}
