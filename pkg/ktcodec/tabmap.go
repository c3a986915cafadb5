package ktcodec

import "fmt"

// EncodeTabMap serializes a map of byte-string key/value pairs as the
// concatenation of (varint klen, varint vlen, key, value). An empty map
// encodes to an empty buffer.
//
// Iteration order is not defined by the format; callers that need
// deterministic output (e.g. tests) should encode a single-entry map or
// sort keys themselves before calling EncodeTabMapOrdered.
//
// Literal vectors (pinned by tests):
//
//	EncodeTabMap({})             == ""
//	EncodeTabMap({"foo":"baze"}) == "\x03\x04foobaze"
func EncodeTabMap(m map[string][]byte) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return EncodeTabMapOrdered(keys, m)
}

// EncodeTabMapOrdered encodes m in the given key order, for callers that
// need deterministic output.
func EncodeTabMapOrdered(order []string, m map[string][]byte) []byte {
	var out []byte
	for _, k := range order {
		v := m[k]
		out = appendVarint(out, len(k))
		out = appendVarint(out, len(v))
		out = append(out, k...)
		out = append(out, v...)
	}
	return out
}

// DecodeTabMap is the inverse of EncodeTabMap. An empty buffer decodes to an
// empty (nil) map.
func DecodeTabMap(buf []byte) (map[string][]byte, error) {
	var out map[string][]byte
	for len(buf) > 0 {
		klen, consumed, ok := readVarint(buf)
		if !ok {
			return nil, fmt.Errorf("ktcodec: truncated varint (key length) in tabmap")
		}
		buf = buf[consumed:]

		vlen, consumed, ok := readVarint(buf)
		if !ok {
			return nil, fmt.Errorf("ktcodec: truncated varint (value length) in tabmap")
		}
		buf = buf[consumed:]

		if klen > len(buf) {
			return nil, fmt.Errorf("ktcodec: tabmap key length %d exceeds remaining buffer %d", klen, len(buf))
		}
		key := string(buf[:klen])
		buf = buf[klen:]

		if vlen > len(buf) {
			return nil, fmt.Errorf("ktcodec: tabmap value length %d exceeds remaining buffer %d", vlen, len(buf))
		}
		value := buf[:vlen:vlen]
		buf = buf[vlen:]

		if out == nil {
			out = make(map[string][]byte)
		}
		out[key] = value
	}
	return out, nil
}
