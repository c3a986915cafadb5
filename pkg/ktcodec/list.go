package ktcodec

import "fmt"

// EncodeList serializes a list of byte strings as the concatenation of
// (varint length, bytes) pairs. An empty list encodes to an empty buffer.
//
// Literal vectors (pinned by tests):
//
//	EncodeList(["foo","baze","nugget","bar"]) == "\x03foo\x04baze\x06nugget\x03bar"
//	EncodeList(["","foo",""])                 == "\x00\x03foo\x00"
func EncodeList(items [][]byte) []byte {
	var out []byte
	for _, item := range items {
		out = appendVarint(out, len(item))
		out = append(out, item...)
	}
	return out
}

// DecodeList is the inverse of EncodeList. It reads varints until the
// buffer is exhausted; an empty buffer decodes to an empty (nil) list.
func DecodeList(buf []byte) ([][]byte, error) {
	var out [][]byte
	for len(buf) > 0 {
		n, consumed, ok := readVarint(buf)
		if !ok {
			return nil, fmt.Errorf("ktcodec: truncated varint in list")
		}
		buf = buf[consumed:]
		if n > len(buf) {
			return nil, fmt.Errorf("ktcodec: list element length %d exceeds remaining buffer %d", n, len(buf))
		}
		out = append(out, buf[:n:n])
		buf = buf[n:]
	}
	return out, nil
}
