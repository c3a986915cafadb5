package ktcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bl(ss ...string) [][]byte {
	if len(ss) == 0 {
		return nil
	}
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func TestEncodeListLiteralVectors(t *testing.T) {
	require.Equal(t, []byte("\x03foo\x04baze\x06nugget\x03bar"),
		EncodeList(bl("foo", "baze", "nugget", "bar")))
	require.Equal(t, []byte("\x00\x03foo\x00"),
		EncodeList(bl("", "foo", "")))
	require.Equal(t, []byte(nil), EncodeList(nil))
}

func TestListRoundTrip(t *testing.T) {
	cases := [][]string{
		nil,
		{""},
		{"a", "bb", "ccc"},
		{"", "foo", ""},
		{"nugget"},
	}
	for _, c := range cases {
		enc := EncodeList(bl(c...))
		dec, err := DecodeList(enc)
		require.NoError(t, err)
		require.Equal(t, bl(c...), dec)
	}
}

func TestDecodeListTruncated(t *testing.T) {
	_, err := DecodeList([]byte{0x05, 'a', 'b'})
	require.Error(t, err)
}
