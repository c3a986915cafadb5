package ktcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name Name
		val  any
	}{
		{Binary, "hello"},
		{JSON, map[string]any{"a": float64(1), "b": "two"}},
		{Msgpack, "hello-msgpack"},
		{None, []byte("raw")},
		{Pickle, []any{"x", int64(1), 2.5}},
		{Table, map[string]string{"name": "huey", "type": "cat"}},
	}
	for _, c := range cases {
		codec, err := New(c.name)
		require.NoError(t, err)
		enc, err := codec.Encode(c.val)
		require.NoError(t, err)
		dec, err := codec.Decode(enc)
		require.NoError(t, err)
		require.Equal(t, c.val, dec)
	}
}

func TestCodecUnknownSerializer(t *testing.T) {
	_, err := New("bogus")
	require.Error(t, err)
}

func TestBinaryCodecFallsBackToRawBytesOnInvalidUTF8(t *testing.T) {
	codec, _ := New(Binary)
	raw := []byte{0xff, 0xfe, 0x00}
	dec, err := codec.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, raw, dec)
}

func TestBinaryCodecNilEncodesEmpty(t *testing.T) {
	codec, _ := New(Binary)
	enc, err := codec.Encode(nil)
	require.NoError(t, err)
	require.Empty(t, enc)
}
