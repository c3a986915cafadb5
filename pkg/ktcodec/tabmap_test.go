package ktcodec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeTabMapLiteralVectors(t *testing.T) {
	require.Equal(t, []byte(nil), EncodeTabMap(map[string][]byte{}))
	require.Equal(t, []byte("\x03\x04foobaze"),
		EncodeTabMap(map[string][]byte{"foo": []byte("baze")}))
}

func TestTabMapRoundTrip(t *testing.T) {
	m := map[string][]byte{
		"foo":   []byte("baze"),
		"":      []byte(""),
		"empty": []byte(""),
		"bin":   {0x00, 0x01, 0xff},
	}
	enc := EncodeTabMap(m)
	dec, err := DecodeTabMap(enc)
	require.NoError(t, err)
	require.Equal(t, len(m), len(dec))
	for k, v := range m {
		require.Equal(t, v, dec[k])
	}
}

func TestTabMapEmptyRoundTrip(t *testing.T) {
	dec, err := DecodeTabMap(nil)
	require.NoError(t, err)
	require.Nil(t, dec)
}

func TestDecodeTabMapTruncated(t *testing.T) {
	_, err := DecodeTabMap([]byte{0x03, 0x04, 'f', 'o', 'o'})
	require.Error(t, err)
}
