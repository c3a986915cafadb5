package kbin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendReadU32U64(t *testing.T) {
	var buf []byte
	buf = AppendU32(buf, 0xdeadbeef)
	buf = AppendU64(buf, 0x0102030405060708)
	r := &Reader{Src: buf}
	require.Equal(t, uint32(0xdeadbeef), r.U32())
	require.Equal(t, uint64(0x0102030405060708), r.U64())
	require.NoError(t, r.Complete())
}

func TestReaderStickyError(t *testing.T) {
	r := &Reader{Src: []byte{0x01, 0x02}}
	r.U32() // fails: only 2 bytes available
	require.Error(t, r.Complete())
	require.Equal(t, uint8(0), r.U8()) // further reads are no-ops
	require.Error(t, r.Complete())
}

func TestRecordRoundTrip(t *testing.T) {
	rec := Record{DB: 3, Key: []byte("k1"), Value: []byte("v1"), Expire: -1}
	buf := AppendRecord(nil, rec)
	r := &Reader{Src: buf}
	got := r.ReadRecord()
	require.NoError(t, r.Complete())
	require.Equal(t, rec.DB, got.DB)
	require.Equal(t, rec.Key, got.Key)
	require.Equal(t, rec.Value, got.Value)
	require.Equal(t, rec.Expire, got.Expire)
}

func TestGetBulkLiteralVector(t *testing.T) {
	// spec §8 item 4: a bulk get of ["k1","k2"] in DB 3 is:
	// 0xBA 00000000 00000002 0003 00000002 "k1" 0003 00000002 "k2"
	var buf []byte
	buf = AppendU8(buf, 0xBA)
	buf = AppendU32(buf, 0) // flags
	buf = AppendU32(buf, 2) // n_keys
	buf = AppendKeyEntry(buf, KeyEntry{DB: 3, Key: []byte("k1")})
	buf = AppendKeyEntry(buf, KeyEntry{DB: 3, Key: []byte("k2")})

	want := []byte{
		0xBA,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x02,
		0x00, 0x03, 0x00, 0x00, 0x00, 0x02, 'k', '1',
		0x00, 0x03, 0x00, 0x00, 0x00, 0x02, 'k', '2',
	}
	require.Equal(t, want, buf)
}
