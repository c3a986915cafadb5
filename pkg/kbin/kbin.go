// Package kbin implements the bit-exact big-endian framing primitives shared
// by both binary wire protocols: fixed-width integers, length-prefixed
// blobs, and the record-triple layout used in bulk requests.
package kbin

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrNotEnoughData is returned by Reader methods once the source is
// exhausted; it is also surfaced by Complete when the Reader ran dry before
// all expected fields were consumed.
var ErrNotEnoughData = errors.New("kbin: not enough data to read this field")

// AppendU8 appends a single byte.
func AppendU8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

// AppendU32 appends a big-endian uint32.
func AppendU32(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendU64 appends a big-endian uint64.
func AppendU64(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// AppendI64 appends a big-endian int64.
func AppendI64(dst []byte, v int64) []byte {
	return AppendU64(dst, uint64(v))
}

// AppendI32 appends a big-endian int32.
func AppendI32(dst []byte, v int32) []byte {
	return AppendU32(dst, uint32(v))
}

// AppendBlob appends a u32-length-prefixed byte string.
func AppendBlob(dst []byte, b []byte) []byte {
	dst = AppendU32(dst, uint32(len(b)))
	return append(dst, b...)
}

// Reader reads big-endian primitives out of Src, accumulating the first
// error seen. Once an error has occurred, further reads are no-ops that
// return zero values; callers check the sticky error once via Complete.
//
// This mirrors franz-go's pkg/kbin.Reader: wire parsing in both server
// protocols is a long sequence of small fixed reads, and checking an error
// after every single one is the kind of repetition a sticky-error reader
// exists to avoid.
type Reader struct {
	Src []byte
	err error
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error { return r.err }

// Complete returns the sticky error, or ErrNotEnoughData if the reader was
// asked to consume more than Src contained at any point and no other error
// was recorded.
func (r *Reader) Complete() error {
	return r.err
}

func (r *Reader) fail() {
	if r.err == nil {
		r.err = ErrNotEnoughData
	}
}

// U8 reads one byte.
func (r *Reader) U8() uint8 {
	if r.err != nil || len(r.Src) < 1 {
		r.fail()
		return 0
	}
	v := r.Src[0]
	r.Src = r.Src[1:]
	return v
}

// U32 reads a big-endian uint32.
func (r *Reader) U32() uint32 {
	if r.err != nil || len(r.Src) < 4 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint32(r.Src)
	r.Src = r.Src[4:]
	return v
}

// U64 reads a big-endian uint64.
func (r *Reader) U64() uint64 {
	if r.err != nil || len(r.Src) < 8 {
		r.fail()
		return 0
	}
	v := binary.BigEndian.Uint64(r.Src)
	r.Src = r.Src[8:]
	return v
}

// I64 reads a big-endian int64.
func (r *Reader) I64() int64 { return int64(r.U64()) }

// I32 reads a big-endian int32.
func (r *Reader) I32() int32 { return int32(r.U32()) }

// Bytes reads n raw bytes.
func (r *Reader) Bytes(n int) []byte {
	if r.err != nil || n < 0 || len(r.Src) < n {
		r.fail()
		return nil
	}
	v := r.Src[:n]
	r.Src = r.Src[n:]
	return v
}

// Blob reads a u32-length-prefixed byte string.
func (r *Reader) Blob() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}
	return r.Bytes(int(n))
}

// ReadExact reads exactly n bytes from rd into a new slice, returning
// ErrNotEnoughData (wrapping the underlying error) on a short read. Framing
// never short-reads: a caller seeing this error must treat the connection
// as dead.
func ReadExact(rd io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, errors.Join(ErrNotEnoughData, err)
	}
	return buf, nil
}

// Record is the (db, key, value, expire) triple used in bulk binary-A
// requests: u16 db ∥ u32 klen ∥ u32 vlen ∥ i64 xt ∥ key ∥ value.
type Record struct {
	DB     uint16
	Key    []byte
	Value  []byte
	Expire int64 // negative means "no expiry override"
}

// AppendRecord appends a Record in the bulk request layout.
func AppendRecord(dst []byte, rec Record) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], rec.DB)
	dst = append(dst, buf[:]...)
	dst = AppendU32(dst, uint32(len(rec.Key)))
	dst = AppendU32(dst, uint32(len(rec.Value)))
	dst = AppendI64(dst, rec.Expire)
	dst = append(dst, rec.Key...)
	dst = append(dst, rec.Value...)
	return dst
}

// ReadRecord reads a Record in the bulk response layout.
func (r *Reader) ReadRecord() Record {
	if r.err != nil || len(r.Src) < 2 {
		r.fail()
		return Record{}
	}
	db := binary.BigEndian.Uint16(r.Src)
	r.Src = r.Src[2:]
	klen := r.U32()
	vlen := r.U32()
	xt := r.I64()
	if r.err != nil {
		return Record{}
	}
	key := r.Bytes(int(klen))
	value := r.Bytes(int(vlen))
	return Record{DB: db, Key: key, Value: value, Expire: xt}
}

// KeyEntry is the (db, key) pair used in bulk get/remove requests.
type KeyEntry struct {
	DB  uint16
	Key []byte
}

// AppendKeyEntry appends a KeyEntry: u16 db ∥ u32 klen ∥ key.
func AppendKeyEntry(dst []byte, ke KeyEntry) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], ke.DB)
	dst = append(dst, buf[:]...)
	dst = AppendU32(dst, uint32(len(ke.Key)))
	dst = append(dst, ke.Key...)
	return dst
}
