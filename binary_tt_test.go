package kt

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeConnection wires a Connection to one end of an in-memory net.Pipe,
// with a goroutine driving the other end to stand in for the server.
func pipeConnection(t *testing.T, serve func(net.Conn)) (*Connection, func()) {
	t.Helper()
	client, server := net.Pipe()
	go serve(server)
	conn := &Connection{conn: client, addr: "pipe", timeout: 5 * time.Second, lastUsed: time.Now()}
	return conn, func() { client.Close(); server.Close() }
}

func TestTTPutAndGet(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		// put request: 0xC8 0x10 <blob key><blob value>
		hdr := make([]byte, 2)
		io_ReadFull(t, s, hdr)
		require.Equal(t, ttMagic, hdr[0])
		require.Equal(t, opTTPut, hdr[1])
		readTTBlob(t, s) // key
		readTTBlob(t, s) // value
		s.Write([]byte{0x00}) // status OK

		// get request: 0xC8 0x30 <blob key>
		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTGet, hdr[1])
		readTTBlob(t, s)
		s.Write([]byte{0x00})
		writeTTBlob(s, []byte("bar"))
	})
	defer closeFn()

	ok, err := ttPut(conn, opTTPut, []byte("foo"), []byte("bar"))
	require.NoError(t, err)
	require.True(t, ok)

	val, found, err := ttGet(conn, []byte("foo"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("bar"), val)
}

func TestTTGetMissingIsLogicalFailure(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		hdr := make([]byte, 2)
		io_ReadFull(t, s, hdr)
		readTTBlob(t, s)
		s.Write([]byte{0x01}) // nonzero status: no record
	})
	defer closeFn()

	val, found, err := ttGet(conn, []byte("missing"))
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, val)
}

func TestTTAddInt(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		hdr := make([]byte, 2)
		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTAddInt, hdr[1])
		readTTBlob(t, s)
		io_ReadFull(t, s, make([]byte, 4)) // delta
		s.Write([]byte{0x00})
		var buf [4]byte
		buf[3] = 15
		s.Write(buf[:])
	})
	defer closeFn()

	n, err := ttAddInt(conn, []byte("counter"), 5)
	require.NoError(t, err)
	require.Equal(t, int32(15), n)
}

func TestTTMiscSearchKeyList(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		hdr := make([]byte, 2)
		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTMisc, hdr[1])
		io_ReadFull(t, s, make([]byte, 12)) // name_len, opts, n_args
		io_ReadFull(t, s, make([]byte, len("search")))
		readTTBlob(t, s) // the one cmd blob ("addcond...")

		writeU32(s, 0) // result code
		writeU32(s, 2) // n_items
		writeTTBlob(s, []byte("huey"))
		writeTTBlob(s, []byte("zaizee"))
	})
	defer closeFn()

	code, items, err := ttMisc(conn, "search", 0, [][]byte{[]byte("addcond\x00type\x000\x00cat")})
	require.NoError(t, err)
	require.Equal(t, uint32(0), code)
	require.Equal(t, [][]byte{[]byte("huey"), []byte("zaizee")}, items)
}

func TestTTIterInitAndNext(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		hdr := make([]byte, 2)
		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTIterInit, hdr[1])
		s.Write([]byte{0x00})

		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTIterNext, hdr[1])
		s.Write([]byte{0x00})
		writeTTBlob(s, []byte("huey"))
		writeTTBlob(s, []byte("cat"))

		io_ReadFull(t, s, hdr)
		require.Equal(t, opTTIterNext, hdr[1])
		s.Write([]byte{0x01}) // exhausted
	})
	defer closeFn()

	require.NoError(t, ttIterInit(conn))

	key, val, ok, err := ttIterNext(conn)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("huey"), key)
	require.Equal(t, []byte("cat"), val)

	_, _, ok, err = ttIterNext(conn)
	require.NoError(t, err)
	require.False(t, ok)
}

// readTTMiscRequest reads a misc request (0xC8 0x90 ∥ ...) and returns its
// command name and argument blobs.
func readTTMiscRequest(t *testing.T, s net.Conn) (string, [][]byte) {
	t.Helper()
	hdr := make([]byte, 2)
	io_ReadFull(t, s, hdr)
	require.Equal(t, ttMagic, hdr[0])
	require.Equal(t, opTTMisc, hdr[1])
	lenBuf := make([]byte, 12)
	io_ReadFull(t, s, lenBuf)
	nameLen := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	nArgs := int(lenBuf[8])<<24 | int(lenBuf[9])<<16 | int(lenBuf[10])<<8 | int(lenBuf[11])
	name := make([]byte, nameLen)
	io_ReadFull(t, s, name)
	args := make([][]byte, nArgs)
	for i := range args {
		args[i] = readTTBlob(t, s)
	}
	return string(name), args
}

func writeTTMiscReply(s net.Conn, code uint32, items [][]byte) {
	writeU32(s, code)
	writeU32(s, uint32(len(items)))
	for _, item := range items {
		writeTTBlob(s, item)
	}
}

func TestTTMiscPutListAlwaysSucceeds(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		name, args := readTTMiscRequest(t, s)
		require.Equal(t, "putlist", name)
		require.Equal(t, [][]byte{[]byte("k1"), []byte("v1")}, args)
		writeTTMiscReply(s, 0, nil)
	})
	defer closeFn()

	err := ttMiscPutList(conn, []ttPair{{Key: []byte("k1"), Value: []byte("v1")}})
	require.NoError(t, err)
}

func TestTTMiscOutListAlwaysSucceeds(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		name, args := readTTMiscRequest(t, s)
		require.Equal(t, "outlist", name)
		require.Equal(t, [][]byte{[]byte("k1"), []byte("k2")}, args)
		writeTTMiscReply(s, 0, nil)
	})
	defer closeFn()

	err := ttMiscOutList(conn, [][]byte{[]byte("k1"), []byte("k2")})
	require.NoError(t, err)
}

func TestTTMiscGetListParsesFlatPairs(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		name, args := readTTMiscRequest(t, s)
		require.Equal(t, "getlist", name)
		require.Equal(t, [][]byte{[]byte("k1"), []byte("k2")}, args)
		writeTTMiscReply(s, 0, [][]byte{[]byte("k1"), []byte("v1")})
	})
	defer closeFn()

	pairs, err := ttMiscGetList(conn, [][]byte{[]byte("k1"), []byte("k2")})
	require.NoError(t, err)
	require.Equal(t, []ttPair{{Key: []byte("k1"), Value: []byte("v1")}}, pairs)
}

func TestTTMiscGetListOddCountIsProtocolError(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		_, _ = readTTMiscRequest(t, s)
		writeTTMiscReply(s, 0, [][]byte{[]byte("k1")})
	})
	defer closeFn()

	_, err := ttMiscGetList(conn, [][]byte{[]byte("k1")})
	require.Error(t, err)
}

func TestTTMiscGetRangeWithStop(t *testing.T) {
	conn, closeFn := pipeConnection(t, func(s net.Conn) {
		name, args := readTTMiscRequest(t, s)
		require.Equal(t, "range", name)
		require.Equal(t, [][]byte{[]byte("k09"), []byte("0"), []byte("k12")}, args)
		writeTTMiscReply(s, 0, [][]byte{
			[]byte("k09"), []byte("v9"),
			[]byte("k10"), []byte("v10"),
			[]byte("k11"), []byte("v11"),
		})
	})
	defer closeFn()

	stop := "k12"
	pairs, err := ttMiscGetRange(conn, "k09", &stop, 0)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
}

// --- small test-only wire helpers ----------------------------------------

func io_ReadFull(t *testing.T, c net.Conn, buf []byte) {
	t.Helper()
	if len(buf) == 0 {
		return
	}
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		require.NoError(t, err)
		n += m
	}
}

func readTTBlob(t *testing.T, c net.Conn) []byte {
	t.Helper()
	lenBuf := make([]byte, 4)
	io_ReadFull(t, c, lenBuf)
	n := int(lenBuf[0])<<24 | int(lenBuf[1])<<16 | int(lenBuf[2])<<8 | int(lenBuf[3])
	body := make([]byte, n)
	io_ReadFull(t, c, body)
	return body
}

func writeTTBlob(c net.Conn, b []byte) {
	var lenBuf [4]byte
	n := uint32(len(b))
	lenBuf[0] = byte(n >> 24)
	lenBuf[1] = byte(n >> 16)
	lenBuf[2] = byte(n >> 8)
	lenBuf[3] = byte(n)
	c.Write(lenBuf[:])
	c.Write(b)
}

func writeU32(c net.Conn, v uint32) {
	var buf [4]byte
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
	c.Write(buf[:])
}
