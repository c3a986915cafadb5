package kt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialConnectionAndReadWrite(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 5)
		io_ReadFullConn(c, buf)
		c.Write([]byte("reply"))
	}()

	conn, err := dialConnection(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteAll([]byte("hello")))
	got, err := conn.ReadExact(5)
	require.NoError(t, err)
	require.Equal(t, []byte("reply"), got)
	require.False(t, conn.IsDead())
}

func TestConnectionReadExactMarksDeadOnShortRead(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Write([]byte("ab"))
		c.Close()
	}()

	conn, err := dialConnection(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadExact(10)
	require.Error(t, err)
	require.True(t, conn.IsDead())

	var kerr *Error
	require.ErrorAs(t, err, &kerr)
	require.Equal(t, KindConnection, kerr.Kind)
}

func TestConnectionWriteAllMarksDeadOnClosedPeer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	conn, err := dialConnection(context.Background(), ln.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()

	peer := <-accepted
	peer.Close()

	// Repeated writes to a closed peer eventually surface as an error; a
	// single write can succeed into the kernel's send buffer before the
	// RST arrives, so retry briefly.
	deadline := time.Now().Add(2 * time.Second)
	var writeErr error
	for time.Now().Before(deadline) {
		writeErr = conn.WriteAll([]byte("xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"))
		if writeErr != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Error(t, writeErr)
	require.True(t, conn.IsDead())
}

func io_ReadFullConn(c net.Conn, buf []byte) {
	n := 0
	for n < len(buf) {
		m, err := c.Read(buf[n:])
		if err != nil {
			return
		}
		n += m
	}
}
