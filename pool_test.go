package kt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoListener starts a TCP listener that accepts connections and leaves
// them open (closing only when the test shuts the listener down), enough
// for exercising Pool/Connection plumbing without a real server on the
// other end.
func echoListener(t *testing.T) (addr string, closeFn func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go io_discard(c)
		}
	}()
	return ln.Addr().String(), func() { ln.Close() }
}

func io_discard(c net.Conn) {
	buf := make([]byte, 4096)
	for {
		if _, err := c.Read(buf); err != nil {
			return
		}
	}
}

func TestPoolAcquireDialsFreshConnection(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 2, time.Minute, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, conn)
	require.False(t, conn.IsDead())
}

func TestPoolReleaseReuseRoundTrip(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 1, time.Minute, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)

	p.Release(conn, true)
	require.Len(t, p.idle, 1)

	again, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	require.Same(t, conn, again)
	require.Empty(t, p.idle)
}

func TestPoolReleaseDiscardsUnreusable(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 1, time.Minute, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)

	p.Release(conn, false)
	require.Empty(t, p.idle)

	// The semaphore slot must have been freed, or this blocks and the test
	// times out.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = p.Acquire(ctx, nil)
	require.NoError(t, err)
}

func TestPoolAcquireBlocksUntilSlotFrees(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 1, time.Minute, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, nil)
	require.Error(t, err)

	p.Release(conn, true)
	conn2, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, conn2)
}

func TestPoolPopFreshDiscardsStaleConnections(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 2, time.Millisecond, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	p.Release(conn, true)

	time.Sleep(5 * time.Millisecond)

	fresh, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	require.NotSame(t, conn, fresh)
}

func TestPoolCloseIdleRemovesOldConnectionsOnly(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 2, time.Minute, time.Second, nil)
	old, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	fresh, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)

	p.Release(old, true)
	p.Release(fresh, true)
	old.lastUsed = time.Now().Add(-time.Hour)

	p.CloseIdle(time.Now().Add(-time.Minute))
	require.Len(t, p.idle, 1)
	require.Same(t, fresh, p.idle[0])
}

func TestPoolCloseAllDrainsIdleQueue(t *testing.T) {
	addr, closeFn := echoListener(t)
	defer closeFn()

	p := NewPool(addr, 2, time.Minute, time.Second, nil)
	conn, err := p.Acquire(context.Background(), nil)
	require.NoError(t, err)
	p.Release(conn, true)

	p.CloseAll()
	require.Empty(t, p.idle)
}
