package kt

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool manages the set of idle Connections to one (host, port), lending
// them out and accepting them back. It is safe under both a mutex-guarded
// "parallel threads" caller and a single-threaded cooperative caller that
// may have several Acquire calls outstanding at once (spec §5): the
// semaphore bounds how many Connections may exist concurrently without
// serializing callers on a single lock the way a plain sync.Mutex pool
// would, the same complementary pairing used throughout the corpus
// (sync.Mutex for bookkeeping, x/sync/semaphore for admission control).
type Pool struct {
	addr    string
	timeout time.Duration
	maxAge  time.Duration
	logger  Logger

	sem *semaphore.Weighted

	mu   sync.Mutex
	idle []*Connection
}

// NewPool constructs a Pool for addr. maxSize bounds the number of
// Connections concurrently outstanding (idle + lent); maxAge is the idle
// cutoff beyond which an otherwise-idle Connection is redialed rather than
// reused.
func NewPool(addr string, maxSize int, maxAge, timeout time.Duration, logger Logger) *Pool {
	if maxSize <= 0 {
		maxSize = 1
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Pool{
		addr:    addr,
		timeout: timeout,
		maxAge:  maxAge,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(maxSize)),
	}
}

// Acquire returns an idle Connection whose last use is within maxAge, or
// dials a fresh one. It blocks until a slot is available if maxSize
// Connections are already outstanding. pinnedDB, when non-nil, is recorded
// on the returned Connection for callers that want to track which logical
// database a Connection was last used against; the Pool itself does not
// interpret it.
func (p *Pool) Acquire(ctx context.Context, pinnedDB *uint16) (*Connection, error) {
	// An idle Connection already holds its slot, so reuse it before asking
	// the semaphore for a new one.
	if c := p.popFresh(); c != nil {
		c.pinnedDB = pinnedDB
		return c, nil
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, connErr(err, "acquire connection slot for %s", p.addr)
	}

	c, err := dialConnection(ctx, p.addr, p.timeout)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	c.pinnedDB = pinnedDB
	p.logger.Log(LogLevelDebug, "dialed new connection", "addr", p.addr)
	return c, nil
}

// popFresh pops the most-recently-used idle Connection that is within
// maxAge, discarding (and closing) any stale ones it finds ahead of it so
// they don't keep accumulating in the idle queue.
func (p *Pool) popFresh() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		c := p.idle[n]
		p.idle = p.idle[:n]

		if p.maxAge > 0 && time.Since(c.lastUsed) > p.maxAge {
			c.Close()
			p.sem.Release(1)
			continue
		}
		return c
	}
	return nil
}

// Release returns c to the idle queue, stamped with the current time, or
// closes it if reusable is false or the Connection is dead. Either way the
// semaphore slot it held is freed for a new Acquire only once the
// Connection is actually discarded; a reusable release keeps the slot
// attached to the Connection sitting in the idle queue.
func (p *Pool) Release(c *Connection, reusable bool) {
	if c == nil {
		return
	}
	if !reusable || c.IsDead() {
		c.Close()
		p.sem.Release(1)
		return
	}
	c.touch()
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// CloseIdle closes and removes idle Connections whose last use is before
// cutoff.
func (p *Pool) CloseIdle(cutoff time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.idle[:0]
	for _, c := range p.idle {
		if c.lastUsed.Before(cutoff) {
			c.Close()
			p.sem.Release(1)
			continue
		}
		kept = append(kept, c)
	}
	p.idle = kept
}

// CloseAll closes every idle Connection and drains the queue. Connections
// currently lent out are unaffected; callers must Release them first (or
// let them be discarded on I/O error).
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.idle {
		c.Close()
		p.sem.Release(1)
	}
	p.idle = nil
}
