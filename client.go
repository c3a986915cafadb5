// Package kt is a Go client for Kyoto Tycoon (the cache server, accessed
// over a custom binary RPC and an HTTP/TSV RPC) and Tokyo Tyrant (the
// sibling server, accessed over a different binary RPC).
package kt

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/coleifer/kt/pkg/kbin"
	"github.com/coleifer/kt/pkg/ktcodec"
)

// Client is the single facade over both server kinds, collapsing the
// Python original's KyotoTycoon/TokyoTyrant classes (spec §9) behind one
// type parameterized by ServerKind. It picks a transport per operation:
// binary for point/bulk/script ops, HTTP for the rest of Kyoto Tycoon's
// surface, binary-only for Tokyo Tyrant.
type Client struct {
	cfg   cfg
	addr  string
	codec ktcodec.Codec

	pool *Pool

	// Used only when cfg.usePool is false: a single persistent Connection
	// guarded by a mutex, redialed lazily after it dies.
	single   *Connection
	singleMu chan struct{} // 1-buffered: acts as a non-reentrant mutex with Close-friendly semantics

	httpClient *http.Client

	closed bool
}

// NewClient constructs a Client and opens its underlying transport(s),
// mirroring the Python original's auto_connect=True default.
func NewClient(opts ...Opt) (*Client, error) {
	c := defaultCfg()
	for _, opt := range opts {
		opt(&c)
	}

	codec, err := ktcodec.New(c.serializer)
	if err != nil {
		return nil, configErr("%v", err)
	}

	cl := &Client{
		cfg:      c,
		addr:     net.JoinHostPort(c.host, strconv.Itoa(c.port)),
		codec:    codec,
		singleMu: make(chan struct{}, 1),
	}
	cl.singleMu <- struct{}{}

	if c.usePool {
		cl.pool = NewPool(cl.addr, c.maxPoolSize, c.maxIdleAge, c.timeout, c.logger)
	}
	if c.kind == KyotoTycoon {
		cl.httpClient = &http.Client{Timeout: c.timeout}
	}
	return cl, nil
}

// Close releases all pooled/persistent Connections. It does not affect the
// HTTP client, which owns no persistent sockets of its own beyond Go's
// shared transport connection cache.
func (cl *Client) Close() error {
	if cl.closed {
		return nil
	}
	cl.closed = true
	if cl.pool != nil {
		cl.pool.CloseAll()
	}
	if cl.single != nil {
		cl.single.Close()
		cl.single = nil
	}
	return nil
}

// getConn borrows a Connection, from the Pool if pooling is enabled or
// from the single persistent slot otherwise.
func (cl *Client) getConn(ctx context.Context) (*Connection, error) {
	if cl.pool != nil {
		return cl.pool.Acquire(ctx, nil)
	}

	select {
	case <-cl.singleMu:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if cl.single == nil || cl.single.IsDead() {
		if cl.single != nil {
			cl.single.Close()
		}
		c, err := dialConnection(ctx, cl.addr, cl.cfg.timeout)
		if err != nil {
			cl.singleMu <- struct{}{}
			return nil, err
		}
		cl.single = c
	}
	return cl.single, nil
}

// releaseConn returns a Connection borrowed via getConn. For the single-
// connection mode this just unlocks the slot; a dead Connection is left in
// place so the next getConn redials it.
func (cl *Client) releaseConn(conn *Connection, reusable bool) {
	if cl.pool != nil {
		cl.pool.Release(conn, reusable)
		return
	}
	cl.singleMu <- struct{}{}
}

// withConn acquires a Connection, runs fn, and releases it, treating any
// Server-kind error as leaving the Connection reusable (spec §7: "Server
// error ... Connection is still reusable when the framing completed").
// Any other non-nil error (Connection, Protocol) discards the Connection.
func (cl *Client) withConn(ctx context.Context, fn func(*Connection) error) error {
	conn, err := cl.getConn(ctx)
	if err != nil {
		return err
	}
	ferr := fn(conn)
	reusable := ferr == nil || ferr == errScriptFailed
	if ke, ok := ferr.(*Error); ok && ke.Kind == KindServer {
		reusable = true
	}
	cl.releaseConn(conn, reusable)
	return ferr
}

func (cl *Client) dbOrDefault(db *uint16) uint16 {
	if db != nil {
		return *db
	}
	return cl.cfg.defaultDB
}

// --- Kyoto Tycoon binary operations -----------------------------------

// Get returns the value stored under key in db, or (nil, false) if there
// is no such record (a Logical failure, not an error, per spec §7).
func (cl *Client) Get(ctx context.Context, key string, db *uint16) (any, bool, error) {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttGet(ctx, key)
	}
	var recs []kbin.Record
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		recs, err = ktGetBulk(conn, []kbin.KeyEntry{{DB: cl.dbOrDefault(db), Key: []byte(key)}})
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	v, err := cl.codec.Decode(recs[0].Value)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set stores value under key in db, with an optional expire time (see
// §6 for how call sites define absolute vs relative TTL semantics).
func (cl *Client) Set(ctx context.Context, key string, value any, db *uint16, expireTime *int64) error {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttPut(ctx, key, value)
	}
	enc, err := cl.codec.Encode(value)
	if err != nil {
		return err
	}
	rec := kbin.Record{DB: cl.dbOrDefault(db), Key: []byte(key), Value: enc, Expire: expireOrNone(expireTime)}
	return cl.withConn(ctx, func(conn *Connection) error {
		_, err := ktSetBulk(conn, []kbin.Record{rec}, false)
		return err
	})
}

// Remove deletes key from db, returning whether a record was actually
// removed.
func (cl *Client) Remove(ctx context.Context, key string, db *uint16) (bool, error) {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttOut(ctx, key)
	}
	var n uint32
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		n, err = ktRemoveBulk(conn, []kbin.KeyEntry{{DB: cl.dbOrDefault(db), Key: []byte(key)}})
		return err
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetBulk returns every record found among keys in db, keyed by the
// original (decoded, if DecodeKeys is set) key text.
func (cl *Client) GetBulk(ctx context.Context, keys []string, db *uint16) (map[string]any, error) {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttGetBulk(ctx, keys)
	}
	entries := make([]kbin.KeyEntry, len(keys))
	for i, k := range keys {
		entries[i] = kbin.KeyEntry{DB: cl.dbOrDefault(db), Key: []byte(k)}
	}
	var recs []kbin.Record
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		recs, err = ktGetBulk(conn, entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(recs))
	for _, rec := range recs {
		v, err := cl.codec.Decode(rec.Value)
		if err != nil {
			return nil, err
		}
		key, err := cl.decodeKey(rec.Key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// SetBulk stores every key/value pair in data under db, returning the
// number of records written.
func (cl *Client) SetBulk(ctx context.Context, data map[string]any, db *uint16, expireTime *int64) (uint32, error) {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttSetBulk(ctx, data)
	}
	recs := make([]kbin.Record, 0, len(data))
	xt := expireOrNone(expireTime)
	for k, v := range data {
		enc, err := cl.codec.Encode(v)
		if err != nil {
			return 0, err
		}
		recs = append(recs, kbin.Record{DB: cl.dbOrDefault(db), Key: []byte(k), Value: enc, Expire: xt})
	}
	var n uint32
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		n, err = ktSetBulk(conn, recs, false)
		return err
	})
	return n, err
}

// RemoveBulk deletes every key in keys from db, returning the number
// actually removed.
func (cl *Client) RemoveBulk(ctx context.Context, keys []string, db *uint16) (uint32, error) {
	if cl.cfg.kind != KyotoTycoon {
		return cl.ttRemoveBulk(ctx, keys)
	}
	entries := make([]kbin.KeyEntry, len(keys))
	for i, k := range keys {
		entries[i] = kbin.KeyEntry{DB: cl.dbOrDefault(db), Key: []byte(k)}
	}
	var n uint32
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		n, err = ktRemoveBulk(conn, entries)
		return err
	})
	return n, err
}

// Script invokes a Kyoto Tycoon server-side Lua procedure by name, passing
// params and returning its output map, or (nil, nil) if the script itself
// signaled failure (spec §4.4: pending-script-failure maps to "no
// result", not an error).
func (cl *Client) Script(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	in := make([]ktScriptParam, 0, len(params))
	for k, v := range params {
		enc, err := cl.codec.Encode(v)
		if err != nil {
			return nil, err
		}
		// Callers inject the leading "_" prefix on input, matching the
		// server's scripting convention (spec §4.4).
		in = append(in, ktScriptParam{Key: []byte("_" + k), Value: enc})
	}

	var out []ktScriptParam
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		out, err = ktScript(conn, name, in)
		return err
	})
	if err == errScriptFailed {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := make(map[string]any, len(out))
	for _, p := range out {
		v, err := cl.codec.Decode(p.Value)
		if err != nil {
			return nil, err
		}
		// Each output key is returned with its leading "_" stripped.
		key := string(p.Key)
		if len(key) > 0 && key[0] == '_' {
			key = key[1:]
		}
		result[key] = v
	}
	return result, nil
}

// decodeKey converts a raw wire key to its map-key representation. With
// DecodeKeys set (the default), a non-UTF-8 key is rejected as a Protocol
// error rather than silently producing an unusable map key; with it
// cleared, the raw bytes pass through as a Go string unchecked.
func (cl *Client) decodeKey(k []byte) (string, error) {
	if cl.cfg.decodeKeys && !utf8.Valid(k) {
		return "", protoErr("key is not valid UTF-8: %q", k)
	}
	return string(k), nil
}

func expireOrNone(xt *int64) int64 {
	if xt == nil {
		return -1
	}
	return *xt
}
