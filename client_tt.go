package kt

import "context"

// --- Tokyo Tyrant binary operations ------------------------------------
//
// These back Client.Get/Set/Remove/GetBulk/SetBulk/RemoveBulk when
// cfg.kind is TokyoTyrant. The sibling server has no notion of multiple
// logical databases or per-record expiry, so db and expireTime are
// ignored on this path (spec §3/§6: those parameters are Kyoto-Tycoon-only
// and the Python original's TokyoTyrant class simply doesn't accept them).

func (cl *Client) ttGet(ctx context.Context, key string) (any, bool, error) {
	var val []byte
	var found bool
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		val, found, err = ttGet(conn, []byte(key))
		return err
	})
	if err != nil || !found {
		return nil, false, err
	}
	v, err := cl.codec.Decode(val)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (cl *Client) ttPut(ctx context.Context, key string, value any) error {
	enc, err := cl.codec.Encode(value)
	if err != nil {
		return err
	}
	return cl.withConn(ctx, func(conn *Connection) error {
		_, err := ttPut(conn, opTTPut, []byte(key), enc)
		return err
	})
}

func (cl *Client) ttOut(ctx context.Context, key string) (bool, error) {
	var removed bool
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		removed, err = ttOut(conn, []byte(key))
		return err
	})
	return removed, err
}

// ttGetBulk fetches every key present among keys via the getlist misc
// command, one round trip regardless of key count.
func (cl *Client) ttGetBulk(ctx context.Context, keys []string) (map[string]any, error) {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	var pairs []ttPair
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		pairs, err = ttMiscGetList(conn, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		v, err := cl.codec.Decode(p.Value)
		if err != nil {
			return nil, err
		}
		key, err := cl.decodeKey(p.Key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// ttSetBulk stores every key/value pair via the putlist misc command,
// which spec §4.6 documents as always succeeding regardless of any
// individual record's outcome, so the returned count is simply the
// number of records submitted.
func (cl *Client) ttSetBulk(ctx context.Context, data map[string]any) (uint32, error) {
	pairs := make([]ttPair, 0, len(data))
	for k, v := range data {
		enc, err := cl.codec.Encode(v)
		if err != nil {
			return 0, err
		}
		pairs = append(pairs, ttPair{Key: []byte(k), Value: enc})
	}
	err := cl.withConn(ctx, func(conn *Connection) error {
		return ttMiscPutList(conn, pairs)
	})
	if err != nil {
		return 0, err
	}
	return uint32(len(pairs)), nil
}

// ttRemoveBulk deletes every key via the outlist misc command, which
// spec §4.6 likewise documents as always succeeding, so the returned
// count is the number of keys submitted.
func (cl *Client) ttRemoveBulk(ctx context.Context, keys []string) (uint32, error) {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = []byte(k)
	}
	err := cl.withConn(ctx, func(conn *Connection) error {
		return ttMiscOutList(conn, raw)
	})
	if err != nil {
		return 0, err
	}
	return uint32(len(keys)), nil
}

// ttAdd is the TokyoTyrant side of Add: putkeep (0x11), returning false if
// a record was already present — a Logical failure, not an error (spec
// §7). enc is the already-codec-encoded value.
func (cl *Client) ttAdd(ctx context.Context, key string, enc []byte) (bool, error) {
	var ok bool
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		ok, err = ttPut(conn, opTTPutKeep, []byte(key), enc)
		return err
	})
	return ok, err
}

// ttAppend is the TokyoTyrant side of Append: putcat (0x12), creating the
// record if it doesn't exist.
func (cl *Client) ttAppend(ctx context.Context, key string, enc []byte) error {
	return cl.withConn(ctx, func(conn *Connection) error {
		_, err := ttPut(conn, opTTPutCat, []byte(key), enc)
		return err
	})
}

// Vsize returns the byte size of the value stored under key, or (0, false)
// if there is no such record.
func (cl *Client) Vsize(ctx context.Context, key string) (int32, bool, error) {
	var size int32
	var found bool
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		size, found, err = ttVsiz(conn, []byte(key))
		return err
	})
	return size, found, err
}

// Incr atomically adds delta to the integer stored under key, creating it
// if necessary, and returns the new value (addint, 0x60).
func (cl *Client) Incr(ctx context.Context, key string, delta int32) (int32, error) {
	var result int32
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		result, err = ttAddInt(conn, []byte(key), delta)
		return err
	})
	return result, err
}

// IncrDouble atomically adds delta to the floating-point value stored
// under key, creating it if necessary (adddouble, 0x61).
func (cl *Client) IncrDouble(ctx context.Context, key string, delta float64) (float64, error) {
	var result float64
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		result, err = ttAddDouble(conn, []byte(key), delta)
		return err
	})
	return result, err
}

// Ext invokes a server-side Lua extension function by name (ext, 0x68),
// the sibling server's counterpart to Kyoto Tycoon's Script.
func (cl *Client) Ext(ctx context.Context, name string, opts uint32, key, value []byte) ([]byte, error) {
	var result []byte
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		result, err = ttExt(conn, name, opts, key, value)
		return err
	})
	return result, err
}

// Keys returns up to max keys beginning with prefix (fwmkeys, 0x58). A
// negative max means unlimited.
func (cl *Client) Keys(ctx context.Context, prefix string, max int32) ([]string, error) {
	var raw [][]byte
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		raw, err = ttFwmKeys(conn, []byte(prefix), max)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, k := range raw {
		key, err := cl.decodeKey(k)
		if err != nil {
			return nil, err
		}
		out[i] = key
	}
	return out, nil
}

// GetRange performs a B-tree-only range scan over [start, stop), the
// misc "range" command, returning up to maxKeys records (0 = unlimited).
// stop == nil means unbounded (every key from start onward). Against a
// hash database the scan order is unspecified, matching spec §4.6.
func (cl *Client) GetRange(ctx context.Context, start string, stop *string, maxKeys int) (map[string]any, error) {
	var pairs []ttPair
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		pairs, err = ttMiscGetRange(conn, start, stop, maxKeys)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		v, err := cl.codec.Decode(p.Value)
		if err != nil {
			return nil, err
		}
		key, err := cl.decodeKey(p.Key)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// Len returns the number of records in the database (rnum, 0x80).
func (cl *Client) Len(ctx context.Context) (uint64, error) {
	var n uint64
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		n, err = ttU64Result(conn, opTTRNum)
		return err
	})
	return n, err
}

// DBSize returns the size in bytes of the database file (size, 0x81).
func (cl *Client) DBSize(ctx context.Context) (uint64, error) {
	var n uint64
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		n, err = ttU64Result(conn, opTTSize)
		return err
	})
	return n, err
}

// Stat returns the server's status report as a string map (stat, 0x88).
func (cl *Client) Stat(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := cl.withConn(ctx, func(conn *Connection) error {
		var err error
		out, err = ttStat(conn)
		return err
	})
	return out, err
}

// Sync flushes any pending updates to disk (sync, 0x70).
func (cl *Client) Sync(ctx context.Context) error {
	return cl.withConn(ctx, func(conn *Connection) error {
		ok, err := ttNoPayload(conn, opTTSync)
		if err != nil {
			return err
		}
		if !ok {
			return serverErr("sync failed")
		}
		return nil
	})
}

// IterInit rewinds the server's legacy iterator cursor to the first
// record (iterinit, 0x50). The cursor is per-connection, not per-Client:
// with pooling enabled, a subsequent IterNext may land on a different
// pooled connection whose cursor was never initialized, so iteration is
// only meaningful with connection pooling disabled.
func (cl *Client) IterInit(ctx context.Context) error {
	return cl.withConn(ctx, ttIterInit)
}

// IterNext advances the legacy iterator cursor and returns its current
// key/value, or ok=false once the iterator is exhausted (iternext, 0x51).
func (cl *Client) IterNext(ctx context.Context) (key string, value any, ok bool, err error) {
	var rawKey, rawVal []byte
	err = cl.withConn(ctx, func(conn *Connection) error {
		var ierr error
		rawKey, rawVal, ok, ierr = ttIterNext(conn)
		return ierr
	})
	if err != nil || !ok {
		return "", nil, ok, err
	}
	v, err := cl.codec.Decode(rawVal)
	if err != nil {
		return "", nil, false, err
	}
	key, err := cl.decodeKey(rawKey)
	if err != nil {
		return "", nil, false, err
	}
	return key, v, true, nil
}

// ttClear is the TokyoTyrant side of Clear: vanish (0x71), which (unlike
// Kyoto Tycoon's per-database clear) always wipes the single database the
// sibling server holds open.
func (cl *Client) ttClear(ctx context.Context) error {
	return cl.withConn(ctx, func(conn *Connection) error {
		ok, err := ttNoPayload(conn, opTTVanish)
		if err != nil {
			return err
		}
		if !ok {
			return serverErr("vanish failed")
		}
		return nil
	})
}
