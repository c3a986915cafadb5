package kt

import (
	"context"
	"time"
)

// --- Operations unified across both server kinds --------------------------
//
// Add, Append, and Clear have a direct counterpart on both wire protocols
// (putkeep/putcat/vanish on Tokyo Tyrant's binary RPC, add/append/clear on
// Kyoto Tycoon's HTTP RPC), so they dispatch on cfg.kind the same way
// Client.Get/Set/Remove do in client.go.

// Add stores value under key only if it does not already exist, returning
// false (not an error) if a record was already present — a Logical
// failure per spec §7. db and expireTime are Kyoto-Tycoon-only and
// ignored on a TokyoTyrant client.
func (cl *Client) Add(ctx context.Context, key string, value any, db *uint16, expireTime *int64) (bool, error) {
	enc, err := cl.codec.Encode(value)
	if err != nil {
		return false, err
	}
	if cl.cfg.kind == TokyoTyrant {
		return cl.ttAdd(ctx, key, enc)
	}
	return cl.httpAdd(ctx, key, enc, db, expireTime)
}

// Append concatenates value onto whatever is already stored under key,
// creating the record if it doesn't exist. db is Kyoto-Tycoon-only and
// ignored on a TokyoTyrant client.
func (cl *Client) Append(ctx context.Context, key string, value any, db *uint16) error {
	enc, err := cl.codec.Encode(value)
	if err != nil {
		return err
	}
	if cl.cfg.kind == TokyoTyrant {
		return cl.ttAppend(ctx, key, enc)
	}
	return cl.httpAppend(ctx, key, enc, db)
}

// Clear removes every record from db (Kyoto Tycoon) or from the sibling
// server's single open database (TokyoTyrant, where db is ignored).
func (cl *Client) Clear(ctx context.Context, db *uint16) error {
	if cl.cfg.kind == TokyoTyrant {
		return cl.ttClear(ctx)
	}
	return cl.httpClear(ctx, db)
}

// --- Kyoto-Tycoon-only HTTP surface ---------------------------------------
//
// These RPCs have no Tokyo Tyrant binary-protocol counterpart named in
// spec §4.6; calling them against a TokyoTyrant client is a Configuration
// error rather than a silently-wrong request.

func (cl *Client) requireKyotoTycoon(op string) error {
	if cl.cfg.kind != KyotoTycoon {
		return configErr("%s is only defined for KyotoTycoon clients", op)
	}
	return nil
}

// Replace overwrites the value under key only if it already exists,
// returning false on a missing-key Logical failure.
func (cl *Client) Replace(ctx context.Context, key string, value any, db *uint16, expireTime *int64) (bool, error) {
	if err := cl.requireKyotoTycoon("Replace"); err != nil {
		return false, err
	}
	enc, err := cl.codec.Encode(value)
	if err != nil {
		return false, err
	}
	return cl.httpReplace(ctx, key, enc, db, expireTime)
}

// Check reports whether key exists in db, without transferring its value.
func (cl *Client) Check(ctx context.Context, key string, db *uint16) (bool, error) {
	if err := cl.requireKyotoTycoon("Check"); err != nil {
		return false, err
	}
	return cl.httpCheck(ctx, key, db)
}

// Seize atomically reads and removes key from db.
func (cl *Client) Seize(ctx context.Context, key string, db *uint16) (any, bool, error) {
	if err := cl.requireKyotoTycoon("Seize"); err != nil {
		return nil, false, err
	}
	raw, ok, err := cl.httpSeize(ctx, key, db)
	if err != nil || !ok {
		return nil, ok, err
	}
	v, err := cl.codec.Decode(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Cas performs a compare-and-swap on key: exactly one of oldValue/
// newValue may be nil (absent oldValue creates unconditionally, absent
// newValue deletes if oldValue matches); both nil is a Configuration
// error.
func (cl *Client) Cas(ctx context.Context, key string, oldValue, newValue any, db *uint16) (bool, error) {
	if err := cl.requireKyotoTycoon("Cas"); err != nil {
		return false, err
	}
	var oval, nval []byte
	if oldValue != nil {
		enc, err := cl.codec.Encode(oldValue)
		if err != nil {
			return false, err
		}
		oval = enc
	}
	if newValue != nil {
		enc, err := cl.codec.Encode(newValue)
		if err != nil {
			return false, err
		}
		nval = enc
	}
	return cl.httpCas(ctx, key, oval, nval, db)
}

// Increment adds delta to the integer stored under key in db, seeding it
// with orig if the key is missing.
func (cl *Client) Increment(ctx context.Context, key string, delta int64, orig *int64, db *uint16) (int64, error) {
	if err := cl.requireKyotoTycoon("Increment"); err != nil {
		return 0, err
	}
	return cl.httpIncrement(ctx, key, delta, orig, db)
}

// IncrementDouble is Increment's floating-point counterpart.
func (cl *Client) IncrementDouble(ctx context.Context, key string, delta float64, orig *float64, db *uint16) (float64, error) {
	if err := cl.requireKyotoTycoon("IncrementDouble"); err != nil {
		return 0, err
	}
	return cl.httpIncrementDouble(ctx, key, delta, orig, db)
}

// MatchPrefix returns up to max keys in db beginning with prefix, or every
// matching key when max is negative.
func (cl *Client) MatchPrefix(ctx context.Context, prefix string, max int64, db *uint16) ([]string, error) {
	if err := cl.requireKyotoTycoon("MatchPrefix"); err != nil {
		return nil, err
	}
	return cl.httpMatchPrefix(ctx, prefix, max, db)
}

// MatchRegex returns up to max keys in db matching the regular expression.
func (cl *Client) MatchRegex(ctx context.Context, regex string, max int64, db *uint16) ([]string, error) {
	if err := cl.requireKyotoTycoon("MatchRegex"); err != nil {
		return nil, err
	}
	return cl.httpMatchRegex(ctx, regex, max, db)
}

// MatchSimilar returns up to maxKeys keys in db within distance edits of
// origin.
func (cl *Client) MatchSimilar(ctx context.Context, origin string, distance, maxKeys int64, db *uint16) ([]string, error) {
	if err := cl.requireKyotoTycoon("MatchSimilar"); err != nil {
		return nil, err
	}
	return cl.httpMatchSimilar(ctx, origin, distance, maxKeys, db)
}

// Status returns the server's global status report.
func (cl *Client) Status(ctx context.Context) (map[string]string, error) {
	if err := cl.requireKyotoTycoon("Status"); err != nil {
		return nil, err
	}
	return cl.httpStatus(ctx)
}

// Report returns the per-database report.
func (cl *Client) Report(ctx context.Context) (map[string]string, error) {
	if err := cl.requireKyotoTycoon("Report"); err != nil {
		return nil, err
	}
	return cl.httpReport(ctx)
}

// Synchronize flushes db to durable storage, optionally running the named
// post-sync command.
func (cl *Client) Synchronize(ctx context.Context, hard bool, command string, db *uint16) error {
	if err := cl.requireKyotoTycoon("Synchronize"); err != nil {
		return err
	}
	return cl.httpSynchronize(ctx, hard, command, db)
}

// Vacuum compacts db; a positive step compacts incrementally.
func (cl *Client) Vacuum(ctx context.Context, step int64, db *uint16) error {
	if err := cl.requireKyotoTycoon("Vacuum"); err != nil {
		return err
	}
	return cl.httpVacuum(ctx, step, db)
}

// TuneReplication points the server's replication at a new master, or
// detaches it when host is empty.
func (cl *Client) TuneReplication(ctx context.Context, host string, port int, timestamp int64, interval time.Duration) error {
	if err := cl.requireKyotoTycoon("TuneReplication"); err != nil {
		return err
	}
	return cl.httpTuneReplication(ctx, host, port, timestamp, interval)
}

// UlogList lists the server's update-log files.
func (cl *Client) UlogList(ctx context.Context) ([]UlogFile, error) {
	if err := cl.requireKyotoTycoon("UlogList"); err != nil {
		return nil, err
	}
	return cl.httpUlogList(ctx)
}

// UlogRemove prunes update-log files older than timestamp.
func (cl *Client) UlogRemove(ctx context.Context, timestamp int64) error {
	if err := cl.requireKyotoTycoon("UlogRemove"); err != nil {
		return err
	}
	return cl.httpUlogRemove(ctx, timestamp)
}

// PlayScript runs a server-side script over the HTTP surface, decoding
// both params and results through the Client's codec the same way
// Client.Script does for the binary-A path.
func (cl *Client) PlayScript(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	if err := cl.requireKyotoTycoon("PlayScript"); err != nil {
		return nil, err
	}
	in := make(map[string][]byte, len(params))
	for k, v := range params {
		enc, err := cl.codec.Encode(v)
		if err != nil {
			return nil, err
		}
		in[k] = enc
	}
	out, err := cl.httpPlayScript(ctx, name, in)
	if err != nil {
		return nil, err
	}
	result := make(map[string]any, len(out))
	for k, v := range out {
		dec, err := cl.codec.Decode(v)
		if err != nil {
			return nil, err
		}
		result[k] = dec
	}
	return result, nil
}
