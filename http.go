package kt

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTP Protocol: Kyoto Tycoon's tab-separated-value RPC, reachable at
// /rpc/<name> on the same host:port as the binary protocols. Bodies are
// "key\tvalue\n" lines with both columns base64-encoded on the way out
// (colenc=B); colenc=U (URL-encoded) and unencoded bodies are accepted on
// the way in, matching whatever the server happens to send back.

type tsvColEnc int

const (
	colEncB tsvColEnc = iota // base64
	colEncU                  // URL percent-encoding
	colEncNone
)

// tsvBody is an ordered list of key/value pairs, preserving duplicate keys
// (bulk operations repeat `_`-prefixed record keys) and the field order
// callers build it in.
type tsvBody struct {
	keys   []string
	values []string
}

func (b *tsvBody) add(key, value string) {
	b.keys = append(b.keys, key)
	b.values = append(b.values, value)
}

func (b *tsvBody) addBytes(key string, value []byte) {
	b.add(key, string(value))
}

func (b *tsvBody) get(key string) (string, bool) {
	for i, k := range b.keys {
		if k == key {
			return b.values[i], true
		}
	}
	return "", false
}

func (b *tsvBody) all(prefix string) map[string]string {
	out := map[string]string{}
	for i, k := range b.keys {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = b.values[i]
		}
	}
	return out
}

func (b *tsvBody) encode() []byte {
	var buf bytes.Buffer
	for i, k := range b.keys {
		buf.WriteString(base64.StdEncoding.EncodeToString([]byte(k)))
		buf.WriteByte('\t')
		buf.WriteString(base64.StdEncoding.EncodeToString([]byte(b.values[i])))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func decodeTSVBody(raw []byte, enc tsvColEnc) (*tsvBody, error) {
	body := &tsvBody{}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i != len(raw) && raw[i] != '\n' {
			continue
		}
		line := raw[start:i]
		start = i + 1
		if len(line) == 0 {
			continue
		}
		tab := bytes.IndexByte(line, '\t')
		if tab < 0 {
			return nil, protoErr("malformed TSV line (no tab): %q", line)
		}
		k, err := decodeTSVColumn(line[:tab], enc)
		if err != nil {
			return nil, protoErr("malformed TSV key: %v", err)
		}
		v, err := decodeTSVColumn(line[tab+1:], enc)
		if err != nil {
			return nil, protoErr("malformed TSV value: %v", err)
		}
		body.add(string(k), string(v))
	}
	return body, nil
}

func decodeTSVColumn(col []byte, enc tsvColEnc) ([]byte, error) {
	switch enc {
	case colEncB:
		return base64.StdEncoding.DecodeString(string(col))
	case colEncU:
		s, err := url.QueryUnescape(string(col))
		return []byte(s), err
	default:
		return col, nil
	}
}

func colEncFromContentType(ct string) tsvColEnc {
	switch {
	case strings.Contains(ct, "colenc=B"):
		return colEncB
	case strings.Contains(ct, "colenc=U"):
		return colEncU
	default:
		return colEncNone
	}
}

// httpCall POSTs body to /rpc/<name> and returns the parsed response body
// and HTTP status. A 200 or 450 response is decoded normally (450 is a
// Logical failure the caller interprets itself); a 501 (unsupported
// operation) is a Server error; any other status is a Protocol error.
func (cl *Client) httpCall(ctx context.Context, name string, body *tsvBody) (*tsvBody, int, error) {
	u := fmt.Sprintf("http://%s/rpc/%s", cl.addr, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body.encode()))
	if err != nil {
		return nil, 0, connErr(err, "build request for %s", name)
	}
	req.Header.Set("Content-Type", "text/tab-separated-values; colenc=B")

	resp, err := cl.httpClient.Do(req)
	if err != nil {
		return nil, 0, connErr(err, "http rpc %s", name)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, connErr(err, "read response for %s", name)
	}

	switch resp.StatusCode {
	case http.StatusOK, 450:
	case 501:
		return nil, resp.StatusCode, serverErr("unsupported operation %q", name)
	default:
		return nil, resp.StatusCode, protoErr("unexpected HTTP status %d from %s", resp.StatusCode, name)
	}

	enc := colEncFromContentType(resp.Header.Get("Content-Type"))
	respBody, err := decodeTSVBody(raw, enc)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

func (cl *Client) httpDBField(db *uint16) string {
	return strconv.Itoa(int(cl.dbOrDefault(db)))
}

// --- Single-record operations -------------------------------------------

// httpSet stores value under key (the "set" RPC), overwriting whatever was
// there.
func (cl *Client) httpSet(ctx context.Context, key string, value []byte, db *uint16, expireTime *int64, atomic bool) error {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.addBytes("value", value)
	if expireTime != nil {
		body.add("xt", strconv.FormatInt(*expireTime, 10))
	}
	if atomic {
		body.add("atomic", "")
	}
	_, status, err := cl.httpCall(ctx, "set", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("set failed for key %q", key)
	}
	return nil
}

// httpAdd stores value under key only if it doesn't already exist,
// returning false (not an error) on a 450 add-exists response.
func (cl *Client) httpAdd(ctx context.Context, key string, value []byte, db *uint16, expireTime *int64) (bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.addBytes("value", value)
	if expireTime != nil {
		body.add("xt", strconv.FormatInt(*expireTime, 10))
	}
	_, status, err := cl.httpCall(ctx, "add", body)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// httpReplace overwrites the value under key only if it already exists,
// returning false on a 450 replace-missing response.
func (cl *Client) httpReplace(ctx context.Context, key string, value []byte, db *uint16, expireTime *int64) (bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.addBytes("value", value)
	if expireTime != nil {
		body.add("xt", strconv.FormatInt(*expireTime, 10))
	}
	_, status, err := cl.httpCall(ctx, "replace", body)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// httpAppend concatenates value onto the existing record under key,
// creating it if missing.
func (cl *Client) httpAppend(ctx context.Context, key string, value []byte, db *uint16) error {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.addBytes("value", value)
	_, status, err := cl.httpCall(ctx, "append", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("append failed for key %q", key)
	}
	return nil
}

// httpGet returns the value under key, or (nil, false) on a 450 missing
// response.
func (cl *Client) httpGet(ctx context.Context, key string, db *uint16) ([]byte, *int64, bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	resp, status, err := cl.httpCall(ctx, "get", body)
	if err != nil {
		return nil, nil, false, err
	}
	if status != http.StatusOK {
		return nil, nil, false, nil
	}
	v, _ := resp.get("value")
	var xt *int64
	if xs, ok := resp.get("xt"); ok {
		n, err := strconv.ParseInt(xs, 10, 64)
		if err == nil {
			xt = &n
		}
	}
	return []byte(v), xt, true, nil
}

// httpCheck reports whether key exists, without transferring its value.
func (cl *Client) httpCheck(ctx context.Context, key string, db *uint16) (bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	_, status, err := cl.httpCall(ctx, "check", body)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// httpRemove deletes key, returning false on a 450 missing response.
func (cl *Client) httpRemove(ctx context.Context, key string, db *uint16) (bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	_, status, err := cl.httpCall(ctx, "remove", body)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// httpSeize atomically reads and removes key, the HTTP equivalent of a
// get-then-remove done server-side.
func (cl *Client) httpSeize(ctx context.Context, key string, db *uint16) ([]byte, bool, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	resp, status, err := cl.httpCall(ctx, "seize", body)
	if err != nil {
		return nil, false, err
	}
	if status != http.StatusOK {
		return nil, false, nil
	}
	v, _ := resp.get("value")
	return []byte(v), true, nil
}

// httpCas performs a compare-and-swap on key: exactly one of oval/nval may
// be nil (absent oval = create unconditionally, absent nval = delete if
// matches); both nil is a Configuration error.
func (cl *Client) httpCas(ctx context.Context, key string, oval, nval []byte, db *uint16) (bool, error) {
	if oval == nil && nval == nil {
		return false, configErr("cas requires at least one of oval/nval")
	}
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	if oval != nil {
		body.addBytes("oval", oval)
	}
	if nval != nil {
		body.addBytes("nval", nval)
	}
	_, status, err := cl.httpCall(ctx, "cas", body)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// httpIncrement adds delta to the integer under key, seeding it with orig
// if missing; omitting orig on a missing key surfaces the server's error
// verbatim.
func (cl *Client) httpIncrement(ctx context.Context, key string, delta int64, orig *int64, db *uint16) (int64, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.add("num", strconv.FormatInt(delta, 10))
	if orig != nil {
		body.add("orig", strconv.FormatInt(*orig, 10))
	}
	resp, status, err := cl.httpCall(ctx, "increment", body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, serverErr("increment failed for key %q", key)
	}
	numStr, _ := resp.get("num")
	n, perr := strconv.ParseInt(numStr, 10, 64)
	if perr != nil {
		return 0, protoErr("malformed increment response num=%q", numStr)
	}
	return n, nil
}

// httpIncrementDouble is increment's floating-point counterpart.
func (cl *Client) httpIncrementDouble(ctx context.Context, key string, delta float64, orig *float64, db *uint16) (float64, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.addBytes("key", []byte(key))
	body.add("num", strconv.FormatFloat(delta, 'f', -1, 64))
	if orig != nil {
		body.add("orig", strconv.FormatFloat(*orig, 'f', -1, 64))
	}
	resp, status, err := cl.httpCall(ctx, "increment_double", body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, serverErr("increment_double failed for key %q", key)
	}
	numStr, _ := resp.get("num")
	n, perr := strconv.ParseFloat(numStr, 64)
	if perr != nil {
		return 0, protoErr("malformed increment_double response num=%q", numStr)
	}
	return n, nil
}

// --- Bulk operations -----------------------------------------------------

// httpGetBulk fetches every key present among keys, each looked up via its
// `_`-prefixed field name so it sorts after the control fields.
func (cl *Client) httpGetBulk(ctx context.Context, keys []string, db *uint16, atomic bool) (map[string][]byte, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	if atomic {
		body.add("atomic", "")
	}
	for _, k := range keys {
		body.add("_"+k, "")
	}
	resp, status, err := cl.httpCall(ctx, "get_bulk", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return map[string][]byte{}, nil
	}
	out := map[string][]byte{}
	for k, v := range resp.all("_") {
		out[k] = []byte(v)
	}
	return out, nil
}

// httpSetBulk stores every key/value pair in data, returning the number of
// records written.
func (cl *Client) httpSetBulk(ctx context.Context, data map[string][]byte, db *uint16, expireTime *int64, atomic bool) (int64, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	if expireTime != nil {
		body.add("xt", strconv.FormatInt(*expireTime, 10))
	}
	if atomic {
		body.add("atomic", "")
	}
	for k, v := range data {
		body.addBytes("_"+k, v)
	}
	resp, status, err := cl.httpCall(ctx, "set_bulk", body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, serverErr("set_bulk failed")
	}
	numStr, _ := resp.get("num")
	n, _ := strconv.ParseInt(numStr, 10, 64)
	return n, nil
}

// httpRemoveBulk deletes every key in keys, returning the number actually
// removed.
func (cl *Client) httpRemoveBulk(ctx context.Context, keys []string, db *uint16, atomic bool) (int64, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	if atomic {
		body.add("atomic", "")
	}
	for _, k := range keys {
		body.add("_"+k, "")
	}
	resp, status, err := cl.httpCall(ctx, "remove_bulk", body)
	if err != nil {
		return 0, err
	}
	if status != http.StatusOK {
		return 0, serverErr("remove_bulk failed")
	}
	numStr, _ := resp.get("num")
	n, _ := strconv.ParseInt(numStr, 10, 64)
	return n, nil
}

// --- Scan operations ------------------------------------------------------

// httpMatchPrefix returns up to max keys beginning with prefix, or every
// matching key if max is negative.
func (cl *Client) httpMatchPrefix(ctx context.Context, prefix string, max int64, db *uint16) ([]string, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.add("prefix", prefix)
	if max >= 0 {
		body.add("max", strconv.FormatInt(max, 10))
	}
	resp, status, err := cl.httpCall(ctx, "match_prefix", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}
	return matchedKeys(resp), nil
}

// httpMatchRegex returns up to max keys matching the regular expression.
func (cl *Client) httpMatchRegex(ctx context.Context, regex string, max int64, db *uint16) ([]string, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.add("regex", regex)
	if max >= 0 {
		body.add("max", strconv.FormatInt(max, 10))
	}
	resp, status, err := cl.httpCall(ctx, "match_regex", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}
	return matchedKeys(resp), nil
}

// httpMatchSimilar returns up to maxKeys keys within distance edits of
// origin (a fuzzy/similarity scan).
func (cl *Client) httpMatchSimilar(ctx context.Context, origin string, distance, maxKeys int64, db *uint16) ([]string, error) {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	body.add("origin", origin)
	body.add("range", strconv.FormatInt(distance, 10))
	if maxKeys >= 0 {
		body.add("max", strconv.FormatInt(maxKeys, 10))
	}
	resp, status, err := cl.httpCall(ctx, "match_similar", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, nil
	}
	return matchedKeys(resp), nil
}

// matchedKeys extracts the `_`-prefixed keys a match_* response carries.
func matchedKeys(resp *tsvBody) []string {
	m := resp.all("_")
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// --- Server-wide operations ------------------------------------------------

// httpStatus fetches the server's global status report.
func (cl *Client) httpStatus(ctx context.Context) (map[string]string, error) {
	resp, status, err := cl.httpCall(ctx, "status", &tsvBody{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverErr("status failed")
	}
	out := make(map[string]string, len(resp.keys))
	for i, k := range resp.keys {
		out[k] = resp.values[i]
	}
	return out, nil
}

// httpReport fetches the per-database report.
func (cl *Client) httpReport(ctx context.Context) (map[string]string, error) {
	resp, status, err := cl.httpCall(ctx, "report", &tsvBody{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverErr("report failed")
	}
	out := make(map[string]string, len(resp.keys))
	for i, k := range resp.keys {
		out[k] = resp.values[i]
	}
	return out, nil
}

// httpClear removes every record from db.
func (cl *Client) httpClear(ctx context.Context, db *uint16) error {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	_, status, err := cl.httpCall(ctx, "clear", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("clear failed")
	}
	return nil
}

// httpSynchronize flushes db to durable storage, optionally running the
// named post-sync command.
func (cl *Client) httpSynchronize(ctx context.Context, hard bool, command string, db *uint16) error {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	if hard {
		body.add("hard", "")
	}
	if command != "" {
		body.add("command", command)
	}
	_, status, err := cl.httpCall(ctx, "synchronize", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("synchronize failed")
	}
	return nil
}

// httpVacuum compacts db; a positive step compacts incrementally.
func (cl *Client) httpVacuum(ctx context.Context, step int64, db *uint16) error {
	body := &tsvBody{}
	body.add("DB", cl.httpDBField(db))
	if step > 0 {
		body.add("step", strconv.FormatInt(step, 10))
	}
	_, status, err := cl.httpCall(ctx, "vacuum", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("vacuum failed")
	}
	return nil
}

// httpTuneReplication points the server's replication at a new master, or
// detaches it when host is empty.
func (cl *Client) httpTuneReplication(ctx context.Context, host string, port int, timestamp int64, interval time.Duration) error {
	body := &tsvBody{}
	if host != "" {
		body.add("host", host)
		body.add("port", strconv.Itoa(port))
	}
	if timestamp > 0 {
		body.add("ts", strconv.FormatInt(timestamp, 10))
	}
	if interval > 0 {
		body.add("iv", strconv.FormatInt(int64(interval/time.Millisecond), 10))
	}
	_, status, err := cl.httpCall(ctx, "tune_replication", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("tune_replication failed")
	}
	return nil
}

// UlogFile describes one update-log file as reported by ulog_list.
type UlogFile struct {
	Name      string
	Size      int64
	Timestamp time.Time
}

// httpUlogList lists the server's update-log files.
func (cl *Client) httpUlogList(ctx context.Context) ([]UlogFile, error) {
	resp, status, err := cl.httpCall(ctx, "ulog_list", &tsvBody{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverErr("ulog_list failed")
	}
	out := make([]UlogFile, 0, len(resp.keys))
	for i, name := range resp.keys {
		meta := resp.values[i]
		tab := bytes.IndexByte([]byte(meta), ':')
		if tab < 0 {
			continue
		}
		size, _ := strconv.ParseInt(meta[:tab], 10, 64)
		nanos, _ := strconv.ParseInt(meta[tab+1:], 10, 64)
		out = append(out, UlogFile{Name: name, Size: size, Timestamp: time.Unix(0, nanos)})
	}
	return out, nil
}

// httpUlogRemove prunes update-log files older than timestamp.
func (cl *Client) httpUlogRemove(ctx context.Context, timestamp int64) error {
	body := &tsvBody{}
	body.add("ts", strconv.FormatInt(timestamp, 10))
	_, status, err := cl.httpCall(ctx, "ulog_remove", body)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("ulog_remove failed")
	}
	return nil
}

// httpPlayScript runs a server-side script via the HTTP surface (the
// Binary Protocol A `script` op's HTTP counterpart), used when a caller
// needs script results to ride the same connection as other HTTP calls.
func (cl *Client) httpPlayScript(ctx context.Context, name string, params map[string][]byte) (map[string][]byte, error) {
	body := &tsvBody{}
	body.add("name", name)
	for k, v := range params {
		body.addBytes("_"+k, v)
	}
	resp, status, err := cl.httpCall(ctx, "play_script", body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, serverErr("play_script %q failed", name)
	}
	out := map[string][]byte{}
	for k, v := range resp.all("_") {
		out[k] = []byte(v)
	}
	return out, nil
}
