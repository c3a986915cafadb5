package kt

import (
	"strconv"

	"github.com/coleifer/kt/pkg/kbin"
	"github.com/coleifer/kt/pkg/ktcodec"
)

// Binary Protocol B: the sibling ("Tokyo Tyrant") server's binary RPC.
// Two request framings share the 0xC8 magic byte: per-command "magic
// framed" requests (0xC8 ∥ op ∥ payload, echoing a one-byte status) and the
// "miscellaneous" sub-protocol (0xC8 0x90 ∥ ...) used for commands that
// don't have a dedicated op byte.
//
// Per-command op bytes follow the documented Tokyo Tyrant binary protocol
// layout; spec.md leaves these unenumerated beyond the 0xC8 magic and the
// 0x90 misc sub-op, so this is the Open Question resolution recorded in
// DESIGN.md.
const (
	ttMagic byte = 0xC8

	opTTPut        byte = 0x10
	opTTPutKeep    byte = 0x11
	opTTPutCat     byte = 0x12
	opTTPutShl     byte = 0x13
	opTTPutNR      byte = 0x18
	opTTOut        byte = 0x20
	opTTGet        byte = 0x30
	opTTMGet       byte = 0x31
	opTTVsiz       byte = 0x38
	opTTIterInit   byte = 0x50
	opTTIterNext   byte = 0x51
	opTTFwmKeys    byte = 0x58
	opTTAddInt     byte = 0x60
	opTTAddDouble  byte = 0x61
	opTTExt        byte = 0x68
	opTTSync       byte = 0x70
	opTTVanish     byte = 0x71
	opTTCopy       byte = 0x72
	opTTRestore    byte = 0x73
	opTTSetMst     byte = 0x78
	opTTRNum       byte = 0x80
	opTTSize       byte = 0x81
	opTTStat       byte = 0x88
	opTTMisc       byte = 0x90
)

// ttStatusOK is the status byte every magic-framed command echoes on
// success; any nonzero byte is a failure.
const ttStatusOK byte = 0x00

// ttWriteFramed writes the 0xC8 ∥ op ∥ payload request.
func ttWriteFramed(conn *Connection, op byte, payload []byte) error {
	req := make([]byte, 0, 2+len(payload))
	req = append(req, ttMagic, op)
	req = append(req, payload...)
	return conn.WriteAll(req)
}

// ttReadStatus reads the one-byte status that starts every magic-framed
// response. A nonzero status is reported as ok=false with a nil error
// (framing completed, Connection stays reusable); each caller decides
// whether that means a Logical failure (e.g. "no record") or a Server
// error for its command.
func ttReadStatus(conn *Connection) (ok bool, err error) {
	b, err := conn.ReadExact(1)
	if err != nil {
		return false, err
	}
	return b[0] == ttStatusOK, nil
}

func ttReadBlob(conn *Connection) ([]byte, error) {
	n, err := readU32Field(conn)
	if err != nil {
		return nil, err
	}
	return conn.ReadExact(int(n))
}

func ttAppendBlob(dst []byte, b []byte) []byte {
	return kbin.AppendBlob(dst, b)
}

// ttPut issues put/putkeep/putcat (0x10/0x11/0x12): blob key ∥ blob value,
// returning whether the write succeeded (false only for putkeep on an
// existing key, a Logical failure per spec §7).
func ttPut(conn *Connection, op byte, key, value []byte) (bool, error) {
	var body []byte
	body = ttAppendBlob(body, key)
	body = ttAppendBlob(body, value)
	if err := ttWriteFramed(conn, op, body); err != nil {
		return false, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// ttPutShl issues putshl (0x13): blob key ∥ blob value ∥ u32 width.
func ttPutShl(conn *Connection, key, value []byte, width uint32) (bool, error) {
	var body []byte
	body = ttAppendBlob(body, key)
	body = ttAppendBlob(body, value)
	body = kbin.AppendU32(body, width)
	if err := ttWriteFramed(conn, opTTPutShl, body); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttPutNR issues putnr (0x18): as put, but the server never replies.
func ttPutNR(conn *Connection, key, value []byte) error {
	var body []byte
	body = ttAppendBlob(body, key)
	body = ttAppendBlob(body, value)
	return ttWriteFramed(conn, opTTPutNR, body)
}

// ttOut issues out (0x20): blob key, returning whether a record was
// actually removed.
func ttOut(conn *Connection, key []byte) (bool, error) {
	body := ttAppendBlob(nil, key)
	if err := ttWriteFramed(conn, opTTOut, body); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttGet issues get (0x30): blob key → blob value, or ok=false for "no
// record" (a Logical failure).
func ttGet(conn *Connection, key []byte) ([]byte, bool, error) {
	body := ttAppendBlob(nil, key)
	if err := ttWriteFramed(conn, opTTGet, body); err != nil {
		return nil, false, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	v, err := ttReadBlob(conn)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// ttPair is one (key, value) entry of a misc bulk command's flat blob
// list, shared by putlist's request encoding and getlist/range's response
// decoding.
type ttPair struct {
	Key   []byte
	Value []byte
}

// ttMiscPutList issues the putlist misc command: a flat key,value,key,
// value,... blob list. Per spec §4.6 this always reports success (result
// code 0) regardless of any individual record's outcome.
func ttMiscPutList(conn *Connection, pairs []ttPair) error {
	args := make([][]byte, 0, len(pairs)*2)
	for _, p := range pairs {
		args = append(args, p.Key, p.Value)
	}
	code, _, err := ttMisc(conn, "putlist", 0, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return serverErr("putlist failed")
	}
	return nil
}

// ttMiscOutList issues the outlist misc command: a flat blob key list.
// Per spec §4.6 this always reports success regardless of which keys
// were actually present.
func ttMiscOutList(conn *Connection, keys [][]byte) error {
	code, _, err := ttMisc(conn, "outlist", 0, keys)
	if err != nil {
		return err
	}
	if code != 0 {
		return serverErr("outlist failed")
	}
	return nil
}

// ttMiscGetList issues the getlist misc command: a flat blob key list →
// a flat alternating key,value blob list of the records found (missing
// keys are simply absent). An odd-length response is a Protocol error.
func ttMiscGetList(conn *Connection, keys [][]byte) ([]ttPair, error) {
	code, items, err := ttMisc(conn, "getlist", 0, keys)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, serverErr("getlist failed")
	}
	return ttPairsFromFlat(items)
}

// ttMiscGetRange issues the range misc command: blob start ∥ blob
// str(maxKeys) ∥ optional blob stop, a B-tree-only scan over [start,
// stop) returning up to maxKeys records (0 = unlimited). Decoded the
// same flat key,value format as getlist.
func ttMiscGetRange(conn *Connection, start string, stop *string, maxKeys int) ([]ttPair, error) {
	args := [][]byte{[]byte(start), []byte(strconv.Itoa(maxKeys))}
	if stop != nil {
		args = append(args, []byte(*stop))
	}
	code, items, err := ttMisc(conn, "range", 0, args)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, serverErr("range failed")
	}
	return ttPairsFromFlat(items)
}

// ttPairsFromFlat pairs up a flat alternating key,value blob list, the
// shared decoding shape of getlist and range.
func ttPairsFromFlat(items [][]byte) ([]ttPair, error) {
	if len(items)%2 != 0 {
		return nil, protoErr("misc bulk response has odd item count (%d)", len(items))
	}
	out := make([]ttPair, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		out = append(out, ttPair{Key: items[i], Value: items[i+1]})
	}
	return out, nil
}

// ttVsiz issues vsiz (0x38): blob key → i32 size, or (0, false) if the key
// is missing (server replies -1, surfaced here as a Logical failure).
func ttVsiz(conn *Connection, key []byte) (int32, bool, error) {
	body := ttAppendBlob(nil, key)
	if err := ttWriteFramed(conn, opTTVsiz, body); err != nil {
		return 0, false, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	buf, err := conn.ReadExact(4)
	if err != nil {
		return 0, false, err
	}
	r := &kbin.Reader{Src: buf}
	size := r.I32()
	if size < 0 {
		return 0, false, nil
	}
	return size, true, nil
}

// ttIterInit issues iterinit (0x50): no payload, rewinds the server's
// legacy iterator cursor to the first record. There is exactly one such
// cursor per connection, shared by every client talking to that
// connection — the same caveat the original cursor-walk API carries.
func ttIterInit(conn *Connection) error {
	ok, err := ttNoPayload(conn, opTTIterInit)
	if err != nil {
		return err
	}
	if !ok {
		return serverErr("iterinit failed")
	}
	return nil
}

// ttIterNext issues iternext (0x51): no payload → blob key ∥ blob value,
// advancing the iterator cursor. ok=false means the iterator is exhausted
// (a Logical failure, not an error).
func ttIterNext(conn *Connection) (key, value []byte, ok bool, err error) {
	if err := ttWriteFramed(conn, opTTIterNext, nil); err != nil {
		return nil, nil, false, err
	}
	ok, err = ttReadStatus(conn)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	key, err = ttReadBlob(conn)
	if err != nil {
		return nil, nil, false, err
	}
	value, err = ttReadBlob(conn)
	if err != nil {
		return nil, nil, false, err
	}
	return key, value, true, nil
}

// ttFwmKeys issues fwmkeys (0x58): blob prefix ∥ i32 max → a key list,
// encoded on the wire with the same varint-length-prefixed List format
// used for in-value lists.
func ttFwmKeys(conn *Connection, prefix []byte, max int32) ([][]byte, error) {
	var body []byte
	body = ttAppendBlob(body, prefix)
	body = kbin.AppendI32(body, max)
	if err := ttWriteFramed(conn, opTTFwmKeys, body); err != nil {
		return nil, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	payload, err := ttReadBlob(conn)
	if err != nil {
		return nil, err
	}
	list, err := ktcodec.DecodeList(payload)
	if err != nil {
		return nil, protoErr("malformed fwmkeys response: %v", err)
	}
	return list, nil
}

// ttAddInt issues addint (0x60): blob key ∥ i32 delta → i32.
func ttAddInt(conn *Connection, key []byte, delta int32) (int32, error) {
	var body []byte
	body = ttAppendBlob(body, key)
	body = kbin.AppendI32(body, delta)
	if err := ttWriteFramed(conn, opTTAddInt, body); err != nil {
		return 0, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, serverErr("addint failed (non-numeric existing value)")
	}
	buf, err := conn.ReadExact(4)
	if err != nil {
		return 0, err
	}
	r := &kbin.Reader{Src: buf}
	return r.I32(), r.Complete()
}

// ttAddDouble issues adddouble (0x61): blob key ∥ i64 int_part ∥ i64
// frac_part (×1e12) → the same pair.
func ttAddDouble(conn *Connection, key []byte, delta float64) (float64, error) {
	intPart := int64(delta)
	fracPart := int64((delta - float64(intPart)) * 1e12)
	var body []byte
	body = ttAppendBlob(body, key)
	body = kbin.AppendI64(body, intPart)
	body = kbin.AppendI64(body, fracPart)
	if err := ttWriteFramed(conn, opTTAddDouble, body); err != nil {
		return 0, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, serverErr("adddouble failed (non-numeric existing value)")
	}
	buf, err := conn.ReadExact(16)
	if err != nil {
		return 0, err
	}
	r := &kbin.Reader{Src: buf}
	ip := r.I64()
	fp := r.I64()
	if err := r.Complete(); err != nil {
		return 0, err
	}
	return float64(ip) + float64(fp)/1e12, nil
}

// Ext opt bits (spec §4.6).
const (
	ExtOptLockRecords uint32 = 1 << 0
	ExtOptLockAll     uint32 = 1 << 1
)

// ttExt issues ext (0x68): blob name ∥ u32 opts ∥ blob key ∥ blob value →
// blob result.
func ttExt(conn *Connection, name string, opts uint32, key, value []byte) ([]byte, error) {
	var body []byte
	body = ttAppendBlob(body, []byte(name))
	body = kbin.AppendU32(body, opts)
	body = ttAppendBlob(body, key)
	body = ttAppendBlob(body, value)
	if err := ttWriteFramed(conn, opTTExt, body); err != nil {
		return nil, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serverErr("ext %q failed", name)
	}
	return ttReadBlob(conn)
}

// ttNoPayload issues a magic-framed command with no request payload and no
// response payload beyond the status byte (sync, vanish).
func ttNoPayload(conn *Connection, op byte) (bool, error) {
	if err := ttWriteFramed(conn, op, nil); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttCopy issues copy (0x72): blob path.
func ttCopy(conn *Connection, path string) (bool, error) {
	body := ttAppendBlob(nil, []byte(path))
	if err := ttWriteFramed(conn, opTTCopy, body); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttRestore issues restore (0x73): blob path ∥ i64 timestamp ∥ u32 opts.
func ttRestore(conn *Connection, path string, timestamp int64, opts uint32) (bool, error) {
	var body []byte
	body = ttAppendBlob(body, []byte(path))
	body = kbin.AppendI64(body, timestamp)
	body = kbin.AppendU32(body, opts)
	if err := ttWriteFramed(conn, opTTRestore, body); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttSetMst issues setmst (0x78): blob host ∥ i32 port ∥ u32 ts — tunes
// replication from a master, the binary-protocol counterpart of the HTTP
// tune_replication command.
func ttSetMst(conn *Connection, host string, port int32, ts uint32) (bool, error) {
	var body []byte
	body = ttAppendBlob(body, []byte(host))
	body = kbin.AppendI32(body, port)
	body = kbin.AppendU32(body, ts)
	if err := ttWriteFramed(conn, opTTSetMst, body); err != nil {
		return false, err
	}
	return ttReadStatus(conn)
}

// ttU64Result issues a magic-framed command (rnum, size) whose successful
// response body is a single u64.
func ttU64Result(conn *Connection, op byte) (uint64, error) {
	if err := ttWriteFramed(conn, op, nil); err != nil {
		return 0, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, serverErr("op 0x%02x failed", op)
	}
	buf, err := conn.ReadExact(8)
	if err != nil {
		return 0, err
	}
	r := &kbin.Reader{Src: buf}
	v := r.U64()
	return v, r.Complete()
}

// ttStat issues stat (0x88): no payload → a blob TSV status report,
// parsed into a string map the same way the HTTP /status endpoint is.
func ttStat(conn *Connection) (map[string]string, error) {
	if err := ttWriteFramed(conn, opTTStat, nil); err != nil {
		return nil, err
	}
	ok, err := ttReadStatus(conn)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serverErr("stat failed")
	}
	payload, err := ttReadBlob(conn)
	if err != nil {
		return nil, err
	}
	return parseTSVReport(payload), nil
}

// ttMisc issues the miscellaneous sub-protocol: 0xC8 0x90 ∥ u32 name_len ∥
// u32 opts ∥ u32 n_args ∥ name ∥ n × blob, replying with u32 result_code ∥
// u32 n_items ∥ n × blob.
func ttMisc(conn *Connection, name string, opts uint32, args [][]byte) (resultCode uint32, items [][]byte, err error) {
	var body []byte
	body = kbin.AppendU32(body, uint32(len(name)))
	body = kbin.AppendU32(body, opts)
	body = kbin.AppendU32(body, uint32(len(args)))
	body = append(body, name...)
	for _, a := range args {
		body = ttAppendBlob(body, a)
	}
	req := make([]byte, 0, 2+len(body))
	req = append(req, ttMagic, opTTMisc)
	req = append(req, body...)
	if werr := conn.WriteAll(req); werr != nil {
		return 0, nil, werr
	}

	code, err := readU32Field(conn)
	if err != nil {
		return 0, nil, err
	}
	n, err := readU32Field(conn)
	if err != nil {
		return 0, nil, err
	}
	out := make([][]byte, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := ttReadBlob(conn)
		if err != nil {
			return 0, nil, err
		}
		out = append(out, b)
	}
	return code, out, nil
}

// MiscOptNoUpdateLog is opts bit 0 for the misc sub-protocol: suppress the
// update log entry this command would otherwise generate.
const MiscOptNoUpdateLog uint32 = 1 << 0

// parseTSVReport parses a "key\tvalue\n"-per-line blob into a map, used for
// the binary stat command's report. The HTTP /status and /report endpoints
// do not use it; they read their fields from the decoded tsvBody.
func parseTSVReport(b []byte) map[string]string {
	out := map[string]string{}
	start := 0
	for i := 0; i <= len(b); i++ {
		if i == len(b) || b[i] == '\n' {
			line := b[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			for j, c := range line {
				if c == '\t' {
					out[string(line[:j])] = string(line[j+1:])
					break
				}
			}
		}
	}
	return out
}
