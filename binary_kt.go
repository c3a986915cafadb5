package kt

import (
	"github.com/coleifer/kt/pkg/kbin"
)

// Binary Protocol A: the cache ("Kyoto Tycoon") server's binary RPC, used
// for get/set/remove, their bulk forms, and server-side scripts. Every
// frame is a single op byte followed by a body; the server replies with an
// echoed op byte followed by its own body. 0xBF echoed back means the
// server signaled failure for this request.
//
// Response bodies are not self-lengthed as a whole: each op's entries
// carry their own length prefixes, so a response is read incrementally
// off the Connection rather than as one pre-sized buffer, the same way
// kbin.Reader is handed one already-complete slice for each fixed-size
// chunk we do know the length of ahead of time.
const (
	opKTScript     byte = 0xB4
	opKTSetBulk    byte = 0xB8
	opKTRemoveBulk byte = 0xB9
	opKTGetBulk    byte = 0xBA
	opKTError      byte = 0xBF
)

const flagNoReply uint32 = 1 << 0

// errScriptFailed is the sentinel used internally to recognize a
// pending-script-failure 0xBF response; Client.Script maps it to (nil,
// nil) rather than propagating it, per spec §4.4.
var errScriptFailed = serverErr("script execution failed")

// readEchoedOp reads and checks the one-byte op echo that starts every
// binary-A response. An echoed 0xBF is a Server error (framing completed,
// Connection stays reusable); anything else unexpected is a fatal Protocol
// error.
func readEchoedOp(conn *Connection, wantOp byte) error {
	echoed, err := conn.ReadExact(1)
	if err != nil {
		return err
	}
	switch echoed[0] {
	case wantOp:
		return nil
	case opKTError:
		if wantOp == opKTScript {
			return errScriptFailed
		}
		return serverErr("server returned error for op 0x%02x", wantOp)
	default:
		conn.markDead()
		return protoErr("unexpected echoed op 0x%02x for request op 0x%02x", echoed[0], wantOp)
	}
}

// readU32Field reads a single big-endian u32 off the Connection.
func readU32Field(conn *Connection) (uint32, error) {
	buf, err := conn.ReadExact(4)
	if err != nil {
		return 0, err
	}
	r := &kbin.Reader{Src: buf}
	v := r.U32()
	return v, r.Complete()
}

// ktSetBulk issues set_bulk (0xB8): u32 flags ∥ u32 n_recs ∥ n × record,
// replying with u32 n_written.
func ktSetBulk(conn *Connection, recs []kbin.Record, noReply bool) (uint32, error) {
	var body []byte
	flags := uint32(0)
	if noReply {
		flags |= flagNoReply
	}
	body = kbin.AppendU32(body, flags)
	body = kbin.AppendU32(body, uint32(len(recs)))
	for _, rec := range recs {
		body = kbin.AppendRecord(body, rec)
	}

	req := append([]byte{opKTSetBulk}, body...)
	if err := conn.WriteAll(req); err != nil {
		return 0, err
	}
	if noReply {
		return 0, nil
	}
	if err := readEchoedOp(conn, opKTSetBulk); err != nil {
		return 0, err
	}
	return readU32Field(conn)
}

// ktGetBulk issues get_bulk (0xBA): u32 flags ∥ u32 n_keys ∥ n × (u16 db ∥
// u32 klen ∥ key), replying with u32 n_recs ∥ n × record.
func ktGetBulk(conn *Connection, keys []kbin.KeyEntry) ([]kbin.Record, error) {
	var body []byte
	body = kbin.AppendU32(body, 0) // flags
	body = kbin.AppendU32(body, uint32(len(keys)))
	for _, ke := range keys {
		body = kbin.AppendKeyEntry(body, ke)
	}

	req := append([]byte{opKTGetBulk}, body...)
	if err := conn.WriteAll(req); err != nil {
		return nil, err
	}
	if err := readEchoedOp(conn, opKTGetBulk); err != nil {
		return nil, err
	}
	n, err := readU32Field(conn)
	if err != nil {
		return nil, err
	}

	recs := make([]kbin.Record, 0, n)
	for i := uint32(0); i < n; i++ {
		rec, err := readKTRecord(conn)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ktRemoveBulk issues remove_bulk (0xB9): the same key-list layout as
// get_bulk, replying with u32 n_removed.
func ktRemoveBulk(conn *Connection, keys []kbin.KeyEntry) (uint32, error) {
	var body []byte
	body = kbin.AppendU32(body, 0) // flags
	body = kbin.AppendU32(body, uint32(len(keys)))
	for _, ke := range keys {
		body = kbin.AppendKeyEntry(body, ke)
	}

	req := append([]byte{opKTRemoveBulk}, body...)
	if err := conn.WriteAll(req); err != nil {
		return 0, err
	}
	if err := readEchoedOp(conn, opKTRemoveBulk); err != nil {
		return 0, err
	}
	return readU32Field(conn)
}

// ktScriptParam is one (key, value) input to a server-side script.
type ktScriptParam struct {
	Key   []byte
	Value []byte
}

// ktScript issues script (0xB4): u32 flags ∥ u32 name_len ∥ u32 n_params ∥
// name ∥ n × (u32 klen ∥ u32 vlen ∥ key ∥ value), replying with u32 n_out ∥
// n × (u32 klen ∥ u32 vlen ∥ key ∥ value).
func ktScript(conn *Connection, name string, params []ktScriptParam) ([]ktScriptParam, error) {
	var body []byte
	body = kbin.AppendU32(body, 0) // flags
	body = kbin.AppendU32(body, uint32(len(name)))
	body = kbin.AppendU32(body, uint32(len(params)))
	body = append(body, name...)
	for _, p := range params {
		body = kbin.AppendU32(body, uint32(len(p.Key)))
		body = kbin.AppendU32(body, uint32(len(p.Value)))
		body = append(body, p.Key...)
		body = append(body, p.Value...)
	}

	req := append([]byte{opKTScript}, body...)
	if err := conn.WriteAll(req); err != nil {
		return nil, err
	}
	if err := readEchoedOp(conn, opKTScript); err != nil {
		return nil, err
	}
	n, err := readU32Field(conn)
	if err != nil {
		return nil, err
	}

	out := make([]ktScriptParam, 0, n)
	for i := uint32(0); i < n; i++ {
		hdr, err := conn.ReadExact(8)
		if err != nil {
			return nil, err
		}
		r := &kbin.Reader{Src: hdr}
		klen := r.U32()
		vlen := r.U32()
		if err := r.Complete(); err != nil {
			conn.markDead()
			return nil, protoErr("malformed script output header: %v", err)
		}
		kv, err := conn.ReadExact(int(klen) + int(vlen))
		if err != nil {
			return nil, err
		}
		out = append(out, ktScriptParam{Key: kv[:klen:klen], Value: kv[klen:]})
	}
	return out, nil
}

// readKTRecord reads one (db, key, value, expire) triple off conn in the
// bulk response layout: u16 db ∥ u32 klen ∥ u32 vlen ∥ i64 xt ∥ key ∥ value.
func readKTRecord(conn *Connection) (kbin.Record, error) {
	hdr, err := conn.ReadExact(2 + 4 + 4 + 8)
	if err != nil {
		return kbin.Record{}, err
	}
	r := &kbin.Reader{Src: hdr}
	db16 := uint16(r.U8())<<8 | uint16(r.U8())
	klen := r.U32()
	vlen := r.U32()
	xt := r.I64()
	if err := r.Complete(); err != nil {
		conn.markDead()
		return kbin.Record{}, protoErr("malformed record header: %v", err)
	}
	kv, err := conn.ReadExact(int(klen) + int(vlen))
	if err != nil {
		return kbin.Record{}, err
	}
	return kbin.Record{DB: db16, Key: kv[:klen:klen], Value: kv[klen:], Expire: xt}, nil
}
