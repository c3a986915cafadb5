package kt

import (
	"bytes"
	"context"
	"strconv"

	"github.com/coleifer/kt/pkg/ktcodec"
)

// QueryBuilder compiles typed predicates into the sibling server's table
// "search" command (binary protocol B's misc sub-protocol, spec §4.6): a
// sequence of NUL-joined condition/order/limit blobs plus a trailing
// aggregator selector. Every chain method returns a new, independent
// QueryBuilder; the receiver is left untouched, matching the immutable-
// after-construction contract the Codec is also held to.
type QueryBuilder struct {
	conditions []string
	orders     []string
	limit      *int64
	offset     *int64
}

// NewQueryBuilder returns an empty QueryBuilder matching every record.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

func (q *QueryBuilder) clone() *QueryBuilder {
	c := &QueryBuilder{
		conditions: append([]string(nil), q.conditions...),
		orders:     append([]string(nil), q.orders...),
	}
	if q.limit != nil {
		l := *q.limit
		c.limit = &l
	}
	if q.offset != nil {
		o := *q.offset
		c.offset = &o
	}
	return c
}

// OpNegate is OR'd into an opcode to invert a condition's sense.
const OpNegate = 1 << 24

// Filter adds an "addcond" condition: column, a server opcode (opaque,
// passed through verbatim; OR in OpNegate to negate it), and its operand.
func (q *QueryBuilder) Filter(column string, opcode int, value string) *QueryBuilder {
	c := q.clone()
	c.conditions = append(c.conditions, joinNUL("addcond", column, strconv.Itoa(opcode), value))
	return c
}

// Expression is one precompiled (column, opcode, value) predicate, the
// value model.Field's predicate methods (Eq, Contains, Between, ...)
// produce so callers never have to pass opcodes by hand.
type Expression struct {
	Column string
	Opcode int
	Value  string
}

// Where ANDs every expr onto the query, equivalent to calling Filter once
// per Expression.
func (q *QueryBuilder) Where(exprs ...Expression) *QueryBuilder {
	c := q.clone()
	for _, e := range exprs {
		c = c.Filter(e.Column, e.Opcode, e.Value)
	}
	return c
}

// Order type constants for OrderBy, passed through to the server's
// "setorder" token verbatim.
const (
	OrderAsc  = 0
	OrderDesc = 1
)

// OrderBy adds a "setorder" directive for column.
func (q *QueryBuilder) OrderBy(column string, orderType int) *QueryBuilder {
	c := q.clone()
	c.orders = append(c.orders, joinNUL("setorder", column, strconv.Itoa(orderType)))
	return c
}

// defaultLimit is the server's own "no limit" sentinel: 2^31, the Python
// original's literal `1 << 31` preserved verbatim (see DESIGN.md) rather
// than math.MaxInt32, since setlimit's two fields are independent and the
// spec pins this exact constant.
const defaultLimit = int64(1) << 31

// Limit caps the result set to n records.
func (q *QueryBuilder) Limit(n int64) *QueryBuilder {
	c := q.clone()
	c.limit = &n
	return c
}

// Offset skips the first n matching records.
func (q *QueryBuilder) Offset(n int64) *QueryBuilder {
	c := q.clone()
	c.offset = &n
	return c
}

func joinNUL(tokens ...string) string {
	var buf bytes.Buffer
	for i, t := range tokens {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(t)
	}
	return buf.String()
}

// cmdBlobs assembles every condition, order, and (if either Limit or
// Offset was set) the setlimit directive, in that order.
func (q *QueryBuilder) cmdBlobs() [][]byte {
	var out [][]byte
	for _, c := range q.conditions {
		out = append(out, []byte(c))
	}
	for _, o := range q.orders {
		out = append(out, []byte(o))
	}
	if q.limit != nil || q.offset != nil {
		limit := defaultLimit
		offset := int64(0)
		if q.limit != nil {
			limit = *q.limit
		}
		if q.offset != nil {
			offset = *q.offset
		}
		out = append(out, []byte(joinNUL("setlimit", strconv.FormatInt(limit, 10), strconv.FormatInt(offset, 10))))
	}
	return out
}

// search issues misc("search", cmdBlobs, cmd) and returns the raw item
// list the server replied with.
func (q *QueryBuilder) search(ctx context.Context, cl *Client, cmd string) ([][]byte, error) {
	if cl.cfg.kind != TokyoTyrant {
		return nil, configErr("QueryBuilder.search requires a TokyoTyrant client (table extension)")
	}
	args := q.cmdBlobs()
	if cmd != "" {
		args = append(args, []byte(cmd))
	}
	var items [][]byte
	err := cl.withConn(ctx, func(conn *Connection) error {
		code, out, err := ttMisc(conn, "search", 0, args)
		if err != nil {
			return err
		}
		if code != 0 {
			return serverErr("search failed (code %d)", code)
		}
		items = out
		return nil
	})
	return items, err
}

// Execute returns the keys of every matching record, in the requested
// order (search(..., None) -> key list).
func (q *QueryBuilder) Execute(ctx context.Context, cl *Client) ([]string, error) {
	items, err := q.search(ctx, cl, "")
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = string(it)
	}
	return keys, nil
}

// Delete removes every matching record (search(..., "out")) and returns
// the number of records that were actually deleted.
func (q *QueryBuilder) Delete(ctx context.Context, cl *Client) (int64, error) {
	items, err := q.search(ctx, cl, "out")
	if err != nil {
		return 0, err
	}
	return int64(len(items)), nil
}

// Row is one matching record as returned by Get: its key plus its
// TabMap-decoded columns.
type Row struct {
	Key     string
	Columns map[string]string
}

// Get returns every matching record's key and decoded columns
// (search(..., "get") -> interleaved key/row blobs, rows TabMap-encoded).
func (q *QueryBuilder) Get(ctx context.Context, cl *Client) ([]Row, error) {
	items, err := q.search(ctx, cl, "get")
	if err != nil {
		return nil, err
	}
	if len(items)%2 != 0 {
		return nil, protoErr("search get returned an odd item count (%d)", len(items))
	}
	rows := make([]Row, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		bm, err := ktcodec.DecodeTabMap(items[i+1])
		if err != nil {
			return nil, protoErr("malformed search row: %v", err)
		}
		cols := make(map[string]string, len(bm))
		for k, v := range bm {
			cols[k] = string(v)
		}
		rows = append(rows, Row{Key: string(items[i]), Columns: cols})
	}
	return rows, nil
}

// Count returns the number of matching records (search(..., "count")).
func (q *QueryBuilder) Count(ctx context.Context, cl *Client) (int64, error) {
	items, err := q.search(ctx, cl, "count")
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, protoErr("search count returned no items")
	}
	n, perr := strconv.ParseInt(string(items[0]), 10, 64)
	if perr != nil {
		return 0, protoErr("malformed search count result %q", items[0])
	}
	return n, nil
}
