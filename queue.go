package kt

import (
	"context"
	"strconv"
)

// Queue wraps Kyoto Tycoon's Lua `queue_*` server-side script family
// (queue_add, queue_madd, queue_pop/queue_rpop, queue_peek/queue_rpeek,
// queue_size, queue_remove/queue_rremove, queue_clear) behind a small
// typed API. It adds no wire behavior of its own: every method is a
// Client.Script call under a fixed name, so it only makes sense against a
// Kyoto Tycoon client with the corresponding Lua extension loaded.
type Queue struct {
	cl   *Client
	name string
}

// NewQueue returns a Queue named name, a Lua-side list identified by that
// name the way multiple named queues can coexist in the same database.
func (cl *Client) NewQueue(name string) *Queue {
	return &Queue{cl: cl, name: name}
}

func (q *Queue) script(ctx context.Context, proc string, params map[string]any) (map[string]any, error) {
	if params == nil {
		params = map[string]any{}
	}
	params["queue"] = q.name
	return q.cl.Script(ctx, proc, params)
}

// Add appends value to the tail of the queue.
func (q *Queue) Add(ctx context.Context, value any) error {
	_, err := q.script(ctx, "queue_add", map[string]any{"value": value})
	return err
}

// AddMulti appends every value in values, in order.
func (q *Queue) AddMulti(ctx context.Context, values []any) error {
	_, err := q.script(ctx, "queue_madd", map[string]any{"values": values})
	return err
}

// Pop removes and returns the item at the head of the queue, or (nil,
// false) if the queue is empty.
func (q *Queue) Pop(ctx context.Context) (any, bool, error) {
	return q.popFrom(ctx, "queue_pop")
}

// RPop removes and returns the item at the tail of the queue.
func (q *Queue) RPop(ctx context.Context) (any, bool, error) {
	return q.popFrom(ctx, "queue_rpop")
}

func (q *Queue) popFrom(ctx context.Context, proc string) (any, bool, error) {
	out, err := q.script(ctx, proc, nil)
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		return nil, false, nil
	}
	return out["value"], true, nil
}

// Peek returns the item at the head of the queue without removing it.
func (q *Queue) Peek(ctx context.Context) (any, bool, error) {
	return q.popFrom(ctx, "queue_peek")
}

// RPeek returns the item at the tail of the queue without removing it.
func (q *Queue) RPeek(ctx context.Context) (any, bool, error) {
	return q.popFrom(ctx, "queue_rpeek")
}

// Count returns the number of items currently in the queue.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	out, err := q.script(ctx, "queue_size", nil)
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	n, perr := strconv.ParseInt(toString(out["size"]), 10, 64)
	if perr != nil {
		return 0, protoErr("malformed queue_size response: %v", perr)
	}
	return n, nil
}

// Remove removes up to n items from the head of the queue, returning the
// number actually removed.
func (q *Queue) Remove(ctx context.Context, n int64) (int64, error) {
	return q.removeVia(ctx, "queue_remove", n)
}

// RRemove removes up to n items from the tail of the queue.
func (q *Queue) RRemove(ctx context.Context, n int64) (int64, error) {
	return q.removeVia(ctx, "queue_rremove", n)
}

func (q *Queue) removeVia(ctx context.Context, proc string, n int64) (int64, error) {
	out, err := q.script(ctx, proc, map[string]any{"n": strconv.FormatInt(n, 10)})
	if err != nil {
		return 0, err
	}
	if out == nil {
		return 0, nil
	}
	removed, perr := strconv.ParseInt(toString(out["num"]), 10, 64)
	if perr != nil {
		return 0, protoErr("malformed %s response: %v", proc, perr)
	}
	return removed, nil
}

// Clear removes every item from the queue.
func (q *Queue) Clear(ctx context.Context) error {
	_, err := q.script(ctx, "queue_clear", nil)
	return err
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}
