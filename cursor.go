package kt

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
)

// cursorSeq is the per-process monotonic counter backing Cursor ids: the
// server materializes an id lazily the first time it's used in a jump
// call, so ids need only be unique, never registered up front.
var cursorSeq int64

// cursorState is one of the four states spec §4.7's cursor state machine
// moves between.
type cursorState int

const (
	cursorUnopened cursorState = iota
	cursorValid
	cursorInvalid
	cursorClosed
)

// Cursor walks a Kyoto Tycoon database's records in storage order via the
// HTTP cur_* command family. A Cursor is not safe for concurrent use.
type Cursor struct {
	cl    *Client
	db    *uint16
	id    int64
	state cursorState
}

// NewCursor allocates a Cursor bound to db (the Client's default database
// when db is nil). The Cursor starts unopened; call Jump or JumpBack
// before Step/Get.
func (cl *Client) NewCursor(db *uint16) *Cursor {
	return &Cursor{cl: cl, db: db, id: atomic.AddInt64(&cursorSeq, 1), state: cursorUnopened}
}

func (c *Cursor) body() *tsvBody {
	body := &tsvBody{}
	body.add("CUR", strconv.FormatInt(c.id, 10))
	body.add("DB", c.cl.httpDBField(c.db))
	return body
}

func (c *Cursor) transition(ok bool) {
	if ok {
		c.state = cursorValid
	} else {
		c.state = cursorInvalid
	}
}

// Jump positions the cursor at the first record (or the first record
// whose key is >= key, when key is non-empty), moving unopened/invalid ->
// valid on success.
func (c *Cursor) Jump(ctx context.Context, key string) error {
	body := c.body()
	if key != "" {
		body.addBytes("key", []byte(key))
	}
	_, status, err := c.cl.httpCall(ctx, "cur_jump", body)
	if err != nil {
		return err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK && status != 450 {
		return serverErr("cur_jump failed")
	}
	return nil
}

// JumpBack positions the cursor at the last record (or the last record
// whose key is <= key), the reverse-order counterpart of Jump.
func (c *Cursor) JumpBack(ctx context.Context, key string) error {
	body := c.body()
	if key != "" {
		body.addBytes("key", []byte(key))
	}
	_, status, err := c.cl.httpCall(ctx, "cur_jump_back", body)
	if err != nil {
		return err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK && status != 450 {
		return serverErr("cur_jump_back failed")
	}
	return nil
}

// Step advances the cursor to the next record, moving valid -> invalid on
// a 450 end-of-iteration response (the cursor is exhausted, not an error).
func (c *Cursor) Step(ctx context.Context) (bool, error) {
	_, status, err := c.cl.httpCall(ctx, "cur_step", c.body())
	if err != nil {
		return false, err
	}
	c.transition(status == http.StatusOK)
	return status == http.StatusOK, nil
}

// StepBack moves the cursor to the previous record.
func (c *Cursor) StepBack(ctx context.Context) (bool, error) {
	_, status, err := c.cl.httpCall(ctx, "cur_step_back", c.body())
	if err != nil {
		return false, err
	}
	c.transition(status == http.StatusOK)
	return status == http.StatusOK, nil
}

// SetValue overwrites the value of the record the cursor currently points
// at, optionally also stepping to the next record afterward.
func (c *Cursor) SetValue(ctx context.Context, value []byte, step bool) error {
	body := c.body()
	body.addBytes("value", value)
	if step {
		body.add("step", "")
	}
	_, status, err := c.cl.httpCall(ctx, "cur_set_value", body)
	if err != nil {
		return err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return serverErr("cur_set_value failed")
	}
	return nil
}

// Remove deletes the record the cursor currently points at.
func (c *Cursor) Remove(ctx context.Context) error {
	_, status, err := c.cl.httpCall(ctx, "cur_remove", c.body())
	if err != nil {
		return err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return serverErr("cur_remove failed")
	}
	return nil
}

// GetKey returns the key of the record the cursor currently points at.
func (c *Cursor) GetKey(ctx context.Context, step bool) (string, bool, error) {
	body := c.body()
	if step {
		body.add("step", "")
	}
	resp, status, err := c.cl.httpCall(ctx, "cur_get_key", body)
	if err != nil {
		return "", false, err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return "", false, nil
	}
	key, _ := resp.get("key")
	return key, true, nil
}

// GetValue returns the value of the record the cursor currently points
// at.
func (c *Cursor) GetValue(ctx context.Context, step bool) ([]byte, bool, error) {
	body := c.body()
	if step {
		body.add("step", "")
	}
	resp, status, err := c.cl.httpCall(ctx, "cur_get_value", body)
	if err != nil {
		return nil, false, err
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return nil, false, nil
	}
	v, _ := resp.get("value")
	return []byte(v), true, nil
}

// Get returns both the key and value of the record the cursor currently
// points at, moving valid -> invalid on a 450 response.
func (c *Cursor) Get(ctx context.Context, step bool) (key string, value []byte, ok bool, err error) {
	body := c.body()
	if step {
		body.add("step", "")
	}
	resp, status, rerr := c.cl.httpCall(ctx, "cur_get", body)
	if rerr != nil {
		return "", nil, false, rerr
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return "", nil, false, nil
	}
	k, _ := resp.get("key")
	v, _ := resp.get("value")
	return k, []byte(v), true, nil
}

// Seize returns and atomically removes the record the cursor currently
// points at.
func (c *Cursor) Seize(ctx context.Context) (key string, value []byte, ok bool, err error) {
	resp, status, rerr := c.cl.httpCall(ctx, "cur_seize", c.body())
	if rerr != nil {
		return "", nil, false, rerr
	}
	c.transition(status == http.StatusOK)
	if status != http.StatusOK {
		return "", nil, false, nil
	}
	k, _ := resp.get("key")
	v, _ := resp.get("value")
	return k, []byte(v), true, nil
}

// Delete releases the cursor server-side. Valid from any state; the
// Cursor transitions to closed regardless of its prior state.
func (c *Cursor) Delete(ctx context.Context) error {
	_, status, err := c.cl.httpCall(ctx, "cur_delete", c.body())
	c.state = cursorClosed
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return serverErr("cur_delete failed")
	}
	return nil
}

// Each walks every record from the cursor's current position forward,
// calling fn(key, value) until fn returns false or iteration is
// exhausted. Callers typically Jump first to start from the beginning.
func (c *Cursor) Each(ctx context.Context, fn func(key string, value []byte) bool) error {
	for {
		k, v, ok, err := c.Get(ctx, true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !fn(k, v) {
			return nil
		}
	}
}
