package segtrace

import (
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// Tags is an insertion-ordered set of string key/value pairs attached
// to a span. Order does not affect correctness but keeps serialized
// records deterministic.
//
// Tags is NOT safe for concurrent use on its own; Span synchronizes
// access to the live store, and finished records are immutable.
type Tags struct {
	keys   []string
	values map[string]string
}

func newTags() *Tags {
	return &Tags{values: make(map[string]string)}
}

// set inserts or overwrites a pair, with no redaction. Internal
// mechanisms use it to write reserved-prefixed keys into records.
func (t *Tags) set(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// setPublic is the externally-reachable write path. Writes to keys
// under the reserved prefix are dropped silently.
func (t *Tags) setPublic(key, value string) {
	if strings.HasPrefix(key, internalTagPrefix) {
		return
	}
	t.set(key, value)
}

// lookup returns the stored value. Reserved-prefixed keys read as
// absent regardless of what was written.
func (t *Tags) lookup(key string) (string, bool) {
	if strings.HasPrefix(key, internalTagPrefix) {
		return "", false
	}
	value, ok := t.values[key]
	return value, ok
}

// get bypasses redaction. Collector-side consumers see every key.
func (t *Tags) get(key string) (string, bool) {
	value, ok := t.values[key]
	return value, ok
}

func (t *Tags) remove(key string) {
	if _, ok := t.values[key]; !ok {
		return
	}
	delete(t.values, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
}

// Get returns the value recorded for key, or false if absent.
func (t *Tags) Get(key string) (string, bool) {
	return t.get(key)
}

// Keys returns the tag keys in insertion order.
func (t *Tags) Keys() []string {
	keys := make([]string, len(t.keys))
	copy(keys, t.keys)
	return keys
}

// Len returns the number of tags.
func (t *Tags) Len() int {
	return len(t.keys)
}

// Map returns the tags as a plain map.
func (t *Tags) Map() map[string]string {
	m := make(map[string]string, len(t.values))
	for k, v := range t.values {
		m[k] = v
	}
	return m
}

func (t *Tags) clone() *Tags {
	c := &Tags{
		keys:   make([]string, len(t.keys)),
		values: make(map[string]string, len(t.values)),
	}
	copy(c.keys, t.keys)
	for k, v := range t.values {
		c.values[k] = v
	}
	return c
}

// jsonBufPool amortizes buffers for tag serialization.
var jsonBufPool = sync.Pool{
	New: func() any { return make([]byte, 0, 256) },
}

// MarshalJSON encodes the tags as a JSON object in insertion order.
func (t *Tags) MarshalJSON() ([]byte, error) {
	buf := jsonBufPool.Get().([]byte)[:0]
	defer func() { jsonBufPool.Put(buf) }() //nolint:staticcheck // slice reuse is intentional

	buf = append(buf, '{')
	for i, key := range t.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := sonic.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		vb, err := sonic.Marshal(t.values[key])
		if err != nil {
			return nil, err
		}
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}
