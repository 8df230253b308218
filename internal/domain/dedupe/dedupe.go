// Package dedupe remembers the outcome of increments by idempotency key so
// client retries do not count twice.
package dedupe

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Deduper runs a function at most once per key and remembers its result.
type Deduper interface {
	// Do runs fn for a new key and remembers the result when fn succeeds.
	// A key that already succeeded returns the remembered total with
	// replayed set. Concurrent calls for the same key wait for the first.
	// Failed attempts are not remembered, so the key can be retried.
	Do(ctx context.Context, key string, fn func(context.Context) (int, error)) (total int, replayed bool, err error)

	Size() int64
}

// call is an attempt in flight for one key.
type call struct {
	done  chan struct{}
	total int
	err   error
}

// results is the remembered key -> total mapping.
type results interface {
	Get(key string) (int, bool)
	Add(key string, total int) bool
	Len() int
}

// unbounded is a plain map used when no size limit is configured.
type unbounded map[string]int

func (u unbounded) Get(key string) (int, bool) {
	v, ok := u[key]
	return v, ok
}

func (u unbounded) Add(key string, total int) bool {
	u[key] = total
	return false
}

func (u unbounded) Len() int { return len(u) }

// inMemoryDeduper keeps results in an LRU when bounded (maxSize > 0) and in
// a map when unbounded.
type inMemoryDeduper struct {
	mu       sync.Mutex
	maxSize  int
	seen     results
	inflight map[string]*call
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize:  10_000,
		inflight: make(map[string]*call),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.maxSize > 0 {
		cache, err := lru.New[string, int](d.maxSize)
		if err != nil {
			// lru.New only fails for non-positive sizes.
			panic(err)
		}
		d.seen = cache
	} else {
		d.seen = make(unbounded)
	}
	return d
}

// Do implements Deduper.Do.
func (d *inMemoryDeduper) Do(ctx context.Context, key string, fn func(context.Context) (int, error)) (int, bool, error) {
	d.mu.Lock()
	if total, ok := d.seen.Get(key); ok {
		d.mu.Unlock()
		return total, true, nil
	}
	if c, ok := d.inflight[key]; ok {
		d.mu.Unlock()
		select {
		case <-c.done:
		case <-ctx.Done():
			return 0, false, ctx.Err()
		}
		if c.err != nil {
			return 0, false, c.err
		}
		return c.total, true, nil
	}
	c := &call{done: make(chan struct{})}
	d.inflight[key] = c
	d.mu.Unlock()

	c.total, c.err = fn(ctx)

	d.mu.Lock()
	delete(d.inflight, key)
	if c.err == nil {
		d.seen.Add(key, c.total)
	}
	d.mu.Unlock()
	close(c.done)

	return c.total, false, c.err
}

// Size returns the number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.seen.Len())
}
