// Package dataloader implements a key-coalesced, batch-dispatching
// loader: within a per-request window of `delay`, or until `max_size`
// keys accumulate, collect all Load calls, deduplicate by key, issue
// one batched call via BatchFunc, then dispatch individual results
// back to every waiting caller. A batch failure fails every waiting
// caller identically. One loader instance exists per batch group,
// keyed by the fingerprint of the rendered outbound request.
package dataloader

import (
	"sync"
	"time"

	"github.com/gqlforge/gqlforge/internal/chunk"
)

// BatchFunc resolves a deduplicated set of keys in one upstream call.
// It must return a value (or error) for every key in keys; a key
// absent from the result map resolves with ErrNoResult.
type BatchFunc[K comparable, V any] func(keys []K) (map[K]V, error)

// Loader batches and deduplicates Load calls issued within a delay
// window or up to a maximum batch size.
type Loader[K comparable, V any] struct {
	batch    BatchFunc[K, V]
	delay    time.Duration
	maxSize  int

	mu      sync.Mutex
	pending *window[K, V]
}

type result[V any] struct {
	value V
	err   error
}

// window accumulates one batch. Keys collect into a chunk rope: every
// Append is O(1) and shares structure with the rope the previous caller
// saw, so a window under concurrent load never reallocates its key set;
// fire realizes it once.
type window[K comparable, V any] struct {
	keys    chunk.Chunk[K]
	waiters map[K][]chan result[V]
	timer   *time.Timer
	fired   bool
}

// New constructs a Loader. maxSize <= 0 means unbounded (only the
// delay window bounds batch size).
func New[K comparable, V any](batch BatchFunc[K, V], delay time.Duration, maxSize int) *Loader[K, V] {
	return &Loader[K, V]{batch: batch, delay: delay, maxSize: maxSize}
}

// Load enqueues key into the current (or a fresh) batch window and
// blocks until that window dispatches and resolves.
func (l *Loader[K, V]) Load(key K) (V, error) {
	ch := make(chan result[V], 1)

	l.mu.Lock()
	w := l.pending
	if w == nil {
		w = &window[K, V]{waiters: make(map[K][]chan result[V])}
		l.pending = w
		w.timer = time.AfterFunc(l.delay, func() { l.fire(w) })
	}
	if _, seen := w.waiters[key]; !seen {
		w.keys = w.keys.Append(key)
	}
	w.waiters[key] = append(w.waiters[key], ch)
	full := l.maxSize > 0 && len(w.waiters) >= l.maxSize
	l.mu.Unlock()

	if full {
		l.fire(w)
	}

	r := <-ch
	return r.value, r.err
}

// LoadAll loads every key concurrently and returns results in the same
// order as keys.
func (l *Loader[K, V]) LoadAll(keys []K) ([]V, []error) {
	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	var wg sync.WaitGroup
	wg.Add(len(keys))
	for i, k := range keys {
		go func(i int, k K) {
			defer wg.Done()
			values[i], errs[i] = l.Load(k)
		}(i, k)
	}
	wg.Wait()
	return values, errs
}

// fire dispatches w exactly once, however it was triggered (timer
// expiry or max_size reached), and clears it from l.pending if it is
// still the active window.
func (l *Loader[K, V]) fire(w *window[K, V]) {
	l.mu.Lock()
	if w.fired {
		l.mu.Unlock()
		return
	}
	w.fired = true
	w.timer.Stop()
	if l.pending == w {
		l.pending = nil
	}
	keys := w.keys.AsVec()
	waiters := w.waiters
	l.mu.Unlock()

	values, err := l.batch(keys)
	for _, k := range keys {
		chans := waiters[k]
		if err != nil {
			for _, ch := range chans {
				ch <- result[V]{err: err}
			}
			continue
		}
		v, ok := values[k]
		if !ok {
			for _, ch := range chans {
				ch <- result[V]{err: ErrNoResult}
			}
			continue
		}
		for _, ch := range chans {
			ch <- result[V]{value: v}
		}
	}
}

// ErrNoResult is returned for a key the batch function did not include
// in its result map.
var ErrNoResult = errNoResult{}

type errNoResult struct{}

func (errNoResult) Error() string { return "dataloader: batch function returned no result for key" }
