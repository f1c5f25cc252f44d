package controllers

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// memo remembers results for the lifetime of one sync cycle. Concurrent
// callers asking for the same key share a single call.
type memo[V any] struct {
	mu      sync.Mutex
	results map[string]memoResult[V]
	group   singleflight.Group
}

type memoResult[V any] struct {
	value V
	err   error
}

func newMemo[V any]() *memo[V] {
	return &memo[V]{results: make(map[string]memoResult[V])}
}

func (m *memo[V]) do(key string, fn func() (V, error)) (V, error) {
	m.mu.Lock()
	if r, ok := m.results[key]; ok {
		m.mu.Unlock()
		return r.value, r.err
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key, func() (any, error) {
		value, err := fn()
		// a cancelled call says nothing about the key
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			m.mu.Lock()
			m.results[key] = memoResult[V]{value: value, err: err}
			m.mu.Unlock()
		}
		return value, err
	})
	value, _ := v.(V)
	return value, err
}

func (m *memo[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.results)
}
