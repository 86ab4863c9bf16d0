package vkng

import "sync"

// table maps port handles to wrapper objects. Handle 0 is never issued.
type table[T any] struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]T
}

func (t *table[T]) add(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.items == nil {
		t.items = map[uint64]T{}
	}
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[T]) get(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *table[T]) remove(h uint64) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	delete(t.items, h)
	return v, ok
}

// removeIf drops every entry for which match is true and returns them.
func (t *table[T]) removeIf(match func(T) bool) []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	for h, v := range t.items {
		if match(v) {
			out = append(out, v)
			delete(t.items, h)
		}
	}
	return out
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
