package sink

import (
	"sync"

	"github.com/arloliu/looper/types"
)

// Memory is an unbounded in-process FIFO safe for concurrent use.
type Memory[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
}

var (
	_ types.ErrorSink = (*Memory[*types.FatalError])(nil)
	_ types.Drainer   = (*Memory[any])(nil)
)

// NewMemory creates an empty in-process queue.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{}
}

// Put appends item. It fails only after Close.
func (m *Memory[T]) Put(item T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return types.ErrSinkClosed
	}
	m.items = append(m.items, item)

	return nil
}

// TryGet removes and returns the oldest item.
func (m *Memory[T]) TryGet() (T, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false, nil
	}

	item := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]

	return item, true, nil
}

// IsEmpty reports whether no item is queued.
func (m *Memory[T]) IsEmpty() bool {
	return m.Len() == 0
}

// Len returns the number of queued items.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.items)
}

// DrainItems removes and returns every queued item, oldest first.
func (m *Memory[T]) DrainItems() []any {
	m.mu.Lock()
	items := m.items
	m.items = nil
	m.mu.Unlock()

	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}

	return out
}

// Close rejects further puts. Queued items stay readable.
func (m *Memory[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
