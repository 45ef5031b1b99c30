package types

// Queue is a non-blocking FIFO shared between a producer and a consumer that may
// live on another goroutine or in another process.
//
// Put never blocks; an implementation that cannot accept an item returns an
// error instead. TryGet returns ok=false when no item is currently available.
type Queue[T any] interface {
	// Put appends an item without blocking.
	Put(item T) error

	// TryGet removes and returns the oldest item if one is available.
	TryGet() (item T, ok bool, err error)

	// IsEmpty reports whether the queue currently holds no items.
	//
	// Cross-process implementations may report true for a short while after a
	// Put from another process; see EventuallyConsistent.
	IsEmpty() bool
}

// ErrorSink is the queue a controller pushes captured fatal errors into.
// The controller only ever writes to it; the owner reads.
type ErrorSink = Queue[*FatalError]

// Drainer is implemented by queues that can hand over every remaining item at once.
type Drainer interface {
	// DrainItems removes and returns all items currently available, oldest first.
	DrainItems() []any
}

// EventuallyConsistent marks queues whose emptiness check may lag behind a Put
// made elsewhere. Readers should poll for a grace period before concluding the
// queue is empty.
type EventuallyConsistent interface {
	EventuallyConsistent()
}
