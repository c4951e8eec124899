package capture

import "sync"

// Mailbox is a single-slot, latest-wins handoff between one producer and one
// consumer. Put never blocks and overwrites an unread value.
type Mailbox[T any] struct {
	mu    sync.Mutex
	value T
	full  bool
	ready chan struct{}
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{ready: make(chan struct{}, 1)}
}

func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.value = v
	m.full = true
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Take empties the slot. ok is false when nothing was waiting.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.full {
		return v, false
	}
	v = m.value
	var zero T
	m.value, m.full = zero, false
	return v, true
}

// Ready is signalled after Put. A signal may be stale; always check Take.
func (m *Mailbox[T]) Ready() <-chan struct{} {
	return m.ready
}
