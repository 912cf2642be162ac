package engine

import "sync"

// hubBuffer is the per-subscriber channel capacity. A subscriber that falls
// this far behind misses events rather than stalling the publisher.
const hubBuffer = 64

// hub fans values out to subscriber channels.
type hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]chan T
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[int]chan T)}
}

// subscribe returns a channel of published values and a cancel function.
// The channel is closed once cancel returns; cancel is idempotent.
func (h *hub[T]) subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan T, hubBuffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (h *hub[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
