package server

import "sync"

// hub fans values out to subscribers. A slow subscriber loses its oldest
// pending value rather than blocking the publisher.
type hub[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
	size int
}

func newHub[T any](size int) *hub[T] {
	if size < 1 {
		size = 1
	}
	return &hub[T]{subs: make(map[chan T]struct{}), size: size}
}

func (h *hub[T]) subscribe() (<-chan T, func()) {
	ch := make(chan T, h.size)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

func (h *hub[T]) publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
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
