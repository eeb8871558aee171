// Package source is a development event source for the activity engine: an
// in-process broadcast hub, HTTP/websocket stream endpoints, and a scripted
// scenario driver that emits realistic delegation sessions.
package source

import "sync"

// Hub fans out raw stream messages to every connected subscriber. Publish
// never blocks; a subscriber that cannot keep up loses messages rather than
// stalling the producer.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	nextID int
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		subs:   make(map[int]chan []byte),
		buffer: buffer,
	}
}

// Subscribe registers a new receiver. The returned cancel function closes
// the channel and removes the registration.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan []byte, h.buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if existing, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(existing)
		}
		h.mu.Unlock()
	}
}

// Publish broadcasts one message to every subscriber.
func (h *Hub) Publish(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribers reports the current receiver count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
