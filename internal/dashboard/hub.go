// Package dashboard builds snapshots of queue, job and rate-limit state and
// pushes them to websocket subscribers.
package dashboard

import (
	"sync"
)

const defaultBuffer = 16

// Subscription receives encoded feed frames. C is closed when the hub drops
// the subscriber or Close is called.
type Subscription struct {
	ch   chan []byte
	hub  *Hub
	once sync.Once
}

func (s *Subscription) C() <-chan []byte { return s.ch }

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub fans frames out to subscribers. Delivery never blocks: a subscriber
// whose buffer is full is dropped.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{ch: make(chan []byte, h.buffer), hub: h}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.once.Do(func() { close(s.ch) })
	}
}

// Broadcast delivers frame to every subscriber and returns how many were
// dropped for being too slow.
func (h *Hub) Broadcast(frame []byte) (dropped int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- frame:
		default:
			delete(h.subs, s)
			s.once.Do(func() { close(s.ch) })
			dropped++
		}
	}
	return dropped
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
