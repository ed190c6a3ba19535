// Package events is the in-process fan-out for domain events emitted by
// webhook processing.
package events

import (
	"sync"

	"github.com/paygate-ng/paygate/internal/models"
)

// WebhookProcessed is published after a webhook delivery has been applied
// to the transaction store.
type WebhookProcessed struct {
	Provider  string
	Reference string
	Status    models.Status
	Payload   []byte
}

type Listener func(event WebhookProcessed)

type Hub struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) Subscribe(listener Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, listener)
}

// Publish invokes listeners synchronously in subscription order.
func (h *Hub) Publish(event WebhookProcessed) {
	h.mu.RLock()
	listeners := make([]Listener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.RUnlock()

	for _, listener := range listeners {
		listener(event)
	}
}
