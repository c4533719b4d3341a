package server

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/ashita-ai/scratchnotebook/internal/catalog"
)

// Broker fans out catalog.ChangeEvents to SSE subscribers. It implements
// catalog.Notifier: the store calls Publish synchronously right after each
// mutation commits, so there is no polling loop to run and nothing to
// Start — subscribers just see events land as pads change.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewBroker creates a new SSE broker ready to receive catalog.Publish calls.
func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

var _ catalog.Notifier = (*Broker)(nil)

// Publish renders a ChangeEvent as an SSE message and fans it out to every
// subscriber. It never blocks: a subscriber with a full buffer drops the
// event rather than stalling the caller's commit path.
func (b *Broker) Publish(event catalog.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("broker: marshal change event", "error", err)
		return
	}
	b.broadcast(formatSSE(event.Kind, string(payload)))
}

// Subscribe returns a channel that receives SSE-formatted events.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast sends an event to all subscribers. Slow subscribers that have
// a full buffer are skipped (their event is dropped) to prevent one slow
// client from blocking all others.
func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// subscriber buffer full, drop this event for them.
		}
	}
}

// formatSSE formats a notification as a Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}
