package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"runstreak/core"
)

type subscriber struct {
	ch    chan core.Event
	types map[core.EventType]struct{} // nil means all types
}

// Hub is a simple pub/sub for broadcasting challenge events to channels.
// Subscribers may narrow to specific event types, e.g. only eliminations
// for a notifier that pings the family chat.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe registers a channel receiving every event.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.subscribe(buffer, nil)
}

// SubscribeTypes registers a channel receiving only the given event types.
func (h *Hub) SubscribeTypes(buffer int, types ...core.EventType) (int, <-chan core.Event) {
	filter := make(map[core.EventType]struct{}, len(types))
	for _, t := range types {
		filter[t] = struct{}{}
	}
	return h.subscribe(buffer, filter)
}

func (h *Hub) subscribe(buffer int, types map[core.EventType]struct{}) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, types: types}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.types != nil {
			if _, ok := sub.types[ev.Type]; !ok {
				continue
			}
		}
		receivers = append(receivers, sub.ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
