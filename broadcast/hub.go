package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const subscriberBuffer = 16

var _ Notifier = (*Hub)(nil)

// Hub is an in-process Notifier. Sends never block the publisher: a subscriber
// whose buffer is full misses that event, which is safe because every event
// means the same thing.
type Hub struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]chan Event
	nowFunc func() time.Time
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[int]chan Event),
		nowFunc: time.Now,
	}
}

func (h *Hub) Publish(_ context.Context, origin string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deliver(Event{Origin: origin, At: h.nowFunc()})
	return nil
}

// deliver fans an already built event out; caller holds h.mu
func (h *Hub) deliver(ev Event) {
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Debug().Int("subscriber", id).Msg("broadcast subscriber full, event dropped")
		}
	}
}

func (h *Hub) Subscribe(ctx context.Context) (<-chan Event, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel
}
