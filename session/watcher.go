package session

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-session-identity/broadcast"
	"github.com/rs/zerolog/log"
)

// Watcher applies auth changed events from other tabs to this tab
type Watcher struct {
	machine  *Machine
	notifier broadcast.Notifier
}

func NewWatcher(m *Machine, n broadcast.Notifier) *Watcher {
	return &Watcher{machine: m, notifier: n}
}

// Start subscribes before returning, so any change published afterwards is
// seen. For every event from another tab the main slot is re-synced from the
// store and the fresh snapshot is handed to onChange. The returned func stops
// the watcher and waits for it to exit.
func (w *Watcher) Start(ctx context.Context, onChange func(Snapshot)) func() {
	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := w.notifier.Subscribe(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer unsubscribe()
		w.loop(ctx, events, onChange)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func (w *Watcher) loop(ctx context.Context, events <-chan broadcast.Event, onChange func(Snapshot)) {
	store := w.machine.Store()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Origin == store.Origin() {
				continue
			}
			if err := store.Resync(ctx); err != nil {
				log.Err(err).Str("origin", ev.Origin).Msg("resync after auth change failed")
			}
			if onChange != nil {
				onChange(w.machine.Snapshot(ctx))
			}
		}
	}
}
