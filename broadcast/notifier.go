// Package broadcast carries "auth changed" signals between tabs.
//
// An Event deliberately carries no session data. Receivers re-read the
// credential store, so a lost or reordered event can delay convergence but
// never install stale state.
package broadcast

import (
	"context"
	"time"
)

// Event announces that the cross-tab credentials changed.
type Event struct {
	Origin string    `json:"origin"` // tab id of the publisher, lets a tab skip its own echo
	At     time.Time `json:"at"`
}

// Notifier publishes and delivers Events to every subscriber of the same origin space.
type Notifier interface {
	// Publish announces a change made by origin
	Publish(ctx context.Context, origin string) error

	// Subscribe returns a channel of events and a cancel func that closes it.
	// The channel is also closed when ctx is done.
	Subscribe(ctx context.Context) (<-chan Event, func())
}
