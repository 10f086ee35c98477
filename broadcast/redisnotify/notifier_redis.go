package redisnotify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-identity/broadcast"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the pub/sub channel carrying auth changed events
const DefaultChannel = "auth_changed"

var _ broadcast.Notifier = (*RedisNotifier)(nil)

// RedisNotifier delivers events between processes sharing a Redis.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	nowFunc func() time.Time
}

// NewRedisNotifier publishes on "<namespace>:<DefaultChannel>"
func NewRedisNotifier(client redis.UniversalClient, namespace string) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: namespace + ":" + DefaultChannel,
		nowFunc: time.Now,
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, origin string) error {
	payload, err := json.Marshal(broadcast.Event{Origin: origin, At: n.nowFunc()})
	if err != nil {
		return fmt.Errorf("[RedisNotifier.Publish] encode: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("[RedisNotifier.Publish] %w", err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed before returning so an
// event published right after Subscribe is not lost.
func (n *RedisNotifier) Subscribe(ctx context.Context) (<-chan broadcast.Event, func()) {
	ctx, stop := context.WithCancel(ctx)
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		log.Err(err).Str("channel", n.channel).Msg("redis subscribe failed")
	}

	out := make(chan broadcast.Event, 16)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		defer cancel()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev broadcast.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Err(err).Msg("discarding malformed auth changed event")
					continue
				}
				select {
				case out <- ev:
				default:
					log.Debug().Msg("broadcast subscriber full, event dropped")
				}
			}
		}
	}()
	return out, cancel
}
