package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/metrics"
	"github.com/iamvishnuk/poll-server/internal/redis"
)

const (
	initialReconnectBackoff = 250 * time.Millisecond
	maxReconnectBackoff     = 15 * time.Second
)

// EventSink consumes decoded change events. The broadcast dispatcher
// implements it.
type EventSink interface {
	Dispatch(ev domain.ChangeEvent)
}

// Bridge subscribes to the poll event channel pattern and forwards every
// decoded change event to the sink. It is the only consumer of the backend
// stream in the process; every server instance runs exactly one.
//
// A lost stream is re-established with capped exponential backoff. Events
// missed during an outage are not replayed: every event carries the full
// current counts, so the next delivery heals the gap.
type Bridge struct {
	rdb        *goredis.Client
	sink       EventSink
	clock      clockwork.Clock
	ready      chan struct{}
	readyOnce  sync.Once
	subscribed atomic.Bool
}

// New creates a bridge. Call Run to start consuming.
func New(rdb *goredis.Client, sink EventSink, clock clockwork.Clock) *Bridge {
	return &Bridge{
		rdb:   rdb,
		sink:  sink,
		clock: clock,
		ready: make(chan struct{}),
	}
}

// Ready is closed once the first subscription is confirmed. The server
// waits on it before accepting traffic, so no committed event published
// after startup can be missed for lack of a subscriber.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Subscribed reports whether the event stream subscription is currently
// established. The readiness endpoint checks it: an instance without the
// stream serves stale websocket state and should not receive traffic.
func (b *Bridge) Subscribed() bool {
	return b.subscribed.Load()
}

// Run subscribes and consumes until ctx is cancelled. Returns the context's
// error; all stream failures are handled by resubscribing.
func (b *Bridge) Run(ctx context.Context) error {
	backoff := initialReconnectBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		pubsub := b.rdb.PSubscribe(ctx, redis.EventChannelPattern)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Event bridge subscribe failed, retrying",
				"pattern", redis.EventChannelPattern,
				"backoff", backoff,
				"error", err,
			)
			metrics.BridgeReconnectionsTotal.Inc()
			if !b.sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff)
			continue
		}

		slog.Info("Event bridge subscribed", "pattern", redis.EventChannelPattern)
		metrics.BridgeSubscriptionActive.Set(1)
		b.subscribed.Store(true)
		b.signalReady()
		backoff = initialReconnectBackoff

		b.consume(ctx, pubsub)
		_ = pubsub.Close()
		metrics.BridgeSubscriptionActive.Set(0)
		b.subscribed.Store(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}

		slog.Warn("Event bridge stream lost, resubscribing", "backoff", backoff)
		metrics.BridgeReconnectionsTotal.Inc()
		if !b.sleep(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

// consume drains the subscription channel until it closes or ctx is done.
// The client transparently re-issues the subscription on transient
// connection loss, so a temporary outage pauses this loop rather than
// ending it.
func (b *Bridge) consume(ctx context.Context, pubsub *goredis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			b.handleMessage(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) handleMessage(payload string) {
	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		metrics.BridgeMessagesTotal.WithLabelValues("decode_error").Inc()
		slog.Warn("Dropping malformed change event", "error", err)
		return
	}

	start := b.clock.Now()
	b.sink.Dispatch(ev)
	metrics.BridgeMessagesTotal.WithLabelValues("dispatched").Inc()
	metrics.BridgeMessageLatency.Observe(b.clock.Since(start).Seconds())
}

func (b *Bridge) signalReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

func (b *Bridge) sleep(ctx context.Context, d time.Duration) bool {
	timer := b.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.Chan():
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectBackoff {
		return maxReconnectBackoff
	}
	return next
}
