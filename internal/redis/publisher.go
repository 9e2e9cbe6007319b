package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/platform/retry"
)

// EventChannelPattern matches every per-poll event channel. The event bridge
// PSUBSCRIBEs to this pattern so new polls need no subscription churn.
const EventChannelPattern = "poll:events:*"

// EventChannel returns the pub/sub channel name for one poll.
func EventChannel(pollID uuid.UUID) string {
	return "poll:events:" + pollID.String()
}

// publishPolicy bounds retries on publish. Publishing is safe to repeat:
// events carry full snapshots, so a duplicate delivery is absorbed by the
// per-connection sequence check.
var publishPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// Publisher fans change events out over Redis Pub/Sub.
type Publisher struct {
	rdb *goredis.Client
}

var _ domain.EventPublisher = (*Publisher)(nil)

func NewPublisher(rdb *goredis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// PublishEvent publishes a change event to the poll's channel.
func (p *Publisher) PublishEvent(ctx context.Context, ev domain.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = retry.DoVoid(ctx, publishPolicy, classifyStoreErr, func() error {
		return p.rdb.Publish(ctx, EventChannel(ev.PollID), data).Err()
	})
	if err != nil {
		return readErr("publish event", err)
	}
	return nil
}
