package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/metrics"
)

// instancesKey is the shared hash of instance heartbeats.
const instancesKey = "instances"

// instanceLivenessWindow is how long a heartbeat counts as alive. Stale
// entries are filtered on read rather than expired, so a crashed instance
// disappears from listings without anyone cleaning up after it.
const instanceLivenessWindow = 60 * time.Second

// InstanceInfo describes one server instance's latest heartbeat.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	Timestamp  int64  `json:"timestamp"`
	Version    string `json:"version"`
}

// InstanceRegistry announces this instance to the rest of the fleet through
// periodic heartbeats. The event bridge makes instances interchangeable for
// clients; the registry is what makes the fleet itself observable (active
// count, running versions) from any single instance.
type InstanceRegistry struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	id       string
	version  string
	interval time.Duration
}

// NewInstanceRegistry creates a registry for this instance. id must be unique
// per process; version is the build version reported alongside the heartbeat.
func NewInstanceRegistry(rdb *goredis.Client, clock clockwork.Clock, id, version string, interval time.Duration) *InstanceRegistry {
	return &InstanceRegistry{
		rdb:      rdb,
		clock:    clock,
		id:       id,
		version:  version,
		interval: interval,
	}
}

// Run registers immediately, then heartbeats on the interval until ctx is
// cancelled, unregistering on the way out.
func (r *InstanceRegistry) Run(ctx context.Context) {
	r.register(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.register(ctx)
		case <-ctx.Done():
			r.unregister()
			return
		}
	}
}

// register writes this instance's heartbeat and refreshes the active-instance
// gauge. Heartbeats are best effort: a failure is logged and retried on the
// next tick, and the liveness window absorbs a few missed beats.
func (r *InstanceRegistry) register(ctx context.Context) {
	info := InstanceInfo{
		InstanceID: r.id,
		Timestamp:  r.clock.Now().Unix(),
		Version:    r.version,
	}

	data, err := json.Marshal(info)
	if err != nil {
		return
	}

	if err := r.rdb.HSet(ctx, instancesKey, r.id, data).Err(); err != nil {
		slog.Warn("Instance heartbeat failed", "instance_id", r.id, "error", err)
		return
	}

	active, err := ActiveInstances(ctx, r.rdb, r.clock)
	if err != nil {
		return
	}
	metrics.InstancesActive.Set(float64(len(active)))
}

// unregister removes this instance's entry during graceful shutdown. The
// run context is already cancelled by then, so a fresh one is used; if the
// delete is lost the liveness window expires the entry anyway.
func (r *InstanceRegistry) unregister() {
	if err := r.rdb.HDel(context.Background(), instancesKey, r.id).Err(); err != nil {
		slog.Warn("Instance unregister failed", "instance_id", r.id, "error", err)
	}
}

// ActiveInstances lists every instance with a heartbeat inside the liveness
// window. Entries that fail to decode are skipped.
func ActiveInstances(ctx context.Context, rdb *goredis.Client, clock clockwork.Clock) ([]InstanceInfo, error) {
	entries, err := rdb.HGetAll(ctx, instancesKey).Result()
	if err != nil {
		return nil, err
	}

	cutoff := clock.Now().Add(-instanceLivenessWindow).Unix()

	active := make([]InstanceInfo, 0, len(entries))
	for _, data := range entries {
		var info InstanceInfo
		if err := json.Unmarshal([]byte(data), &info); err != nil {
			continue
		}
		if info.Timestamp > cutoff {
			active = append(active, info)
		}
	}

	return active, nil
}
