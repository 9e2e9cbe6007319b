package broadcast

import (
	"log/slog"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/metrics"
)

// Dispatcher routes committed change events to the registry. Each payload is
// marshalled exactly once, no matter how many connections receive it.
//
// Vote and close events fan out to the poll's subscribers in sequence
// order. Created and deleted events fan out to every connection, matching
// the poll-list view a client on the global feed maintains.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher creates a dispatcher that fans events out over registry.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Dispatch fans one change event out. A send failure to one connection
// never aborts delivery to the rest; the registry isolates it.
func (d *Dispatcher) Dispatch(ev domain.ChangeEvent) {
	switch ev.Kind {
	case domain.EventVote, domain.EventPollClosed:
		payload, err := PollStatePayload(ev.PollID, ev.Options, ev.Closed, ev.Sequence)
		if err != nil {
			slog.Error("Failed to marshal poll state", "poll_id", ev.PollID.String(), "error", err)
			return
		}
		d.registry.BroadcastState(ev.PollID, ev.Sequence, payload)

	case domain.EventPollCreated:
		payload, err := NewPollPayload(ev)
		if err != nil {
			slog.Error("Failed to marshal new poll announcement", "poll_id", ev.PollID.String(), "error", err)
			return
		}
		d.registry.BroadcastAll(payload)

	case domain.EventPollDeleted:
		payload, err := PollDeletedPayload(ev.PollID)
		if err != nil {
			slog.Error("Failed to marshal poll deletion", "poll_id", ev.PollID.String(), "error", err)
			return
		}
		d.registry.BroadcastAll(payload)

	default:
		slog.Warn("Dropping change event of unknown kind", "kind", string(ev.Kind), "poll_id", ev.PollID.String())
		return
	}

	metrics.BroadcastsTotal.WithLabelValues(string(ev.Kind)).Inc()
}
