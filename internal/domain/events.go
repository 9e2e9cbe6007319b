package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind labels the state transition a ChangeEvent announces.
type EventKind string

const (
	EventPollCreated EventKind = "created"
	EventVote        EventKind = "vote"
	EventPollClosed  EventKind = "closed"
	EventPollDeleted EventKind = "deleted"
)

// ChangeEvent announces a committed change to a poll. It carries the poll's
// full current option counts, never a delta, so a subscriber that misses an
// event is healed by the next one. Sequence is monotonic per poll across all
// server instances; deliveries to a single connection must follow it.
//
// Events are transient notifications: they exist only between publish and
// delivery and are never persisted.
type ChangeEvent struct {
	Kind        EventKind  `json:"kind"`
	PollID      uuid.UUID  `json:"poll_id"`
	Sequence    int64      `json:"sequence"`
	Options     []Option   `json:"options,omitempty"`
	Closed      bool       `json:"closed,omitempty"`
	Question    string     `json:"question,omitempty"`
	Description string     `json:"description,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"` // set on created events only
}
