package domain

import (
	"context"

	"github.com/google/uuid"
)

// PollStore is the backend storage contract for poll state. The backend is
// the single source of truth for durable poll data; any store offering
// atomic counter increment, key read/write, and publish/subscribe can
// implement it.
type PollStore interface {
	// CreatePoll persists a new poll with all option counts at zero.
	CreatePoll(ctx context.Context, p *Poll) error

	// GetPoll returns a consistent snapshot, or ErrPollNotFound.
	GetPoll(ctx context.Context, id uuid.UUID) (*Poll, error)

	// ListPolls returns snapshots of every known poll.
	ListPolls(ctx context.Context) ([]*Poll, error)

	// CastVote atomically increments the count for label and advances the
	// poll's sequence in a single backend operation. It returns the vote
	// result and the full post-increment option counts. Fails with
	// ErrPollNotFound, ErrPollClosed, or ErrOptionNotFound.
	CastVote(ctx context.Context, id uuid.UUID, label string) (*VoteResult, []Option, error)

	// ClosePoll marks the poll closed. Closing an already-closed poll is a
	// no-op with already=true and does not advance the sequence.
	ClosePoll(ctx context.Context, id uuid.UUID) (seq int64, options []Option, already bool, err error)

	// DeletePoll removes the poll and returns the sequence number assigned
	// to the deletion.
	DeletePoll(ctx context.Context, id uuid.UUID) (seq int64, err error)
}

// EventPublisher publishes committed change events to the shared
// change-notification channel so every server instance sees them.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev ChangeEvent) error
}
