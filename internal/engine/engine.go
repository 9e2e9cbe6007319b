package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/metrics"
)

// Engine validates poll operations, applies them through the store, and
// publishes a change event for every committed transition.
type Engine struct {
	store     domain.PollStore
	publisher domain.EventPublisher
	clock     clockwork.Clock
}

func NewEngine(store domain.PollStore, publisher domain.EventPublisher, clock clockwork.Clock) *Engine {
	return &Engine{store: store, publisher: publisher, clock: clock}
}

// CreatePoll validates and stores a new poll, then announces it.
// Labels are trimmed; blank or duplicate labels reject the whole poll.
func (e *Engine) CreatePoll(ctx context.Context, question, description string, options []string) (*domain.Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question must not be empty", domain.ErrInvalidPoll)
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("%w: at least one option is required", domain.ErrInvalidPoll)
	}

	seen := make(map[string]struct{}, len(options))
	opts := make([]domain.Option, 0, len(options))
	for _, raw := range options {
		label := strings.TrimSpace(raw)
		if label == "" {
			return nil, fmt.Errorf("%w: option labels must not be blank", domain.ErrInvalidPoll)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: duplicate option %q", domain.ErrInvalidPoll, label)
		}
		seen[label] = struct{}{}
		opts = append(opts, domain.Option{Label: label})
	}

	p := &domain.Poll{
		ID:          uuid.New(),
		Question:    question,
		Description: strings.TrimSpace(description),
		Options:     opts,
		CreatedAt:   e.clock.Now().UTC(),
	}

	if err := e.store.CreatePoll(ctx, p); err != nil {
		return nil, err
	}
	metrics.PollsCreatedTotal.Inc()

	createdAt := p.CreatedAt
	e.publish(ctx, domain.ChangeEvent{
		Kind:        domain.EventPollCreated,
		PollID:      p.ID,
		Sequence:    p.Sequence,
		Options:     p.Options,
		Question:    p.Question,
		Description: p.Description,
		CreatedAt:   &createdAt,
	})

	return p, nil
}

// CastVote applies a single vote. The store performs the check-and-increment
// as one atomic operation; the engine only publishes the resulting snapshot.
func (e *Engine) CastVote(ctx context.Context, pollID uuid.UUID, option string) (*domain.VoteResult, error) {
	start := e.clock.Now()
	result, options, err := e.store.CastVote(ctx, pollID, option)
	metrics.VoteDuration.Observe(e.clock.Since(start).Seconds())
	if err != nil {
		metrics.VotesTotal.WithLabelValues(voteResultLabel(err)).Inc()
		return nil, err
	}
	metrics.VotesTotal.WithLabelValues("accepted").Inc()

	e.publish(ctx, domain.ChangeEvent{
		Kind:     domain.EventVote,
		PollID:   pollID,
		Sequence: result.Sequence,
		Options:  options,
	})

	return result, nil
}

// ClosePoll closes the poll. Closing an already-closed poll succeeds
// without publishing anything.
func (e *Engine) ClosePoll(ctx context.Context, pollID uuid.UUID) error {
	seq, options, already, err := e.store.ClosePoll(ctx, pollID)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	metrics.PollsClosedTotal.Inc()

	e.publish(ctx, domain.ChangeEvent{
		Kind:     domain.EventPollClosed,
		PollID:   pollID,
		Sequence: seq,
		Options:  options,
		Closed:   true,
	})

	return nil
}

// DeletePoll removes the poll and announces the deletion.
func (e *Engine) DeletePoll(ctx context.Context, pollID uuid.UUID) error {
	seq, err := e.store.DeletePoll(ctx, pollID)
	if err != nil {
		return err
	}
	metrics.PollsDeletedTotal.Inc()

	e.publish(ctx, domain.ChangeEvent{
		Kind:     domain.EventPollDeleted,
		PollID:   pollID,
		Sequence: seq,
	})

	return nil
}

// GetPoll returns a consistent snapshot of one poll.
func (e *Engine) GetPoll(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	return e.store.GetPoll(ctx, pollID)
}

// ListPolls returns snapshots of all polls.
func (e *Engine) ListPolls(ctx context.Context) ([]*domain.Poll, error) {
	return e.store.ListPolls(ctx)
}

// publish announces a committed change. A publish failure never fails the
// operation itself: events carry full snapshots, so the next successful
// publish heals any subscriber that missed this one.
func (e *Engine) publish(ctx context.Context, ev domain.ChangeEvent) {
	if err := e.publisher.PublishEvent(ctx, ev); err != nil {
		metrics.EventPublishFailures.Inc()
		slog.ErrorContext(ctx, "Failed to publish change event",
			"kind", ev.Kind, "poll_id", ev.PollID.String(), "sequence", ev.Sequence, "error", err)
	}
}

func voteResultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		return "poll_not_found"
	case errors.Is(err, domain.ErrPollClosed):
		return "poll_closed"
	case errors.Is(err, domain.ErrOptionNotFound):
		return "unknown_option"
	default:
		return "error"
	}
}
