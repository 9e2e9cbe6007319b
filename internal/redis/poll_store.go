package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/iamvishnuk/poll-server/internal/domain"
	"github.com/iamvishnuk/poll-server/internal/platform/retry"
)

const (
	// Redis hash field names for poll keys.
	fieldQuestion    = "question"
	fieldDescription = "description"
	fieldClosed      = "closed"
	fieldCreatedAt   = "created_at"
	fieldLabels      = "labels"
)

const pollIndexKey = "polls"

// Lua script status codes.
const (
	statusOK       = 0
	statusNotFound = 1
	statusClosed   = 2
	statusNoOption = 3
)

// readPolicy bounds retries for idempotent reads. Mutations are never
// retried: a vote increment that may or may not have been applied must not
// be replayed.
var readPolicy = retry.Policy{
	MaxAttempts:    3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// classifyStoreErr treats context expiry, domain errors, and an open circuit
// breaker as permanent and everything else (network faults, failovers) as
// transient. Retrying against an open breaker would only burn the backoff
// budget on instant rejections.
func classifyStoreErr(err error) retry.Action {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return retry.Stop
	case errors.Is(err, domain.ErrPollNotFound):
		return retry.Stop
	case errors.Is(err, circuitbreaker.ErrOpen):
		return retry.Stop
	default:
		return retry.Retry
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrBackendUnavailable, err)
}

// readErr unwraps the retry marker: permanent domain errors surface as-is,
// while exhausted transient errors and breaker rejections report the backend
// as unavailable.
func readErr(op string, err error) error {
	var perm *retry.PermanentError
	if errors.As(err, &perm) {
		if errors.Is(perm.Err, circuitbreaker.ErrOpen) {
			return unavailable(op, perm.Err)
		}
		return perm.Err
	}
	return unavailable(op, err)
}

// PollStore persists polls in Redis.
type PollStore struct {
	rdb *goredis.Client
}

var _ domain.PollStore = (*PollStore)(nil)

func NewPollStore(rdb *goredis.Client) *PollStore {
	return &PollStore{rdb: rdb}
}

// --- Key helpers ---

func pollKey(id uuid.UUID) string {
	return "poll:" + id.String()
}

func votesKey(id uuid.UUID) string {
	return "poll:" + id.String() + ":votes"
}

func seqKey(id uuid.UUID) string {
	return "poll:" + id.String() + ":seq"
}

// --- Writes ---

// CreatePoll stores a new poll and initializes every option tally to zero.
// The poll's Sequence is set from the first increment of its counter, so the
// creation event is already ordered before any vote.
func (s *PollStore) CreatePoll(ctx context.Context, p *domain.Poll) error {
	labels := make([]string, len(p.Options))
	zeros := make(map[string]any, len(p.Options))
	for i, opt := range p.Options {
		labels[i] = opt.Label
		zeros[opt.Label] = 0
	}

	labelsJSON, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	var incr *goredis.IntCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, pollKey(p.ID), map[string]any{
			fieldQuestion:    p.Question,
			fieldDescription: p.Description,
			fieldClosed:      "0",
			fieldCreatedAt:   p.CreatedAt.Format(time.RFC3339Nano),
			fieldLabels:      string(labelsJSON),
		})
		pipe.HSet(ctx, votesKey(p.ID), zeros)
		incr = pipe.Incr(ctx, seqKey(p.ID))
		pipe.SAdd(ctx, pollIndexKey, p.ID.String())
		return nil
	})
	if err != nil {
		return unavailable("create poll", err)
	}

	p.Sequence = incr.Val()
	return nil
}

// CastVote atomically increments one option tally. Exactly one script call,
// never retried. Returns the vote result plus the full post-increment tally
// snapshot for the change event.
func (s *PollStore) CastVote(ctx context.Context, id uuid.UUID, label string) (*domain.VoteResult, []domain.Option, error) {
	res, err := castVoteScript.Run(ctx, s.rdb,
		[]string{pollKey(id), votesKey(id), seqKey(id)}, label).Result()
	if err != nil {
		return nil, nil, unavailable("cast vote", err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) == 0 {
		return nil, nil, fmt.Errorf("cast vote: unexpected script result %T", res)
	}

	switch arr[0].(int64) {
	case statusNotFound:
		return nil, nil, domain.ErrPollNotFound
	case statusClosed:
		return nil, nil, domain.ErrPollClosed
	case statusNoOption:
		return nil, nil, domain.ErrOptionNotFound
	}

	if len(arr) != 5 {
		return nil, nil, fmt.Errorf("cast vote: unexpected script result length %d", len(arr))
	}

	count := arr[1].(int64)
	seq := arr[2].(int64)

	options, err := scriptOptions(arr[3], arr[4])
	if err != nil {
		return nil, nil, fmt.Errorf("cast vote: %w", err)
	}

	result := &domain.VoteResult{
		Option:   label,
		Count:    count,
		Sequence: seq,
	}
	return result, options, nil
}

// ClosePoll marks a poll closed. Closing twice is a no-op: already reports
// whether the poll was closed before this call.
func (s *PollStore) ClosePoll(ctx context.Context, id uuid.UUID) (seq int64, options []domain.Option, already bool, err error) {
	res, err := closePollScript.Run(ctx, s.rdb,
		[]string{pollKey(id), votesKey(id), seqKey(id)}).Result()
	if err != nil {
		return 0, nil, false, unavailable("close poll", err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) == 0 {
		return 0, nil, false, fmt.Errorf("close poll: unexpected script result %T", res)
	}

	switch arr[0].(int64) {
	case statusNotFound:
		return 0, nil, false, domain.ErrPollNotFound
	case statusClosed:
		return 0, nil, true, nil
	}

	if len(arr) != 4 {
		return 0, nil, false, fmt.Errorf("close poll: unexpected script result length %d", len(arr))
	}

	seq = arr[1].(int64)
	options, err = scriptOptions(arr[2], arr[3])
	if err != nil {
		return 0, nil, false, fmt.Errorf("close poll: %w", err)
	}
	return seq, options, false, nil
}

// DeletePoll removes the poll and all its keys. Returns the sequence number
// reserved for the terminal deletion event.
func (s *PollStore) DeletePoll(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := deletePollScript.Run(ctx, s.rdb,
		[]string{pollKey(id), votesKey(id), seqKey(id), pollIndexKey}, id.String()).Result()
	if err != nil {
		return 0, unavailable("delete poll", err)
	}

	arr, ok := res.([]any)
	if !ok || len(arr) == 0 {
		return 0, fmt.Errorf("delete poll: unexpected script result %T", res)
	}

	if arr[0].(int64) == statusNotFound {
		return 0, domain.ErrPollNotFound
	}

	return arr[1].(int64), nil
}

// --- Reads ---

// GetPoll loads a poll with its current tallies and sequence in one
// transactional pipeline, so the snapshot is internally consistent.
func (s *PollStore) GetPoll(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	p, err := retry.Do(ctx, readPolicy, classifyStoreErr, func() (*domain.Poll, error) {
		return s.getPoll(ctx, id)
	})
	if err != nil {
		return nil, readErr("get poll", err)
	}
	return p, nil
}

func (s *PollStore) getPoll(ctx context.Context, id uuid.UUID) (*domain.Poll, error) {
	var (
		pollCmd  *goredis.MapStringStringCmd
		votesCmd *goredis.MapStringStringCmd
		seqCmd   *goredis.StringCmd
	)
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pollCmd = pipe.HGetAll(ctx, pollKey(id))
		votesCmd = pipe.HGetAll(ctx, votesKey(id))
		seqCmd = pipe.Get(ctx, seqKey(id))
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	data := pollCmd.Val()
	if len(data) == 0 {
		return nil, domain.ErrPollNotFound
	}

	seq, err := seqFromCmd(seqCmd)
	if err != nil {
		return nil, err
	}

	p, err := assemblePoll(id, data, votesCmd.Val(), seq)
	if err != nil {
		return nil, &retry.PermanentError{Err: err}
	}
	return p, nil
}

// ListPolls returns all known polls ordered by creation time.
func (s *PollStore) ListPolls(ctx context.Context) ([]*domain.Poll, error) {
	polls, err := retry.Do(ctx, readPolicy, classifyStoreErr, func() ([]*domain.Poll, error) {
		return s.listPolls(ctx)
	})
	if err != nil {
		return nil, readErr("list polls", err)
	}
	return polls, nil
}

func (s *PollStore) listPolls(ctx context.Context) ([]*domain.Poll, error) {
	ids, err := s.rdb.SMembers(ctx, pollIndexKey).Result()
	if err != nil {
		return nil, err
	}

	type pollCmds struct {
		id    uuid.UUID
		poll  *goredis.MapStringStringCmd
		votes *goredis.MapStringStringCmd
		seq   *goredis.StringCmd
	}

	cmds := make([]pollCmds, 0, len(ids))
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, raw := range ids {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				continue
			}
			cmds = append(cmds, pollCmds{
				id:    id,
				poll:  pipe.HGetAll(ctx, pollKey(id)),
				votes: pipe.HGetAll(ctx, votesKey(id)),
				seq:   pipe.Get(ctx, seqKey(id)),
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	polls := make([]*domain.Poll, 0, len(cmds))
	for _, c := range cmds {
		data := c.poll.Val()
		if len(data) == 0 {
			// Deleted between SMEMBERS and the pipeline read.
			continue
		}

		seq, err := seqFromCmd(c.seq)
		if err != nil {
			return nil, err
		}

		p, err := assemblePoll(c.id, data, c.votes.Val(), seq)
		if err != nil {
			return nil, &retry.PermanentError{Err: err}
		}
		polls = append(polls, p)
	}

	sort.Slice(polls, func(i, j int) bool {
		if polls[i].CreatedAt.Equal(polls[j].CreatedAt) {
			return polls[i].ID.String() < polls[j].ID.String()
		}
		return polls[i].CreatedAt.Before(polls[j].CreatedAt)
	})

	return polls, nil
}

// --- Parsing helpers ---

func seqFromCmd(cmd *goredis.StringCmd) (int64, error) {
	raw, err := cmd.Result()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &retry.PermanentError{Err: fmt.Errorf("parse sequence: %w", err)}
	}
	return n, nil
}

func assemblePoll(id uuid.UUID, data, votes map[string]string, seq int64) (*domain.Poll, error) {
	var labels []string
	if err := json.Unmarshal([]byte(data[fieldLabels]), &labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, data[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	options := make([]domain.Option, len(labels))
	for i, label := range labels {
		count, err := strconv.ParseInt(votes[label], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse count for %q: %w", label, err)
		}
		options[i] = domain.Option{Label: label, Count: count}
	}

	return &domain.Poll{
		ID:          id,
		Question:    data[fieldQuestion],
		Description: data[fieldDescription],
		Options:     options,
		Closed:      data[fieldClosed] == "1",
		CreatedAt:   createdAt,
		Sequence:    seq,
	}, nil
}

// scriptOptions converts the labels JSON and the flat HGETALL reply returned
// by a Lua script into an ordered option slice.
func scriptOptions(labelsRaw, countsRaw any) ([]domain.Option, error) {
	labelsJSON, ok := labelsRaw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected labels type %T", labelsRaw)
	}

	var labels []string
	if err := json.Unmarshal([]byte(labelsJSON), &labels); err != nil {
		return nil, fmt.Errorf("unmarshal labels: %w", err)
	}

	flat, ok := countsRaw.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected counts type %T", countsRaw)
	}

	counts := make(map[string]int64, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		label, ok := flat[i].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected count field type %T", flat[i])
		}
		raw, ok := flat[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("unexpected count value type %T", flat[i+1])
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse count for %q: %w", label, err)
		}
		counts[label] = count
	}

	options := make([]domain.Option, len(labels))
	for i, label := range labels {
		options[i] = domain.Option{Label: label, Count: counts[label]}
	}
	return options, nil
}
