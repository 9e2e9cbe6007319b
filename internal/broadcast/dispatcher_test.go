package broadcast

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvishnuk/poll-server/internal/domain"
)

func TestDispatcher_VoteEventFansOutToSubscribers(t *testing.T) {
	registry := newTestRegistry(t, 10)
	dispatcher := NewDispatcher(registry)
	pollID := uuid.New()

	id, client := registerTestConn(t, registry)
	registry.Subscribe(id, pollID, nil)
	require.True(t, waitForPollCount(registry, pollID, 1))

	dispatcher.Dispatch(domain.ChangeEvent{
		Kind:     domain.EventVote,
		PollID:   pollID,
		Sequence: 4,
		Options:  []domain.Option{{Label: "tabs", Count: 3}, {Label: "spaces", Count: 1}},
	})

	state := readMessageOfType(t, client, MessageTypePollState)
	assert.Equal(t, pollID.String(), state["poll_id"])
	assert.Equal(t, float64(4), state["sequence"])
	assert.Equal(t, false, state["closed"])
	options := state["options"].([]any)
	require.Len(t, options, 2)
	assert.Equal(t, "tabs", options[0].(map[string]any)["label"])
	assert.Equal(t, float64(3), options[0].(map[string]any)["count"])
}

func TestDispatcher_ClosedEventMarksPollClosed(t *testing.T) {
	registry := newTestRegistry(t, 10)
	dispatcher := NewDispatcher(registry)
	pollID := uuid.New()

	id, client := registerTestConn(t, registry)
	registry.Subscribe(id, pollID, nil)
	require.True(t, waitForPollCount(registry, pollID, 1))

	dispatcher.Dispatch(domain.ChangeEvent{
		Kind:     domain.EventPollClosed,
		PollID:   pollID,
		Sequence: 9,
		Options:  []domain.Option{{Label: "tabs", Count: 7}},
		Closed:   true,
	})

	state := readMessageOfType(t, client, MessageTypePollState)
	assert.Equal(t, true, state["closed"])
	assert.Equal(t, float64(9), state["sequence"])
}

func TestDispatcher_CreatedEventAnnouncesToEveryConnection(t *testing.T) {
	registry := newTestRegistry(t, 10)
	dispatcher := NewDispatcher(registry)

	otherPoll := uuid.New()
	idSub, clientSub := registerTestConn(t, registry)
	_, clientIdle := registerTestConn(t, registry)
	registry.Subscribe(idSub, otherPoll, nil)
	require.True(t, waitForPollCount(registry, otherPoll, 1))

	pollID := uuid.New()
	createdAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	dispatcher.Dispatch(domain.ChangeEvent{
		Kind:      domain.EventPollCreated,
		PollID:    pollID,
		Sequence:  1,
		Question:  "Tabs or spaces?",
		Options:   []domain.Option{{Label: "tabs", Count: 0}, {Label: "spaces", Count: 0}},
		CreatedAt: &createdAt,
	})

	msgSub := readMessageOfType(t, clientSub, MessageTypeNewPoll)
	msgIdle := readMessageOfType(t, clientIdle, MessageTypeNewPoll)
	for _, msg := range []map[string]any{msgSub, msgIdle} {
		poll := msg["poll"].(map[string]any)
		assert.Equal(t, pollID.String(), poll["id"])
		assert.Equal(t, "Tabs or spaces?", poll["question"])
		assert.Equal(t, float64(1), poll["sequence"])
	}
}

func TestDispatcher_DeletedEventAnnouncesToEveryConnection(t *testing.T) {
	registry := newTestRegistry(t, 10)
	dispatcher := NewDispatcher(registry)
	pollID := uuid.New()

	idSub, clientSub := registerTestConn(t, registry)
	_, clientIdle := registerTestConn(t, registry)
	registry.Subscribe(idSub, pollID, nil)
	require.True(t, waitForPollCount(registry, pollID, 1))

	dispatcher.Dispatch(domain.ChangeEvent{
		Kind:     domain.EventPollDeleted,
		PollID:   pollID,
		Sequence: 12,
	})

	msg := readMessageOfType(t, clientSub, MessageTypePollDeleted)
	assert.Equal(t, pollID.String(), msg["poll_id"])
	msg = readMessageOfType(t, clientIdle, MessageTypePollDeleted)
	assert.Equal(t, pollID.String(), msg["poll_id"])
}

func TestDispatcher_UnknownKindDeliversNothing(t *testing.T) {
	registry := newTestRegistry(t, 10)
	dispatcher := NewDispatcher(registry)
	pollID := uuid.New()

	id, client := registerTestConn(t, registry)
	registry.Subscribe(id, pollID, nil)
	require.True(t, waitForPollCount(registry, pollID, 1))

	dispatcher.Dispatch(domain.ChangeEvent{
		Kind:     domain.EventKind("resharded"),
		PollID:   pollID,
		Sequence: 3,
	})

	assertNoMessageOfType(t, client, MessageTypePollState, 200*time.Millisecond)
}
