package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvishnuk/poll-server/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (s *recordingSink) Dispatch(ev domain.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) received() []domain.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ChangeEvent(nil), s.events...)
}

func TestHandleMessage_DispatchesDecodedEvent(t *testing.T) {
	sink := &recordingSink{}
	b := New(nil, sink, clockwork.NewRealClock())

	pollID := uuid.New()
	b.handleMessage(`{"kind":"vote","poll_id":"` + pollID.String() + `","sequence":7,"options":[{"label":"tabs","count":3}]}`)

	events := sink.received()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventVote, events[0].Kind)
	assert.Equal(t, pollID, events[0].PollID)
	assert.Equal(t, int64(7), events[0].Sequence)
	require.Len(t, events[0].Options, 1)
	assert.Equal(t, "tabs", events[0].Options[0].Label)
	assert.Equal(t, int64(3), events[0].Options[0].Count)
}

func TestHandleMessage_DropsMalformedPayload(t *testing.T) {
	sink := &recordingSink{}
	b := New(nil, sink, clockwork.NewRealClock())

	b.handleMessage(`{"kind":`)
	b.handleMessage(``)

	assert.Empty(t, sink.received(), "malformed payloads must not reach the sink")
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{250 * time.Millisecond, 500 * time.Millisecond},
		{500 * time.Millisecond, 1 * time.Second},
		{8 * time.Second, 15 * time.Second},
		{15 * time.Second, 15 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, nextBackoff(tt.current))
	}
}

func TestReady_SignalledExactlyOnce(t *testing.T) {
	b := New(nil, &recordingSink{}, clockwork.NewRealClock())

	assert.False(t, b.Subscribed(), "a bridge that never subscribed must not report subscribed")

	select {
	case <-b.Ready():
		t.Fatal("ready must not be signalled before subscribing")
	default:
	}

	b.signalReady()
	b.signalReady() // second signal must not panic

	select {
	case <-b.Ready():
	default:
		t.Fatal("ready should be signalled")
	}
}
