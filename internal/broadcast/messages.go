package broadcast

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iamvishnuk/poll-server/internal/domain"
)

// Outbound WebSocket message types. Every server push is a JSON object with
// a "type" field so clients can dispatch without sniffing the payload.
const (
	MessageTypePollState       = "poll_state"
	MessageTypeNewPoll         = "new_poll"
	MessageTypePollDeleted     = "poll_deleted"
	MessageTypeConnectionCount = "connection_count"
	MessageTypePong            = "pong"
	MessageTypeError           = "error"
)

// PollStateMessage carries the full current counts of one poll. It is always
// a complete snapshot, so a client that misses one is healed by the next.
type PollStateMessage struct {
	Type     string          `json:"type"`
	PollID   uuid.UUID       `json:"poll_id"`
	Options  []domain.Option `json:"options"`
	Closed   bool            `json:"closed"`
	Sequence int64           `json:"sequence"`
}

// NewPollMessage announces a freshly created poll to every connection.
type NewPollMessage struct {
	Type string       `json:"type"`
	Poll *domain.Poll `json:"poll"`
}

// PollDeletedMessage announces that a poll no longer exists.
type PollDeletedMessage struct {
	Type   string    `json:"type"`
	PollID uuid.UUID `json:"poll_id"`
}

// ConnectionCountMessage reports how many connections on this instance are
// currently subscribed to a poll.
type ConnectionCountMessage struct {
	Type   string    `json:"type"`
	PollID uuid.UUID `json:"poll_id"`
	Count  int       `json:"count"`
}

// PongMessage answers a client ping control message.
type PongMessage struct {
	Type string `json:"type"`
}

// ErrorMessage reports a per-connection protocol error, such as subscribing
// to a malformed poll id.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PollStatePayload marshals a poll_state message from event fields.
func PollStatePayload(pollID uuid.UUID, options []domain.Option, closed bool, sequence int64) ([]byte, error) {
	return json.Marshal(PollStateMessage{
		Type:     MessageTypePollState,
		PollID:   pollID,
		Options:  options,
		Closed:   closed,
		Sequence: sequence,
	})
}

// PollStateFromPoll marshals a poll_state message from a stored snapshot.
func PollStateFromPoll(p *domain.Poll) ([]byte, error) {
	return PollStatePayload(p.ID, p.Options, p.Closed, p.Sequence)
}

// NewPollPayload marshals a new_poll message from a created event.
func NewPollPayload(ev domain.ChangeEvent) ([]byte, error) {
	var createdAt time.Time
	if ev.CreatedAt != nil {
		createdAt = *ev.CreatedAt
	}
	return json.Marshal(NewPollMessage{
		Type: MessageTypeNewPoll,
		Poll: &domain.Poll{
			ID:          ev.PollID,
			Question:    ev.Question,
			Description: ev.Description,
			Options:     ev.Options,
			Closed:      false,
			CreatedAt:   createdAt,
			Sequence:    ev.Sequence,
		},
	})
}

// PollDeletedPayload marshals a poll_deleted message.
func PollDeletedPayload(pollID uuid.UUID) ([]byte, error) {
	return json.Marshal(PollDeletedMessage{Type: MessageTypePollDeleted, PollID: pollID})
}

// ConnectionCountPayload marshals a connection_count message.
func ConnectionCountPayload(pollID uuid.UUID, count int) ([]byte, error) {
	return json.Marshal(ConnectionCountMessage{Type: MessageTypeConnectionCount, PollID: pollID, Count: count})
}

// PongPayload marshals a pong message.
func PongPayload() ([]byte, error) {
	return json.Marshal(PongMessage{Type: MessageTypePong})
}

// ErrorPayload marshals an error message.
func ErrorPayload(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{Type: MessageTypeError, Message: message})
}
