package domain

import (
	"time"

	"github.com/google/uuid"
)

// Option is one selectable choice within a poll, with its running vote count.
type Option struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Poll is a point-in-time snapshot of a poll. Sequence is the poll's change
// counter at the moment the snapshot was read; every committed vote, close,
// or delete advances it. Once Closed is true the counts are final.
type Poll struct {
	ID          uuid.UUID `json:"id"`
	Question    string    `json:"question"`
	Description string    `json:"description,omitempty"`
	Options     []Option  `json:"options"`
	Closed      bool      `json:"closed"`
	CreatedAt   time.Time `json:"created_at"`
	Sequence    int64     `json:"sequence"`
}

// VoteResult reports a single committed vote back to the caller.
type VoteResult struct {
	Option   string `json:"option"`
	Count    int64  `json:"count"`
	Sequence int64  `json:"sequence"`
}

// HasOption reports whether the poll contains an option with the given label.
func (p *Poll) HasOption(label string) bool {
	for _, o := range p.Options {
		if o.Label == label {
			return true
		}
	}
	return false
}
