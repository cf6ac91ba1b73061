package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoMessage is returned by Store.Claim when nothing is claimable.
	ErrNoMessage = errors.New("outbox: no message to claim")
	// ErrLeaseLost means the claim expired and another relay took the message.
	ErrLeaseLost = errors.New("outbox: lease lost")
)

// Message is a durable dispatch intent. Only Dispatched (and the claim
// bookkeeping) changes after it is written.
type Message struct {
	ID            uuid.UUID
	AggregateID   uuid.UUID
	Type          string
	Payload       []byte
	Traceparent   string
	Dispatched    bool
	Attempts      int
	LastError     string
	ClaimedBy     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	QuarantinedAt *time.Time
}

func NewMessage(aggregateID uuid.UUID, typ string, payload any, traceparent string, now time.Time) (Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Message{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("outbox: encode %s payload: %w", typ, err)
	}
	return Message{
		ID:          id,
		AggregateID: aggregateID,
		Type:        typ,
		Payload:     raw,
		Traceparent: traceparent,
		CreatedAt:   now.UTC(),
	}, nil
}

func (m Message) Quarantined() bool { return m.QuarantinedAt != nil }
