package outbox

import (
	"context"

	"github.com/google/uuid"
)

// Admin is the operator view of an outbox.
type Admin interface {
	Pending(ctx context.Context, limit int) ([]Message, error)
	Quarantined(ctx context.Context, limit int) ([]Message, error)
	// Requeue clears quarantine and the attempt counter so the message is
	// claimable again. It reports whether a quarantined message matched.
	Requeue(ctx context.Context, id uuid.UUID) (bool, error)
}
