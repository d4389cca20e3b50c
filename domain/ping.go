package domain

import (
	"time"

	"github.com/google/uuid"
)

// PendingPing is a ping waiting for its recipient to come online.
type PendingPing struct {
	ID        uuid.UUID
	From      Identity
	To        Identity
	CreatedAt time.Time
}

func NewPendingPing(from, to Identity, at time.Time) PendingPing {
	return PendingPing{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		CreatedAt: at,
	}
}

type DeliveryStatus string

const (
	Delivered DeliveryStatus = "delivered"
	Queued    DeliveryStatus = "queued"
)

// PingResult is what the sender learns about its ping.
// A ping that fell back to the queue after a failed write is still reported as queued.
type PingResult struct {
	PingID       uuid.UUID
	Status       DeliveryStatus
	TargetOnline bool
}
