//go:generate go run go.uber.org/mock/mockgen -source=connection.go -destination=../mocks/mock_channel.go -package=mocks
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Close codes sent to a channel when the server ends it.
const (
	CloseNormal         = 1000
	CloseSuperseded     = 4000
	CloseIdleTimeout    = 4001
	CloseServerShutdown = 1001
	ClosePolicy         = 1008
	CloseTryAgainLater  = 1013
)

// Channel is the duplex transport owned by a Connection.
// Send must be safe for concurrent use. It returns nil only once the payload was
// written, and gives up at ctx expiry unless a write is already under way.
type Channel interface {
	Send(ctx context.Context, payload []byte) error
	Close(code int, reason string) error
}

// Connection binds a live Channel to the identity that opened it.
type Connection struct {
	ID          uuid.UUID
	Identity    Identity
	SessionID   string
	Channel     Channel
	ConnectedAt time.Time
}

func NewConnection(session Session, channel Channel, at time.Time) Connection {
	return Connection{
		ID:          uuid.New(),
		Identity:    session.Identity,
		SessionID:   session.ID,
		Channel:     channel,
		ConnectedAt: at,
	}
}
