package domain

import "time"

type SessionState int

const (
	// SessionPending is a freshly issued session waiting for its channel upgrade.
	SessionPending SessionState = iota
	// SessionBound is a session whose token has been consumed by a channel.
	SessionBound
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionBound:
		return "bound"
	default:
		return "unknown"
	}
}

// Session proves that the owner of Token completed a login.
// Each login mints a new session, tokens are never reused across reconnects.
type Session struct {
	ID        string
	Identity  Identity
	Token     string
	State     SessionState
	IssuedAt  time.Time
	UpgradeBy time.Time
	ExpiresAt time.Time
}
