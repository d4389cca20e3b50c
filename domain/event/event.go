package event

import (
	"pinger/domain"
	"time"
)

type PresenceKind string

const (
	Admitted PresenceKind = "admitted"
	Removed  PresenceKind = "removed"
)

// PresenceChanged is emitted by the registry after each admit or remove.
// Online and Connections are one snapshot taken under the registry lock,
// so a broadcast built from it never mixes two mutations.
type PresenceChanged struct {
	Kind        PresenceKind
	Identity    domain.Identity
	Online      []domain.Identity
	Connections []domain.Connection
	At          time.Time
}
