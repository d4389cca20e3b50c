package services

import (
	"context"
	"fmt"
	"log/slog"
	"pinger/auth"
	"pinger/domain"
	"pinger/errors"
	"pinger/moderation"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityStore issues single-use upgrade tokens and tracks the session behind each of them.
// Sessions live in memory only: a restart invalidates every token.
type IdentityStore struct {
	log           *slog.Logger
	signer        *auth.Signer
	moderator     *moderation.Moderator
	tokenTTL      time.Duration
	upgradeWindow time.Duration
	now           func() time.Time

	mu       sync.Mutex
	sessions map[string]*domain.Session
	// released keeps the expiry of sessions whose channel is gone, so their
	// tokens keep reporting ErrTokenAlreadyConsumed until they expire.
	released map[string]time.Time
}

func NewIdentityStore(
	log *slog.Logger,
	signer *auth.Signer,
	moderator *moderation.Moderator,
	tokenTTL time.Duration,
	upgradeWindow time.Duration,
) *IdentityStore {
	return &IdentityStore{
		log:           log,
		signer:        signer,
		moderator:     moderator,
		tokenTTL:      tokenTTL,
		upgradeWindow: upgradeWindow,
		now:           time.Now,
		sessions:      make(map[string]*domain.Session),
		released:      make(map[string]time.Time),
	}
}

// WithClock replaces the time source of the store and of its signer.
func (s *IdentityStore) WithClock(now func() time.Time) *IdentityStore {
	s.now = now
	s.signer.WithClock(now)
	return s
}

func (s *IdentityStore) Login(_ context.Context, identity domain.Identity) (domain.Session, error) {
	// 1. Reject malformed identities before minting anything
	if err := auth.ValidateIdentity(identity); err != nil {
		return domain.Session{}, err
	}

	// 2. The username is only a display label: reserved words are masked
	if s.moderator != nil {
		censored, words := s.moderator.Censor(identity.Username)
		if len(words) > 0 {
			s.log.Info("Username moderated", "unique_id", identity.UniqueID, "words", words)
			identity.Username = censored
		}
	}

	// 3. Every login mints a fresh session, a known identity simply gets another one
	now := s.now()
	session := domain.Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		State:     domain.SessionPending,
		IssuedAt:  now,
		UpgradeBy: now.Add(s.upgradeWindow),
		ExpiresAt: now.Add(s.tokenTTL),
	}
	token, err := s.signer.Sign(session.ID, identity, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return domain.Session{}, err
	}
	session.Token = token

	s.mu.Lock()
	s.sessions[session.ID] = &session
	s.mu.Unlock()

	s.log.Debug("Session issued", "session_id", session.ID, "identity", identity.String())
	return session, nil
}

// Inspect checks that token could open a channel right now, without consuming it.
func (s *IdentityStore) Inspect(_ context.Context, token string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.upgradable(token)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// Consume binds the session to a channel. Only the first call for a token succeeds.
func (s *IdentityStore) Consume(_ context.Context, token string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.upgradable(token)
	if err != nil {
		return domain.Session{}, err
	}
	session.State = domain.SessionBound
	return *session, nil
}

// Authenticate accepts the token as a bearer credential while its session lives.
func (s *IdentityStore) Authenticate(_ context.Context, token string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookup(token)
	if err != nil {
		return domain.Session{}, err
	}
	return *session, nil
}

// Release forgets the session once its channel is gone, its token becomes unusable.
func (s *IdentityStore) Release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[sessionID]; ok {
		delete(s.sessions, sessionID)
		s.released[sessionID] = session.ExpiresAt
		s.log.Debug("Session released", "session_id", sessionID)
	}
}

// Sweep drops sessions whose token expired and returns how many were dropped.
// Released sessions are forgotten for good once their token expired too.
func (s *IdentityStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for id, session := range s.sessions {
		if !now.Before(session.ExpiresAt) {
			delete(s.sessions, id)
			purged++
		}
	}
	for id, expiresAt := range s.released {
		if !now.Before(expiresAt) {
			delete(s.released, id)
		}
	}
	return purged
}

func (s *IdentityStore) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup must be called with mu held.
func (s *IdentityStore) lookup(token string) (*domain.Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	if _, gone := s.released[claims.ID]; gone {
		return nil, fmt.Errorf("%w: session released", errors.ErrTokenAlreadyConsumed)
	}
	session, ok := s.sessions[claims.ID]
	if !ok || session.Token != token {
		return nil, fmt.Errorf("%w: unknown session", errors.ErrInvalidToken)
	}
	return session, nil
}

// upgradable must be called with mu held.
func (s *IdentityStore) upgradable(token string) (*domain.Session, error) {
	session, err := s.lookup(token)
	if err != nil {
		return nil, err
	}
	if session.State == domain.SessionBound {
		return nil, errors.ErrTokenAlreadyConsumed
	}
	if s.now().After(session.UpgradeBy) {
		return nil, fmt.Errorf("%w: upgrade window elapsed", errors.ErrTokenExpired)
	}
	return session, nil
}
