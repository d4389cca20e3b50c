package services

import (
	"context"
	"log/slog"
	"pinger/auth"
	"pinger/domain"
	"pinger/errors"
	"pinger/moderation"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.Identity{Username: "alice", UniqueID: "uid-alice"}
	bob   = domain.Identity{Username: "bob", UniqueID: "uid-bob"}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*IdentityStore, *fakeClock) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	signer, err := auth.NewSigner("test-secret")
	require.NoError(t, err)
	moderator, err := moderation.NewModerator([]string{"admin"}, '*', log)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewIdentityStore(log, signer, moderator, time.Hour, time.Minute).WithClock(clock.Now)
	return store, clock
}

func TestIdentityStore_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("should issue a pending session for a valid identity", func(t *testing.T) {
		req := require.New(t)
		store, clock := newTestStore(t)

		session, err := store.Login(ctx, alice)

		req.NoError(err)
		req.NotEmpty(session.Token)
		req.NotEmpty(session.ID)
		req.Equal(alice, session.Identity)
		req.Equal(domain.SessionPending, session.State)
		req.Equal(clock.Now().Add(time.Minute), session.UpgradeBy)
		req.Equal(clock.Now().Add(time.Hour), session.ExpiresAt)
		req.Equal(1, store.ActiveSessions())
	})

	t.Run("should mint a new session on every login", func(t *testing.T) {
		req := require.New(t)
		store, _ := newTestStore(t)

		first, err := store.Login(ctx, alice)
		req.NoError(err)
		second, err := store.Login(ctx, alice)
		req.NoError(err)

		req.NotEqual(first.ID, second.ID)
		req.NotEqual(first.Token, second.Token)
		req.Equal(2, store.ActiveSessions())
	})

	t.Run("should reject an empty identity", func(t *testing.T) {
		req := require.New(t)
		store, _ := newTestStore(t)

		_, err := store.Login(ctx, domain.Identity{Username: "", UniqueID: "uid"})

		req.ErrorIs(err, errors.ErrInvalidIdentity)
		req.Equal(0, store.ActiveSessions())
	})

	t.Run("should mask reserved usernames but keep the unique id", func(t *testing.T) {
		req := require.New(t)
		store, _ := newTestStore(t)

		session, err := store.Login(ctx, domain.Identity{Username: "admin", UniqueID: "uid-x"})

		req.NoError(err)
		req.Equal("*****", session.Identity.Username)
		req.Equal("uid-x", session.Identity.UniqueID)
	})
}

func TestIdentityStore_Consume_IsSingleUse(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, _ := newTestStore(t)
	session, err := store.Login(ctx, alice)
	req.NoError(err)

	// When the token is consumed twice
	bound, err := store.Consume(ctx, session.Token)
	req.NoError(err)
	req.Equal(domain.SessionBound, bound.State)

	_, err = store.Consume(ctx, session.Token)

	// Then the second use is refused
	req.ErrorIs(err, errors.ErrTokenAlreadyConsumed)

	// Then the bound token still works as a bearer credential
	_, err = store.Authenticate(ctx, session.Token)
	req.NoError(err)
}

func TestIdentityStore_Consume_ConcurrentUpgrades(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, _ := newTestStore(t)
	session, err := store.Login(ctx, alice)
	req.NoError(err)

	// Given many channels racing for the same token
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, session.Token); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	// Then exactly one of them wins
	req.Equal(int32(1), wins.Load())
}

func TestIdentityStore_UpgradeWindow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, clock := newTestStore(t)
	session, err := store.Login(ctx, alice)
	req.NoError(err)

	// Given the upgrade window elapsed
	clock.Advance(2 * time.Minute)

	// Then the token can no longer open a channel
	_, err = store.Inspect(ctx, session.Token)
	req.ErrorIs(err, errors.ErrTokenExpired)
	_, err = store.Consume(ctx, session.Token)
	req.ErrorIs(err, errors.ErrTokenExpired)

	// Then it still authenticates HTTP calls until the token expires
	_, err = store.Authenticate(ctx, session.Token)
	req.NoError(err)
}

func TestIdentityStore_Release(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, _ := newTestStore(t)
	session, err := store.Login(ctx, alice)
	req.NoError(err)
	_, err = store.Consume(ctx, session.Token)
	req.NoError(err)

	// When the channel closes
	store.Release(session.ID)

	// Then the token is dead and still reported as consumed
	_, err = store.Authenticate(ctx, session.Token)
	req.ErrorIs(err, errors.ErrTokenAlreadyConsumed)
	_, err = store.Consume(ctx, session.Token)
	req.ErrorIs(err, errors.ErrTokenAlreadyConsumed)
	_, err = store.Inspect(ctx, session.Token)
	req.ErrorIs(err, errors.ErrTokenAlreadyConsumed)
	req.Equal(0, store.ActiveSessions())
}

func TestIdentityStore_SweepForgetsReleasedSessions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, clock := newTestStore(t)
	session, err := store.Login(ctx, alice)
	req.NoError(err)
	_, err = store.Consume(ctx, session.Token)
	req.NoError(err)
	store.Release(session.ID)

	// When sweeping before the token expired
	req.Zero(store.Sweep(clock.Now()))

	// Then the released session is still remembered
	req.Len(store.released, 1)

	// When sweeping after the token expired
	clock.Advance(61 * time.Minute)
	store.Sweep(clock.Now())

	// Then nothing is left of it
	req.Empty(store.released)
	req.Zero(store.ActiveSessions())
}

func TestIdentityStore_RejectsUnknownTokens(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, _ := newTestStore(t)
	other, _ := newTestStore(t)

	// Given a token signed by another store with the same key but unknown session
	foreign, err := other.Login(ctx, bob)
	req.NoError(err)

	_, err = store.Inspect(ctx, foreign.Token)
	req.ErrorIs(err, errors.ErrInvalidToken)
	_, err = store.Authenticate(ctx, "garbage")
	req.ErrorIs(err, errors.ErrInvalidToken)
}

func TestIdentityStore_Sweep(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, clock := newTestStore(t)

	_, err := store.Login(ctx, alice)
	req.NoError(err)
	clock.Advance(30 * time.Minute)
	recent, err := store.Login(ctx, bob)
	req.NoError(err)

	// When sweeping after the first token expired
	clock.Advance(31 * time.Minute)
	purged := store.Sweep(clock.Now())

	// Then only the expired session is gone
	req.Equal(1, purged)
	req.Equal(1, store.ActiveSessions())
	_, err = store.Authenticate(ctx, recent.Token)
	req.NoError(err)
}
