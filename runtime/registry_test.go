package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"pinger/domain"
	"pinger/domain/event"
	"pinger/errors"
	"pinger/mocks"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = domain.Identity{Username: "alice", UniqueID: "uid-alice"}
	bob   = domain.Identity{Username: "bob", UniqueID: "uid-bob"}
	carol = domain.Identity{Username: "carol", UniqueID: "uid-carol"}
)

func newTestRegistry(t *testing.T, bufferSize int) (*Registry, *mocks.MockIIdentityStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIIdentityStore(ctrl)
	store.EXPECT().Release(gomock.Any()).AnyTimes()
	return NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), store, bufferSize), store
}

func expectSession(store *mocks.MockIIdentityStore, token string, identity domain.Identity) domain.Session {
	session := domain.Session{ID: "session-" + token, Identity: identity, Token: token, State: domain.SessionBound}
	store.EXPECT().Consume(gomock.Any(), token).Return(session, nil)
	return session
}

func TestRegistry_Admit(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	session := expectSession(store, "t1", alice)
	channel := &recordingChannel{}

	// When alice presents her token
	conn, err := registry.Admit(context.Background(), "t1", channel)

	// Then she is online, bound to her session
	req.NoError(err)
	req.Equal(alice, conn.Identity)
	req.Equal(session.ID, conn.SessionID)
	req.Equal(1, registry.Count())
	found, ok := registry.Lookup(alice)
	req.True(ok)
	req.Equal(conn.ID, found.ID)

	// Then one presence event carries the new snapshot
	evt := <-registry.Events()
	req.Equal(event.Admitted, evt.Kind)
	req.Equal([]domain.Identity{alice}, evt.Online)
	req.Len(evt.Connections, 1)
}

func TestRegistry_Admit_RefusedToken(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	store.EXPECT().Consume(gomock.Any(), "used").Return(domain.Session{}, errors.ErrTokenAlreadyConsumed)

	_, err := registry.Admit(context.Background(), "used", &recordingChannel{})

	req.ErrorIs(err, errors.ErrTokenAlreadyConsumed)
	req.Equal(0, registry.Count())
	req.Empty(registry.Events())
}

func TestRegistry_Admit_SupersedesPreviousConnection(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIIdentityStore(ctrl)
	registry := NewRegistry(logs.GetLoggerFromLevel(slog.LevelDebug), store, 10)

	first := expectSession(store, "t1", alice)
	expectSession(store, "t2", alice)
	oldChannel, newChannel := &recordingChannel{}, &recordingChannel{}

	oldConn, err := registry.Admit(context.Background(), "t1", oldChannel)
	req.NoError(err)

	// Then the previous session is released when superseded
	store.EXPECT().Release(first.ID)

	// When alice connects again from another device
	newConn, err := registry.Admit(context.Background(), "t2", newChannel)
	req.NoError(err)

	// Then only the new connection remains and the old channel is closed as superseded
	req.Equal(1, registry.Count())
	current, ok := registry.Lookup(alice)
	req.True(ok)
	req.Equal(newConn.ID, current.ID)
	closed, code := oldChannel.Closed()
	req.True(closed)
	req.Equal(domain.CloseSuperseded, code)

	// Then the old connection tearing down does not evict the new one
	req.False(registry.RemoveConnection(oldConn))
	req.Equal(1, registry.Count())
	closed, _ = newChannel.Closed()
	req.False(closed)
}

func TestRegistry_RemoveConnection(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	expectSession(store, "t1", alice)
	expectSession(store, "t2", bob)

	aliceConn, err := registry.Admit(context.Background(), "t1", &recordingChannel{})
	req.NoError(err)
	_, err = registry.Admit(context.Background(), "t2", &recordingChannel{})
	req.NoError(err)
	<-registry.Events()
	<-registry.Events()

	// When alice's channel goes away
	req.True(registry.RemoveConnection(aliceConn))
	req.False(registry.RemoveConnection(aliceConn))

	// Then bob alone remains and everybody left is told
	req.Equal([]domain.Identity{bob}, registry.ListOnline())
	evt := <-registry.Events()
	req.Equal(event.Removed, evt.Kind)
	req.Equal(alice, evt.Identity)
	req.Equal([]domain.Identity{bob}, evt.Online)
	req.Empty(registry.Events())
}

func TestRegistry_Remove_ClosesChannel(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	expectSession(store, "t1", alice)
	channel := &recordingChannel{}
	_, err := registry.Admit(context.Background(), "t1", channel)
	req.NoError(err)

	req.True(registry.Remove(alice))
	req.False(registry.Remove(alice))

	closed, code := channel.Closed()
	req.True(closed)
	req.Equal(domain.CloseNormal, code)
	_, ok := registry.Lookup(alice)
	req.False(ok)
}

func TestRegistry_ListOnline_OrderedByConnectionTime(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := []time.Time{base.Add(2 * time.Second), base, base}
	registry.now = func() time.Time {
		next := clock[0]
		if len(clock) > 1 {
			clock = clock[1:]
		}
		return next
	}

	// Given carol connecting first by clock, then alice and bob at the same instant
	expectSession(store, "t1", carol)
	expectSession(store, "t2", alice)
	expectSession(store, "t3", bob)
	for _, token := range []string{"t1", "t2", "t3"} {
		_, err := registry.Admit(context.Background(), token, &recordingChannel{})
		req.NoError(err)
	}

	// Then the list follows connection time, ties broken by arrival
	req.Equal([]domain.Identity{alice, bob, carol}, registry.ListOnline())
}

func TestRegistry_ConcurrentAdmitsKeepOneConnectionPerIdentity(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 1000)

	// Given 20 identities, each connecting 5 times concurrently
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		identity := domain.Identity{Username: "user", UniqueID: fmt.Sprintf("uid-%d", i)}
		for j := 0; j < 5; j++ {
			token := fmt.Sprintf("t-%d-%d", i, j)
			expectSession(store, token, identity)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := registry.Admit(context.Background(), token, &recordingChannel{})
				req.NoError(err)
			}()
		}
	}
	wg.Wait()

	// Then each identity is listed once
	online := registry.ListOnline()
	req.Len(online, 20)
	seen := make(map[string]struct{})
	for _, identity := range online {
		_, dup := seen[identity.Key()]
		req.False(dup)
		seen[identity.Key()] = struct{}{}
	}
	req.Len(registry.Connections(), 20)
}

func TestRegistry_FullEventBufferDoesNotBlock(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 1)
	expectSession(store, "t1", alice)
	expectSession(store, "t2", bob)

	_, err := registry.Admit(context.Background(), "t1", &recordingChannel{})
	req.NoError(err)
	_, err = registry.Admit(context.Background(), "t2", &recordingChannel{})
	req.NoError(err)

	// Then the second event was dropped and the state is still complete
	req.Len(registry.Events(), 1)
	req.Equal(2, registry.Count())
}

func TestRegistry_CloseAll(t *testing.T) {
	req := require.New(t)
	registry, store := newTestRegistry(t, 10)
	expectSession(store, "t1", alice)
	expectSession(store, "t2", bob)
	channels := []*recordingChannel{{}, {}}
	_, err := registry.Admit(context.Background(), "t1", channels[0])
	req.NoError(err)
	_, err = registry.Admit(context.Background(), "t2", channels[1])
	req.NoError(err)

	req.Equal(2, registry.CloseAll(domain.CloseServerShutdown, "shutdown"))

	req.Equal(0, registry.Count())
	for _, ch := range channels {
		closed, code := ch.Closed()
		req.True(closed)
		req.Equal(domain.CloseServerShutdown, code)
	}
}
