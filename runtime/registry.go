package runtime

import (
	"context"
	"log/slog"
	"pinger/contract"
	"pinger/domain"
	"pinger/domain/event"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

type entry struct {
	conn domain.Connection
	seq  uint64
}

// Registry maps each online identity to its single live connection.
// Every mutation publishes a PresenceChanged event built under the same lock,
// so events are ordered exactly like the mutations they describe.
type Registry struct {
	log    *slog.Logger
	store  contract.IIdentityStore
	events chan event.PresenceChanged
	now    func() time.Time

	mu          sync.RWMutex
	connections map[string]entry
	seq         uint64
}

func NewRegistry(log *slog.Logger, store contract.IIdentityStore, eventBufferSize int) *Registry {
	return &Registry{
		log:         log,
		store:       store,
		events:      make(chan event.PresenceChanged, eventBufferSize),
		now:         time.Now,
		connections: make(map[string]entry),
	}
}

// Events is consumed by the presence broadcaster.
func (r *Registry) Events() <-chan event.PresenceChanged {
	return r.events
}

// Admit consumes token and registers channel as the live connection of its identity.
// A previous connection of the same identity is superseded: closed and its session released.
func (r *Registry) Admit(ctx context.Context, token string, channel domain.Channel) (domain.Connection, error) {
	session, err := r.store.Consume(ctx, token)
	if err != nil {
		return domain.Connection{}, err
	}
	conn := domain.NewConnection(session, channel, r.now())
	key := conn.Identity.Key()

	r.mu.Lock()
	previous, superseded := r.connections[key]
	r.seq++
	r.connections[key] = entry{conn: conn, seq: r.seq}
	r.publish(event.Admitted, conn.Identity)
	r.mu.Unlock()

	if superseded {
		r.log.Info("Connection superseded",
			"identity", key, "previous", previous.conn.ID, "next", conn.ID)
		r.release(previous.conn, domain.CloseSuperseded, "superseded")
	}
	r.log.Debug("Connection admitted", "identity", key, "connection", conn.ID)
	return conn, nil
}

// Remove drops whatever connection identity holds and closes it.
func (r *Registry) Remove(identity domain.Identity) bool {
	r.mu.Lock()
	current, ok := r.connections[identity.Key()]
	if ok {
		delete(r.connections, identity.Key())
		r.publish(event.Removed, identity)
	}
	r.mu.Unlock()

	if ok {
		r.release(current.conn, domain.CloseNormal, "removed")
	}
	return ok
}

// RemoveConnection drops conn only if it is still the registered one,
// so a superseded connection tearing down never evicts its successor.
func (r *Registry) RemoveConnection(conn domain.Connection) bool {
	key := conn.Identity.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.connections[key]
	if !ok || current.conn.ID != conn.ID {
		return false
	}
	delete(r.connections, key)
	r.publish(event.Removed, conn.Identity)
	return true
}

// CloseAll removes every connection and closes it with code. Used on shutdown.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	closing := lo.Values(r.connections)
	clear(r.connections)
	if len(closing) > 0 {
		r.publish(event.Removed, domain.Identity{})
	}
	r.mu.Unlock()

	for _, e := range closing {
		r.release(e.conn, code, reason)
	}
	return len(closing)
}

func (r *Registry) Lookup(identity domain.Identity) (domain.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.connections[identity.Key()]
	return e.conn, ok
}

// ListOnline returns the online identities, oldest connection first.
func (r *Registry) ListOnline() []domain.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return identities(r.ordered())
}

// Connections returns the live connections, oldest first.
func (r *Registry) Connections() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// ordered must be called with mu held.
func (r *Registry) ordered() []domain.Connection {
	entries := lo.Values(r.connections)
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.conn.ConnectedAt.Equal(b.conn.ConnectedAt) {
			return a.conn.ConnectedAt.Before(b.conn.ConnectedAt)
		}
		return a.seq < b.seq
	})
	return lo.Map(entries, func(e entry, _ int) domain.Connection { return e.conn })
}

// publish must be called with mu held. A full buffer drops the event,
// the next one carries a complete snapshot anyway.
func (r *Registry) publish(kind event.PresenceKind, identity domain.Identity) {
	conns := r.ordered()
	evt := event.PresenceChanged{
		Kind:        kind,
		Identity:    identity,
		Online:      identities(conns),
		Connections: conns,
		At:          r.now(),
	}
	select {
	case r.events <- evt:
	default:
		r.log.Warn("Presence event channel full, dropping event",
			"kind", kind, "identity", identity.Key(), "capacity", cap(r.events))
	}
}

func (r *Registry) release(conn domain.Connection, code int, reason string) {
	if err := conn.Channel.Close(code, reason); err != nil {
		r.log.Debug("Failed to close channel", "identity", conn.Identity.Key(), "error", err)
	}
	r.store.Release(conn.SessionID)
}

func identities(conns []domain.Connection) []domain.Identity {
	return lo.Map(conns, func(c domain.Connection, _ int) domain.Identity { return c.Identity })
}
