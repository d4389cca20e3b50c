package runtime

import (
	"context"
	"log/slog"
	"pinger/auth"
	"pinger/contract"
	"pinger/domain"
	"pinger/errors"
	"pinger/protocol"
	"time"
)

// Dispatcher routes pings to online recipients and parks the others in the offline queue.
// Operations touching one recipient (its connect, drain and the pings sent to it) run under
// that recipient's key lock, which is what keeps queued pings ahead of live ones.
type Dispatcher struct {
	log         *slog.Logger
	registry    contract.IRegistry
	store       contract.IIdentityStore
	queue       contract.IPendingPingRepository
	limiter     contract.IRateLimiter
	recorder    contract.IDeliveryRecorder
	locks       *KeyedMutex
	sinkTimeout time.Duration
	now         func() time.Time
}

func NewDispatcher(
	log *slog.Logger,
	registry contract.IRegistry,
	store contract.IIdentityStore,
	queue contract.IPendingPingRepository,
	limiter contract.IRateLimiter,
	recorder contract.IDeliveryRecorder,
	sinkTimeout time.Duration,
) *Dispatcher {
	return &Dispatcher{
		log:         log,
		registry:    registry,
		store:       store,
		queue:       queue,
		limiter:     limiter,
		recorder:    recorder,
		locks:       NewKeyedMutex(),
		sinkTimeout: sinkTimeout,
		now:         time.Now,
	}
}

// Ping sends a ping from the session owner to the target.
func (d *Dispatcher) Ping(ctx context.Context, session domain.Session, from, to domain.Identity) (domain.PingResult, error) {
	// 1. Syntax first, nothing is looked up for a malformed request
	if err := auth.ValidateIdentity(from); err != nil {
		return domain.PingResult{}, err
	}
	if err := auth.ValidateTarget(to); err != nil {
		return domain.PingResult{}, err
	}

	// 2. The claimed sender must be the authenticated one, never silently corrected
	if !from.Same(session.Identity) {
		d.log.Warn("Possible spoofing attempt: claimed sender does not match session",
			"session", session.ID, "session_identity", session.Identity.Key(), "claimed", from.Key())
		return domain.PingResult{}, errors.ErrUnknownSelfIdentity
	}

	if d.limiter != nil && !d.limiter.Allow(session.Identity.Key()) {
		d.log.Debug("Ping rate limited", "sender", session.Identity.Key())
		return domain.PingResult{}, errors.ErrRateLimited
	}

	// 3. The session identity carries the moderated username
	ping := domain.NewPendingPing(session.Identity, to, d.now())

	unlock := d.locks.Lock(to.Key())
	defer unlock()

	if conn, online := d.registry.Lookup(to); online {
		ping.To = conn.Identity
		err := d.send(ctx, conn, protocol.Ping{ID: ping.ID, From: ping.From, To: ping.To, At: ping.CreatedAt})
		if err == nil {
			d.recorder.PingDelivered()
			d.log.Debug("Ping delivered", "from", ping.From.Key(), "to", ping.To.Key(), "ping", ping.ID)
			return domain.PingResult{PingID: ping.ID, Status: domain.Delivered, TargetOnline: true}, nil
		}
		d.log.Warn("Immediate delivery failed, queuing ping",
			"to", ping.To.Key(), "connection", conn.ID, "error", err)
	}

	if err := d.queue.Enqueue(ctx, ping); err != nil {
		return domain.PingResult{}, err
	}
	d.recorder.PingQueued()
	d.log.Debug("Ping queued", "from", ping.From.Key(), "to", ping.To.Key(), "ping", ping.ID)
	return domain.PingResult{PingID: ping.ID, Status: domain.Queued, TargetOnline: false}, nil
}

// Connect admits channel for the identity bound to token, then replays its offline queue
// on the channel before returning. Callers start reading the channel only afterwards.
func (d *Dispatcher) Connect(ctx context.Context, token string, channel domain.Channel) (domain.Connection, error) {
	session, err := d.store.Inspect(ctx, token)
	if err != nil {
		return domain.Connection{}, err
	}

	unlock := d.locks.Lock(session.Identity.Key())
	defer unlock()

	conn, err := d.registry.Admit(ctx, token, channel)
	if err != nil {
		return domain.Connection{}, err
	}

	pings, err := d.queue.Drain(ctx, conn.Identity)
	if err != nil {
		d.log.Error("Failed to drain offline queue", "identity", conn.Identity.Key(), "error", err)
		return conn, nil
	}

	// Fire and forget: a replay that fails is not queued again
	lost := 0
	for _, p := range pings {
		frame := protocol.QueuedPing{ID: p.ID, From: p.From, To: conn.Identity, At: p.CreatedAt}
		if err := d.send(ctx, conn, frame); err != nil {
			lost++
			d.log.Debug("Queued ping lost during replay", "to", conn.Identity.Key(), "ping", p.ID, "error", err)
		}
	}
	if lost > 0 {
		d.recorder.PingsDropped(lost)
	}

	d.log.Info("Client connected",
		"identity", conn.Identity.String(), "connection", conn.ID, "replayed", len(pings)-lost)
	return conn, nil
}

// Disconnect forgets conn and kills its token. Safe to call more than once.
func (d *Dispatcher) Disconnect(conn domain.Connection) {
	if d.registry.RemoveConnection(conn) {
		d.log.Info("Client disconnected", "identity", conn.Identity.String(), "connection", conn.ID)
	}
	d.store.Release(conn.SessionID)
}

func (d *Dispatcher) send(ctx context.Context, conn domain.Connection, frame protocol.Frame) error {
	payload, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.sinkTimeout)
	defer cancel()
	return conn.Channel.Send(sendCtx, payload)
}
