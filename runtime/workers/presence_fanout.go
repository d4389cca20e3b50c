package workers

import (
	"context"
	"log/slog"
	"pinger/domain"
	"pinger/domain/event"
	"pinger/protocol"
	"sync"
	"time"
)

// PresenceFanout pushes the client list to every live channel after each presence change.
//
// Delivery is best-effort: a channel that cannot take the frame within sinkTimeout
// misses this update and catches up with the next one. Each broadcast is built from
// the snapshot carried by the event, never from a later read of the registry.
type PresenceFanout struct {
	log         *slog.Logger
	events      <-chan event.PresenceChanged
	sinkTimeout time.Duration
}

func NewPresenceFanout(log *slog.Logger, events <-chan event.PresenceChanged, sinkTimeout time.Duration) *PresenceFanout {
	return &PresenceFanout{log: log, events: events, sinkTimeout: sinkTimeout}
}

func (w *PresenceFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping presence fanout")
			return nil
		}
	}
}

// Fanout encodes the snapshot once and sends it to every connection of the snapshot
// in parallel. It returns once every send has finished, so updates stay in order.
func (w *PresenceFanout) Fanout(ctx context.Context, evt event.PresenceChanged) {
	payload, err := protocol.Encode(protocol.ClientList{Clients: evt.Online})
	if err != nil {
		w.log.Error("Failed to encode client list", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, conn := range evt.Connections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.send(ctx, conn, payload)
		}()
	}
	wg.Wait()
	w.log.Debug("Presence broadcast",
		"kind", evt.Kind, "identity", evt.Identity.Key(), "online", len(evt.Online))
}

func (w *PresenceFanout) send(ctx context.Context, conn domain.Connection, payload []byte) {
	sendCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := conn.Channel.Send(sendCtx, payload); err != nil {
		w.log.Debug("Client list not delivered", "identity", conn.Identity.Key(), "error", err)
	}
}
