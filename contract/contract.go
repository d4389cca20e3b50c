//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"pinger/domain"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IIdentityStore issues sessions and checks the tokens bound to them.
type IIdentityStore interface {
	Login(ctx context.Context, identity domain.Identity) (domain.Session, error)
	Inspect(ctx context.Context, token string) (domain.Session, error)
	Consume(ctx context.Context, token string) (domain.Session, error)
	Authenticate(ctx context.Context, token string) (domain.Session, error)
	Release(sessionID string)
	Sweep(now time.Time) int
	ActiveSessions() int
}

// IRegistry holds at most one live connection per identity.
type IRegistry interface {
	Admit(ctx context.Context, token string, channel domain.Channel) (domain.Connection, error)
	Remove(identity domain.Identity) bool
	RemoveConnection(conn domain.Connection) bool
	CloseAll(code int, reason string) int
	Lookup(identity domain.Identity) (domain.Connection, bool)
	ListOnline() []domain.Identity
	Connections() []domain.Connection
	Count() int
}

// IPendingPingRepository is the offline queue: one FIFO per recipient.
type IPendingPingRepository interface {
	Enqueue(ctx context.Context, ping domain.PendingPing) error
	Drain(ctx context.Context, identity domain.Identity) ([]domain.PendingPing, error)
	Count(ctx context.Context) (int, error)
}

type IDispatcher interface {
	Ping(ctx context.Context, session domain.Session, from, to domain.Identity) (domain.PingResult, error)
	Connect(ctx context.Context, token string, channel domain.Channel) (domain.Connection, error)
	Disconnect(conn domain.Connection)
}

// IDeliveryRecorder counts what happened to pings, for /health.
type IDeliveryRecorder interface {
	PingDelivered()
	PingQueued()
	PingsDropped(n int)
}

type IRateLimiter interface {
	Allow(key string) bool
	Cleanup(now time.Time) int
}
