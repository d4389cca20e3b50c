package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"pinger/contract"
	"pinger/domain"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	pingPrefix  = "ping:"
	drainBatch  = 1000
	maxAttempts = 5
)

// PendingPingRepository is the offline queue, one FIFO per recipient stored in BadgerDB.
// Keys are "ping:{unique_id}:{seq}" with a 20-digit zero padded sequence, so a prefix
// scan returns a recipient's pings in arrival order.
// Callers serialize Enqueue and Drain for one recipient; conflicting transactions are retried.
type PendingPingRepository struct {
	db             *badger.DB
	log            *slog.Logger
	recorder       contract.IDeliveryRecorder
	capPerIdentity int
	retention      time.Duration
	seq            atomic.Uint64
}

func NewPendingPingRepository(
	db *badger.DB,
	log *slog.Logger,
	recorder contract.IDeliveryRecorder,
	capPerIdentity int,
	retention time.Duration,
) *PendingPingRepository {
	r := &PendingPingRepository{
		db:             db,
		log:            log,
		recorder:       recorder,
		capPerIdentity: capPerIdentity,
		retention:      retention,
	}
	// Seeding with the clock keeps keys increasing across restarts of a file backed store.
	r.seq.Store(uint64(time.Now().UnixNano()))
	return r
}

// Enqueue appends ping to its recipient's queue.
// When the queue is at capacity the oldest pings are dropped to make room.
func (r *PendingPingRepository) Enqueue(_ context.Context, ping domain.PendingPing) error {
	value, err := encodePendingPing(ping)
	if err != nil {
		return err
	}
	key := []byte(fmt.Sprintf("%s%020d", recipientPrefix(ping.To), r.seq.Add(1)))

	var dropped int
	err = r.update(func(txn *badger.Txn) error {
		dropped = 0
		if r.capPerIdentity > 0 {
			existing := collectKeys(txn, []byte(recipientPrefix(ping.To)))
			if overflow := len(existing) + 1 - r.capPerIdentity; overflow > 0 {
				for _, k := range existing[:overflow] {
					if err := txn.Delete(k); err != nil {
						return err
					}
				}
				dropped = overflow
			}
		}

		entry := badger.NewEntry(key, value)
		if r.retention > 0 {
			entry = entry.WithTTL(r.retention)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("enqueue ping for %s: %w", ping.To.Key(), err)
	}

	if dropped > 0 {
		r.log.Warn("Offline queue full, oldest pings dropped",
			"recipient", ping.To.Key(), "dropped", dropped, "cap", r.capPerIdentity)
		if r.recorder != nil {
			r.recorder.PingsDropped(dropped)
		}
	}
	return nil
}

// Drain removes and returns every pending ping of identity, oldest first.
func (r *PendingPingRepository) Drain(_ context.Context, identity domain.Identity) ([]domain.PendingPing, error) {
	prefix := []byte(recipientPrefix(identity))
	var pings []domain.PendingPing

	for {
		var batch []domain.PendingPing
		err := r.update(func(txn *badger.Txn) error {
			batch = batch[:0]
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			var keys [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix) && len(keys) < drainBatch; it.Next() {
				item := it.Item()
				err := item.Value(func(v []byte) error {
					ping, err := decodePendingPing(v)
					if err != nil {
						return fmt.Errorf("decode %s: %w", item.Key(), err)
					}
					batch = append(batch, ping)
					return nil
				})
				if err != nil {
					it.Close()
					return err
				}
				keys = append(keys, item.KeyCopy(nil))
			}
			it.Close()

			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("drain pings of %s: %w", identity.Key(), err)
		}
		pings = append(pings, batch...)
		if len(batch) < drainBatch {
			return pings, nil
		}
	}
}

// Count returns the number of pings waiting across all recipients. Expired pings are not counted.
func (r *PendingPingRepository) Count(_ context.Context) (int, error) {
	var n int
	err := r.db.View(func(txn *badger.Txn) error {
		n = len(collectKeys(txn, []byte(pingPrefix)))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count pings: %w", err)
	}
	return n, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (r *PendingPingRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		r.log.Debug("Badger transaction conflict, retrying", "attempt", attempt)
	}
	return err
}

func recipientPrefix(identity domain.Identity) string {
	return pingPrefix + identity.Key() + ":"
}

// collectKeys returns the keys under prefix in order.
func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func encodePendingPing(ping domain.PendingPing) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"id":             ping.ID.String(),
		"from_username":  ping.From.Username,
		"from_unique_id": ping.From.UniqueID,
		"to_username":    ping.To.Username,
		"to_unique_id":   ping.To.UniqueID,
		"created_at":     ping.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode ping: %w", err)
	}
	return proto.Marshal(st)
}

func decodePendingPing(data []byte) (domain.PendingPing, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return domain.PendingPing{}, err
	}
	fields := st.GetFields()
	str := func(name string) string { return fields[name].GetStringValue() }

	id, err := uuid.Parse(str("id"))
	if err != nil {
		return domain.PendingPing{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, str("created_at"))
	if err != nil {
		return domain.PendingPing{}, err
	}
	return domain.PendingPing{
		ID:        id,
		From:      domain.Identity{Username: str("from_username"), UniqueID: str("from_unique_id")},
		To:        domain.Identity{Username: str("to_username"), UniqueID: str("to_unique_id")},
		CreatedAt: createdAt,
	}, nil
}
