package storage

import (
	"fmt"
	"pinger/domain"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// StoredPing is a queued ping as it sits in the store.
type StoredPing struct {
	Key       string
	Ping      domain.PendingPing
	ExpiresAt time.Time
}

// ScanPendingPings walks queued pings in key order without removing them.
// An empty recipient walks every queue.
func ScanPendingPings(db *badger.DB, recipient string, fn func(StoredPing) error) error {
	prefix := []byte(pingPrefix)
	if recipient != "" {
		prefix = []byte(recipientPrefix(domain.Identity{UniqueID: recipient}))
	}

	return db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			stored := StoredPing{Key: string(item.Key())}
			if exp := item.ExpiresAt(); exp > 0 {
				stored.ExpiresAt = time.Unix(int64(exp), 0).UTC()
			}
			err := item.Value(func(v []byte) error {
				ping, err := decodePendingPing(v)
				if err != nil {
					return fmt.Errorf("decode %s: %w", item.Key(), err)
				}
				stored.Ping = ping
				return nil
			})
			if err != nil {
				return err
			}
			if err := fn(stored); err != nil {
				return err
			}
		}
		return nil
	})
}

// OpenBadgerReadOnly opens a file backed store next to a running server, for inspection.
func OpenBadgerReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger read-only (path=%q): %w", path, err)
	}
	return db, nil
}
