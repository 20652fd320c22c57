package syncengine

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltObservation adapts a bbolt bucket into an Observation by polling a
// revision counter on a short ticker: bbolt has no native change feed, so
// every tick reads the bucket's current revision and decodes the full row
// set via decodeAll, emitting the rows only when the revision differs from
// the last one seen. This is a
// documented limitation, not a hidden one — a real deployment wanting
// push-based notification would replace this with a database that
// supports LISTEN/NOTIFY or a CDC stream, swapped in behind the same
// Observation interface.
type BoltObservation[T any] struct {
	db        *bolt.DB
	bucket    []byte
	revKey    []byte
	interval  time.Duration
	decodeAll func(tx *bolt.Tx, bucket []byte) ([]T, error)
}

// NewBoltObservation returns a BoltObservation polling bucket for changes
// to the counter stored under revKey, decoding the full row set with
// decodeAll whenever that counter changes.
func NewBoltObservation[T any](db *bolt.DB, bucket, revKey []byte, interval time.Duration, decodeAll func(tx *bolt.Tx, bucket []byte) ([]T, error)) *BoltObservation[T] {
	if interval <= 0 {
		interval = time.Second
	}
	return &BoltObservation[T]{db: db, bucket: bucket, revKey: revKey, interval: interval, decodeAll: decodeAll}
}

// Subscribe implements Observation. The returned channel is closed when
// ctx is done.
func (o *BoltObservation[T]) Subscribe(ctx context.Context) (<-chan []T, error) {
	out := make(chan []T, 1)

	initial, lastRev, err := o.snapshot()
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(out)
		select {
		case out <- initial:
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(o.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				records, rev, err := o.snapshot()
				if err != nil || rev == lastRev {
					continue
				}
				lastRev = rev
				select {
				case out <- records:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (o *BoltObservation[T]) snapshot() ([]T, uint64, error) {
	var records []T
	var rev uint64
	err := o.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(o.bucket)
		if b == nil {
			return fmt.Errorf("opkit/syncengine: bucket %q not found", o.bucket)
		}
		if data := b.Get(o.revKey); data != nil {
			rev = decodeRevision(data)
		}
		decoded, err := o.decodeAll(tx, o.bucket)
		if err != nil {
			return err
		}
		records = decoded
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("opkit/syncengine: snapshot: %w", err)
	}
	return records, rev, nil
}

func decodeRevision(data []byte) uint64 {
	var rev uint64
	for _, b := range data {
		rev = rev<<8 | uint64(b)
	}
	return rev
}
