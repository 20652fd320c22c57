package syncengine

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

var (
	testBucket = []byte("records")
	testRevKey = []byte("rev")
)

type rowRecord struct {
	id int
}

func (r rowRecord) RecordID() int { return r.id }

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sync.db")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(testBucket)
		return err
	}))
	return db
}

func setRevision(t *testing.T, db *bolt.DB, rev uint64) {
	t.Helper()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, rev)
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(testBucket).Put(testRevKey, buf)
	}))
}

func addRow(t *testing.T, db *bolt.DB, id int) {
	t.Helper()
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(testBucket).Put(buf, []byte{1})
	}))
}

func decodeRows(tx *bolt.Tx, bucket []byte) ([]rowRecord, error) {
	var rows []rowRecord
	c := tx.Bucket(bucket).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if string(k) == string(testRevKey) {
			continue
		}
		rows = append(rows, rowRecord{id: int(binary.BigEndian.Uint64(k))})
	}
	return rows, nil
}

func TestBoltObservationEmitsInitialSnapshot(t *testing.T) {
	db := openTestDB(t)
	addRow(t, db, 1)
	addRow(t, db, 2)

	obs := NewBoltObservation[rowRecord](db, testBucket, testRevKey, 10*time.Millisecond, decodeRows)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := obs.Subscribe(ctx)
	require.NoError(t, err)

	select {
	case records := <-stream:
		assert.Len(t, records, 2)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for initial snapshot")
	}
}

func TestBoltObservationEmitsOnRevisionChange(t *testing.T) {
	db := openTestDB(t)
	setRevision(t, db, 1)

	obs := NewBoltObservation[rowRecord](db, testBucket, testRevKey, 10*time.Millisecond, decodeRows)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := obs.Subscribe(ctx)
	require.NoError(t, err)
	<-stream // initial snapshot

	addRow(t, db, 5)
	setRevision(t, db, 2)

	select {
	case records := <-stream:
		assert.Len(t, records, 1)
		assert.Equal(t, 5, records[0].id)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for revision change emission")
	}
}

func TestBoltObservationClosesChannelOnContextDone(t *testing.T) {
	db := openTestDB(t)

	obs := NewBoltObservation[rowRecord](db, testBucket, testRevKey, 10*time.Millisecond, decodeRows)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := obs.Subscribe(ctx)
	require.NoError(t, err)
	<-stream // initial snapshot

	cancel()

	require.Eventually(t, func() bool {
		_, ok := <-stream
		return !ok
	}, time.Second, 5*time.Millisecond)
}
