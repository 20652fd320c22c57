package tokens

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu     sync.Mutex
	values map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{values: make(map[string][]byte)} }

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func TestLoadCachesAccessToken(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	var calls int32
	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("access-" + string(refresh)), []byte("r1"), nil
	}

	tok := New(storage)
	access, err := tok.Load(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, "access-r0", string(access))

	access2, err := tok.Load(context.Background(), loader)
	require.NoError(t, err)
	assert.Equal(t, "access-r0", string(access2))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLoadDeduplicatesConcurrentRefreshes(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	var calls int32
	release := make(chan struct{})
	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("access"), []byte("r1"), nil
	}

	tok := New(storage)
	const callers = 5
	results := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			access, err := tok.Load(context.Background(), loader)
			results[i], errs[i] = string(access), err
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
		assert.Equal(t, "access", results[i])
	}
}

func TestLoadPersistsNextRefreshToken(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		return []byte("access"), []byte("r1"), nil
	}

	tok := New(storage)
	_, err := tok.Load(context.Background(), loader)
	require.NoError(t, err)

	stored, err := storage.Get(context.Background(), refreshKey)
	require.NoError(t, err)
	assert.Equal(t, "r1", string(stored))
}

func TestBearerValuesReturnsCachedAndStored(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	tok := New(storage)
	_, refresh, err := tok.BearerValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r0", string(refresh))

	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		return []byte("access"), nil, nil
	}
	_, err = tok.Load(context.Background(), loader)
	require.NoError(t, err)

	access, _, err := tok.BearerValues(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access", string(access))
}

func TestClearWipesAccessAndRefresh(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		return []byte("access"), []byte("r1"), nil
	}
	tok := New(storage)
	_, err := tok.Load(context.Background(), loader)
	require.NoError(t, err)

	require.NoError(t, tok.Clear(context.Background()))

	stored, err := storage.Get(context.Background(), refreshKey)
	require.NoError(t, err)
	assert.Nil(t, stored)

	access, _, err := tok.BearerValues(context.Background())
	require.NoError(t, err)
	assert.Nil(t, access)
}

func TestLoadPropagatesLoaderError(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	loadErr := errors.New("exchange failed")
	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		return nil, nil, loadErr
	}

	tok := New(storage)
	_, err := tok.Load(context.Background(), loader)
	assert.ErrorIs(t, err, loadErr)
}

func TestLoadWaiterContextCancellation(t *testing.T) {
	storage := newMemStorage()
	require.NoError(t, storage.Set(context.Background(), refreshKey, []byte("r0")))

	release := make(chan struct{})
	loader := func(_ context.Context, refresh []byte) ([]byte, []byte, error) {
		<-release
		return []byte("access"), []byte("r1"), nil
	}

	tok := New(storage)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := tok.Load(ctx, loader)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	close(release)
}
