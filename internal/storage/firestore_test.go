package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreStoreConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("missing GCP project ID", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, "", "(default)", "authbridge_kv")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "projectID is required")
	})

	t.Run("missing collection", func(t *testing.T) {
		_, err := NewFirestoreStore(ctx, "test-project", "(default)", "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "collection is required")
	})
}

// newTestFirestoreStore connects to the emulator named by
// FIRESTORE_EMULATOR_HOST. Each test gets its own collection.
func newTestFirestoreStore(t *testing.T) *FirestoreStore {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	s, err := NewFirestoreStore(context.Background(), "authbridge-test", "(default)", "kv_"+uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFirestoreStore_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestFirestoreStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "authbridge:session", []byte("v1"), 0))
	require.NoError(t, s.Set(ctx, "authbridge:session", []byte("v2"), time.Minute))
	got, err := s.Get(ctx, "authbridge:session")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, s.Delete(ctx, "authbridge:session"))
	require.NoError(t, s.Delete(ctx, "authbridge:session"))
	_, err = s.Get(ctx, "authbridge:session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirestoreStore_KeysWithSlashes(t *testing.T) {
	ctx := context.Background()
	s := newTestFirestoreStore(t)

	require.NoError(t, s.Set(ctx, "authbridge:attempt:github/enterprise:1", []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "authbridge:attempt:github:1", []byte("b"), 0))

	got, err := s.Get(ctx, "authbridge:attempt:github/enterprise:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func TestFirestoreStore_Take(t *testing.T) {
	ctx := context.Background()
	s := newTestFirestoreStore(t)

	taken, err := s.Take(ctx, "marker")
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, s.Set(ctx, "marker", []byte("1"), time.Minute))

	taken, err = s.Take(ctx, "marker")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.Take(ctx, "marker")
	require.NoError(t, err)
	assert.False(t, taken)

	_, err = s.Get(ctx, "marker")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFirestoreStore_ConcurrentTakeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newTestFirestoreStore(t)
	require.NoError(t, s.Set(ctx, "race", []byte("1"), time.Minute))

	// Contended transactions may give up with ABORTED; a taker that errors
	// never committed, so it can't have won.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if taken, err := s.Take(ctx, "race"); err == nil && taken {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestFirestoreStore_ExpiryAndSweep(t *testing.T) {
	ctx := context.Background()
	s := newTestFirestoreStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, s.Set(ctx, "expired-marker", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))

	now = now.Add(2 * time.Second)

	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	taken, err := s.Take(ctx, "expired-marker")
	require.NoError(t, err)
	assert.False(t, taken)

	count, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}
