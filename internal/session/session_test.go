package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dgellow/authbridge/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_LoginAndLogout(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	store := NewStore(kv, "authbridge")

	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, "authbridge:session", store.Key())

	user := json.RawMessage(`{"login":"octocat"}`)
	st, err := store.Dispatch(ctx, LoginSucceeded{User: user})
	require.NoError(t, err)
	assert.True(t, st.IsAuthenticated)
	assert.JSONEq(t, `{"login":"octocat"}`, string(st.User))
	assert.True(t, store.IsAuthenticated())

	persisted, err := kv.Get(ctx, "authbridge:session")
	require.NoError(t, err)
	assert.Contains(t, string(persisted), `"isAuthenticated":true`)

	st, err = store.Dispatch(ctx, Logout{Reason: ReasonSessionExpired})
	require.NoError(t, err)
	assert.False(t, st.IsAuthenticated)
	assert.Nil(t, st.User, "logout clears user data")
	assert.Equal(t, ReasonSessionExpired, st.LogoutReason)
	assert.False(t, store.IsAuthenticated())
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()

	first := NewStore(kv, "authbridge")
	_, err := first.Dispatch(ctx, LoginSucceeded{User: json.RawMessage(`{"id":1}`)})
	require.NoError(t, err)

	second := NewStore(kv, "authbridge")
	assert.False(t, second.IsAuthenticated())
	require.NoError(t, second.Restore(ctx))
	assert.True(t, second.IsAuthenticated())

	empty := NewStore(storage.NewMemoryStore(), "authbridge")
	require.NoError(t, empty.Restore(ctx))
	assert.False(t, empty.IsAuthenticated())
}

func TestRestore_CorruptState(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, "authbridge:session", []byte("not json"), 0))

	err := NewStore(kv, "authbridge").Restore(ctx)
	assert.Error(t, err)
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	store := NewStore(storage.NewMemoryStore(), "authbridge")

	var seen []string
	unsubscribe := store.Subscribe(func(action Action, prev, next State) {
		seen = append(seen, action.Name())
		if _, ok := action.(LoginSucceeded); ok {
			assert.False(t, prev.IsAuthenticated)
			assert.True(t, next.IsAuthenticated)
		}
	})

	_, err := store.Dispatch(ctx, LoginSucceeded{})
	require.NoError(t, err)
	_, err = store.Dispatch(ctx, Logout{Reason: ReasonUserLogout})
	require.NoError(t, err)

	unsubscribe()
	_, err = store.Dispatch(ctx, LoginSucceeded{})
	require.NoError(t, err)

	assert.Equal(t, []string{"login_succeeded", "logout"}, seen)
}

type failingStore struct {
	storage.Store
}

func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("disk full")
}

func TestDispatch_PersistFailureStillUpdatesState(t *testing.T) {
	store := NewStore(failingStore{Store: storage.NewMemoryStore()}, "authbridge")

	_, err := store.Dispatch(context.Background(), LoginSucceeded{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, store.IsAuthenticated())
}
