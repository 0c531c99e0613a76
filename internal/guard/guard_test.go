package guard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/dgellow/authbridge/internal/storage"
	"github.com/dgellow/authbridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func statusServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func loggedInStore(t *testing.T) (*session.Store, *atomic.Int32) {
	t.Helper()
	store := session.NewStore(storage.NewMemoryStore(), "authbridge")
	_, err := store.Dispatch(context.Background(), session.LoginSucceeded{})
	require.NoError(t, err)

	var logouts atomic.Int32
	store.Subscribe(func(action session.Action, _, _ session.State) {
		if _, ok := action.(session.Logout); ok {
			logouts.Add(1)
		}
	})
	return store, &logouts
}

func TestTransport_PassesThroughNon401(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := statusServer(t, status, "body-"+http.StatusText(status))
			notifier := &testutil.RecordingNotifier{}
			dispatcher := &testutil.MockDispatcher{}

			g := New(config.GuardConfig{CoalesceWindow: time.Second}, notifier, dispatcher)
			client := &http.Client{Transport: g.Transport(nil)}

			resp, err := client.Get(srv.URL)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			assert.Equal(t, status, resp.StatusCode)
			assert.Equal(t, "body-"+http.StatusText(status), string(body))
			assert.Empty(t, notifier.Messages())
			dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
		})
	}
}

func TestTransport_PropagatesNetworkError(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	dispatcher := &testutil.MockDispatcher{}
	g := New(config.GuardConfig{}, notifier, dispatcher)

	boom := errors.New("connection refused")
	rt := g.Transport(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	}))

	req := httptest.NewRequest(http.MethodGet, "http://backend.invalid/api", nil)
	resp, err := rt.RoundTrip(req)
	assert.Nil(t, resp)
	assert.Same(t, boom, err)
	assert.Empty(t, notifier.Messages())
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestTransport_401SideEffectsBeforeReturn(t *testing.T) {
	srv := statusServer(t, http.StatusUnauthorized, `{"error":"unauthorized"}`)
	notifier := &testutil.RecordingNotifier{}
	store, logouts := loggedInStore(t)

	g := New(config.GuardConfig{CoalesceWindow: time.Second}, notifier, store)
	client := &http.Client{Transport: g.Transport(nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorized"}`, string(body), "response returned unchanged")

	assert.Equal(t, []string{"Session expired. Please login again."}, notifier.Messages())
	assert.Equal(t, int32(1), logouts.Load())
	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, session.ReasonSessionExpired, store.State().LogoutReason)
}

func TestObserve_CoalescesConcurrent401s(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	store, logouts := loggedInStore(t)
	g := New(config.GuardConfig{CoalesceWindow: time.Minute}, notifier, store)

	srv := statusServer(t, http.StatusUnauthorized, "")
	client := &http.Client{Transport: g.Transport(nil)}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := client.Get(srv.URL)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.Messages(), 1)
	assert.Equal(t, int32(1), logouts.Load())
}

type blockingNotifier struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (n *blockingNotifier) Notify(notify.Level, string) {
	n.once.Do(func() { close(n.entered) })
	<-n.release
}

func TestObserve_CoalescedCallWaitsForLogout(t *testing.T) {
	store, _ := loggedInStore(t)
	notifier := &blockingNotifier{entered: make(chan struct{}), release: make(chan struct{})}
	g := New(config.GuardConfig{CoalesceWindow: time.Minute}, notifier, store)

	first := make(chan bool, 1)
	go func() { first <- g.Observe(context.Background(), http.StatusUnauthorized) }()
	<-notifier.entered

	second := make(chan bool, 1)
	go func() { second <- g.Observe(context.Background(), http.StatusUnauthorized) }()

	select {
	case <-second:
		t.Fatal("coalesced 401 returned while the logout was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(notifier.release)
	assert.True(t, <-first)
	assert.False(t, <-second)
	assert.False(t, store.IsAuthenticated())
}

func TestObserve_ZeroWindowReportsEvery401(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	store, logouts := loggedInStore(t)
	g := New(config.GuardConfig{CoalesceWindow: 0}, notifier, store)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Observe(context.Background(), http.StatusUnauthorized)
		}()
	}
	wg.Wait()

	assert.Len(t, notifier.Messages(), 5)
	assert.Equal(t, int32(5), logouts.Load())
}

func TestObserve_WindowExpires(t *testing.T) {
	notifier := &testutil.RecordingNotifier{}
	store, _ := loggedInStore(t)
	g := New(config.GuardConfig{CoalesceWindow: 50 * time.Millisecond}, notifier, store)

	assert.True(t, g.Observe(context.Background(), http.StatusUnauthorized))
	assert.False(t, g.Observe(context.Background(), http.StatusUnauthorized))

	time.Sleep(80 * time.Millisecond)
	assert.True(t, g.Observe(context.Background(), http.StatusUnauthorized))
	assert.Len(t, notifier.Messages(), 2)
}

func TestResetOnLogin(t *testing.T) {
	ctx := context.Background()
	notifier := &testutil.RecordingNotifier{}
	store, logouts := loggedInStore(t)
	g := New(config.GuardConfig{CoalesceWindow: time.Hour}, notifier, store)
	unsubscribe := g.ResetOnLogin(store)
	defer unsubscribe()

	assert.True(t, g.Observe(ctx, http.StatusUnauthorized))
	assert.False(t, g.Observe(ctx, http.StatusUnauthorized))

	_, err := store.Dispatch(ctx, session.LoginSucceeded{})
	require.NoError(t, err)

	assert.True(t, g.Observe(ctx, http.StatusUnauthorized), "re-authentication re-arms the guard")
	assert.Equal(t, int32(2), logouts.Load())
}

func TestObserve_DispatchesWithCancelledContext(t *testing.T) {
	var errAtDispatch error
	dispatcher := &testutil.MockDispatcher{}
	dispatcher.On("Dispatch", mock.Anything, session.Logout{Reason: session.ReasonSessionExpired}).
		Run(func(args mock.Arguments) {
			errAtDispatch = args.Get(0).(context.Context).Err()
		}).
		Return(session.State{}, nil).Once()

	g := New(config.GuardConfig{}, &testutil.RecordingNotifier{}, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, g.Observe(ctx, http.StatusUnauthorized))

	dispatcher.AssertExpectations(t)
	assert.NoError(t, errAtDispatch)
}

func TestWrap(t *testing.T) {
	ctx := context.Background()

	t.Run("401 result", func(t *testing.T) {
		notifier := &testutil.RecordingNotifier{}
		store, logouts := loggedInStore(t)
		g := New(config.GuardConfig{}, notifier, store)

		call := Wrap(g, func(context.Context) (string, int, error) {
			return "denied", http.StatusUnauthorized, nil
		})

		result, status, err := call(ctx)
		require.NoError(t, err)
		assert.Equal(t, "denied", result)
		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Equal(t, int32(1), logouts.Load())
		assert.Len(t, notifier.Messages(), 1)
	})

	t.Run("error propagates untouched", func(t *testing.T) {
		notifier := &testutil.RecordingNotifier{}
		dispatcher := &testutil.MockDispatcher{}
		g := New(config.GuardConfig{}, notifier, dispatcher)

		boom := errors.New("timeout")
		call := Wrap(g, func(context.Context) ([]int, int, error) {
			return nil, 0, boom
		})

		result, _, err := call(ctx)
		assert.Nil(t, result)
		assert.Same(t, boom, err)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("success", func(t *testing.T) {
		dispatcher := &testutil.MockDispatcher{}
		g := New(config.GuardConfig{}, &testutil.RecordingNotifier{}, dispatcher)

		call := Wrap(g, func(context.Context) (int, int, error) { return 42, http.StatusOK, nil })
		result, status, err := call(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, result)
		assert.Equal(t, http.StatusOK, status)
		dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})
}
