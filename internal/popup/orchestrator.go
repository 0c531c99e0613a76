// Package popup drives a third-party login popup to exactly one outcome.
package popup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/dgellow/authbridge/internal/storage"
	"github.com/dgellow/authbridge/internal/window"
	"github.com/google/uuid"
)

const (
	// markerGrace keeps a marker alive slightly past the attempt timeout so
	// the timeout path, not expiry, is what removes it
	markerGrace     = time.Minute
	markerValue     = "1"
	storageTimeout  = 5 * time.Second
	defaultRetained = time.Minute
)

// Provider builds the authorization URL for a signed state value
type Provider interface {
	AuthURL(state string) string
}

// Config is the orchestrator's static configuration
type Config struct {
	// Provider names the login provider; it namespaces attempt markers
	Provider  string
	Origin    string
	Namespace string
	Features  window.Features

	PollInterval time.Duration
	Timeout      time.Duration
	Concurrency  config.ConcurrencyPolicy
	// Retain is how long a settled attempt stays retrievable by id
	Retain time.Duration
}

// ConfigFrom derives the orchestrator configuration from the loaded config
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Provider:  string(cfg.Provider.Kind),
		Origin:    cfg.Bridge.Origin,
		Namespace: cfg.Storage.Namespace,
		Features: window.Features{
			Name:   string(cfg.Provider.Kind) + "-login",
			Width:  cfg.Popup.Width,
			Height: cfg.Popup.Height,
		},
		PollInterval: cfg.Popup.PollInterval,
		Timeout:      cfg.Popup.Timeout,
		Concurrency:  cfg.Popup.Concurrency,
	}
}

// StateClaims travel inside the signed OAuth state parameter
type StateClaims struct {
	AttemptID     string `json:"aid"`
	CorrelationID string `json:"cid"`
	Provider      string `json:"p"`
}

// Deps are the orchestrator's collaborators. Sessions is optional.
type Deps struct {
	Opener   window.Opener
	Channel  *window.Channel
	Store    storage.Store
	Signer   crypto.TokenSigner
	Provider Provider
	Notifier notify.Notifier
	Sessions session.Dispatcher
}

// Orchestrator starts and tracks popup login attempts for one provider.
// At most one attempt is Opening or AwaitingResult at a time.
type Orchestrator struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	inFlight *Attempt
	attempts map[string]*Attempt

	now func() time.Time
}

// New creates an orchestrator
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Opener == nil || deps.Channel == nil || deps.Store == nil || deps.Provider == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("opener, channel, store, provider and notifier are required")
	}
	if cfg.Origin == "" {
		return nil, fmt.Errorf("origin is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultAttemptTimeout
	}
	if cfg.Features.Width == 0 {
		cfg.Features.Width = config.DefaultPopupWidth
	}
	if cfg.Features.Height == 0 {
		cfg.Features.Height = config.DefaultPopupHeight
	}
	if cfg.Concurrency == "" {
		cfg.Concurrency = config.ConcurrencyReject
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultNamespace
	}
	if cfg.Retain <= 0 {
		cfg.Retain = defaultRetained
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		attempts: make(map[string]*Attempt),
		now:      time.Now,
	}, nil
}

// Start begins a login attempt. With the reject policy a second call while
// an attempt is in flight fails with ErrAlreadyInProgress; with reuse it
// returns the in-flight attempt. A blocked popup is not an error: the
// returned attempt is already settled with ErrPopupBlocked.
func (o *Orchestrator) Start(ctx context.Context) (*Attempt, error) {
	o.mu.Lock()
	if cur := o.inFlight; cur != nil {
		o.mu.Unlock()
		if o.cfg.Concurrency == config.ConcurrencyReuse {
			log.LogDebugWithFields("popup", "Reusing in-flight attempt", map[string]any{
				"attempt": cur.id,
			})
			return cur, nil
		}
		return nil, newError(KindAlreadyInProgress, MessageAlreadyInProgress)
	}

	a, err := o.newAttempt()
	if err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.inFlight = a
	o.attempts[a.id] = a
	o.mu.Unlock()

	log.LogInfoWithFields("popup", "Starting login attempt", map[string]any{
		"attempt":  a.id,
		"provider": a.provider,
	})

	if err := o.open(ctx, a); err != nil {
		o.abort(a, err)
		return nil, err
	}
	return a, nil
}

func (o *Orchestrator) newAttempt() (*Attempt, error) {
	id := uuid.NewString()

	correlation, err := crypto.GenerateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("generating correlation token: %w", err)
	}

	state, err := o.deps.Signer.Sign(StateClaims{
		AttemptID:     id,
		CorrelationID: correlation,
		Provider:      o.cfg.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("signing state: %w", err)
	}

	return &Attempt{
		id:          id,
		provider:    o.cfg.Provider,
		correlation: correlation,
		authURL:     o.deps.Provider.AuthURL(state),
		markerKey:   storage.Key(o.cfg.Namespace, "attempt", o.cfg.Provider, id),
		createdAt:   o.now(),
		orch:        o,
		state:       StateIdle,
		done:        make(chan struct{}),
	}, nil
}

func (o *Orchestrator) open(ctx context.Context, a *Attempt) error {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return nil
	}
	a.state = StateOpening
	err := o.deps.Store.Set(ctx, a.markerKey, []byte(markerValue), o.cfg.Timeout+markerGrace)
	a.mu.Unlock()
	if err != nil {
		return fmt.Errorf("setting attempt marker: %w", err)
	}

	win, err := o.deps.Opener.Open(ctx, a.authURL, o.cfg.Features)
	if err != nil {
		return fmt.Errorf("opening popup: %w", err)
	}
	if win == nil {
		log.LogWarnWithFields("popup", "Popup blocked", map[string]any{
			"attempt": a.id,
		})
		a.settle(Result{Err: newError(KindPopupBlocked, MessagePopupBlocked)}, causeBlocked)
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.settled {
		// cancelled while the popup was opening
		if err := win.Close(); err != nil {
			log.LogWarnWithFields("popup", "Failed to close popup", map[string]any{
				"attempt": a.id,
				"error":   err.Error(),
			})
		}
		return nil
	}

	a.win = win
	a.state = StateAwaitingResult
	a.removeListener = o.deps.Channel.Listen(func(msg protocol.InboundMessage) {
		o.handleMessage(a, msg)
	})
	a.stopPoll = make(chan struct{})
	go o.poll(a, win, a.stopPoll)
	a.timer = time.AfterFunc(o.cfg.Timeout, func() {
		if a.settle(Result{Err: newError(KindTimedOut, MessageTimedOut)}, causeTimeout) {
			log.LogWarnWithFields("popup", "Login attempt timed out", map[string]any{
				"attempt": a.id,
				"timeout": o.cfg.Timeout.String(),
			})
		}
	})
	return nil
}

// abort settles an attempt that failed before it could be observed. The
// error goes back to the caller of Start, so no notification is sent.
func (o *Orchestrator) abort(a *Attempt, err error) {
	a.mu.Lock()
	if a.settled {
		a.mu.Unlock()
		return
	}
	a.settled = true
	a.state = StateFailed
	a.result = Result{Err: err}
	a.teardownLocked(causeError)
	a.mu.Unlock()

	o.release(a)
	close(a.done)

	log.LogErrorWithFields("popup", "Login attempt failed to start", map[string]any{
		"attempt": a.id,
		"error":   err.Error(),
	})
}

func (o *Orchestrator) handleMessage(a *Attempt, msg protocol.InboundMessage) {
	verdict := protocol.Classify(msg, o.cfg.Origin, a.correlation)
	switch verdict.Kind {
	case protocol.Success:
		a.settle(Result{Payload: verdict.Payload}, causeMessage)
	case protocol.Failure:
		a.settle(Result{Err: newError(KindProviderError, verdict.Message)}, causeMessage)
	default:
		log.LogTraceWithFields("popup", "Ignoring message", map[string]any{
			"attempt": a.id,
			"origin":  msg.Origin,
			"action":  string(msg.Action),
			"reason":  verdict.Reason,
		})
	}
}

// poll watches the popup. Once it reports closed, polling stops and the
// attempt settles as Cancelled unless something else settled it first.
func (o *Orchestrator) poll(a *Attempt, win window.Window, stop <-chan struct{}) {
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !win.Closed() {
			continue
		}

		a.mu.Lock()
		if a.settled {
			a.mu.Unlock()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
		taken, err := o.deps.Store.Take(ctx, a.markerKey)
		cancel()
		cause := causeClosed
		if err != nil || !taken {
			// the attempt state is authoritative; make sure the marker goes
			cause = causeClosedUnmarked
			if err != nil {
				log.LogErrorWithFields("popup", "Failed to take attempt marker", map[string]any{
					"attempt": a.id,
					"error":   err.Error(),
				})
			}
		}
		settled := a.settleLocked(Result{Err: newError(KindCancelled, MessageCancelled)}, cause)
		a.mu.Unlock()

		if settled {
			a.finish(cause)
		}
		return
	}
}

// finish runs the post-settlement side effects. The session store sees a
// successful login before the caller does.
func (o *Orchestrator) finish(a *Attempt, cause string) {
	o.release(a)

	r := a.result
	fields := map[string]any{
		"attempt":  a.id,
		"provider": a.provider,
		"cause":    cause,
		"duration": o.now().Sub(a.createdAt).String(),
	}

	if r.Err == nil {
		if o.deps.Sessions != nil {
			ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
			if _, err := o.deps.Sessions.Dispatch(ctx, session.LoginSucceeded{User: r.Payload}); err != nil {
				log.LogErrorWithFields("popup", "Failed to record login", map[string]any{
					"attempt": a.id,
					"error":   err.Error(),
				})
			}
			cancel()
		}
		o.deps.Notifier.Notify(notify.LevelSuccess, MessageSucceeded)
		log.LogInfoWithFields("popup", "Login attempt succeeded", fields)
		return
	}

	var authErr *AuthError
	if errors.As(r.Err, &authErr) {
		fields["kind"] = string(authErr.Kind)
	}
	o.deps.Notifier.Notify(notify.LevelError, r.Err.Error())
	log.LogInfoWithFields("popup", "Login attempt failed", fields)
}

func (o *Orchestrator) release(a *Attempt) {
	o.mu.Lock()
	if o.inFlight == a {
		o.inFlight = nil
	}
	o.mu.Unlock()

	time.AfterFunc(o.cfg.Retain, func() {
		o.mu.Lock()
		if o.attempts[a.id] == a {
			delete(o.attempts, a.id)
		}
		o.mu.Unlock()
	})
}

func (o *Orchestrator) clearMarker(a *Attempt) {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := o.deps.Store.Delete(ctx, a.markerKey); err != nil {
		log.LogErrorWithFields("popup", "Failed to clear attempt marker", map[string]any{
			"attempt": a.id,
			"error":   err.Error(),
		})
	}
}

func (o *Orchestrator) closeWindow(a *Attempt) {
	if err := a.win.Close(); err != nil {
		log.LogWarnWithFields("popup", "Failed to close popup", map[string]any{
			"attempt": a.id,
			"error":   err.Error(),
		})
	}
}

// Get returns an in-flight or recently settled attempt
func (o *Orchestrator) Get(id string) (*Attempt, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.attempts[id]
	return a, ok
}

// Active returns the in-flight attempt, if any
func (o *Orchestrator) Active() *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Cancel cancels attempt id. It reports false for unknown or settled attempts.
func (o *Orchestrator) Cancel(id string) bool {
	a, ok := o.Get(id)
	if !ok {
		return false
	}
	return a.Cancel()
}

// VerifyState checks a state parameter returned by the provider and
// returns the attempt it belongs to
func (o *Orchestrator) VerifyState(state string) (StateClaims, error) {
	var claims StateClaims
	if err := o.deps.Signer.Verify(state, &claims); err != nil {
		return StateClaims{}, err
	}
	if claims.Provider != o.cfg.Provider {
		return StateClaims{}, fmt.Errorf("%w: provider mismatch", crypto.ErrInvalidToken)
	}
	return claims, nil
}

// CorrelationID returns the correlation token of attempt id. The callback
// handler echoes it in the message it posts.
func (o *Orchestrator) CorrelationID(id string) (string, bool) {
	a, ok := o.Get(id)
	if !ok {
		return "", false
	}
	return a.correlation, true
}

// Shutdown cancels the in-flight attempt
func (o *Orchestrator) Shutdown() {
	if a := o.Active(); a != nil {
		a.Cancel()
	}
}
