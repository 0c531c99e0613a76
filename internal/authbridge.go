package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/guard"
	"github.com/dgellow/authbridge/internal/idp"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/monitor"
	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/popup"
	"github.com/dgellow/authbridge/internal/server"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/dgellow/authbridge/internal/storage"
	"github.com/dgellow/authbridge/internal/window"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout    = 30 * time.Second
	restoreTimeout     = 10 * time.Second
	recentNotification = 20
	csrfTTL            = time.Hour
	// stateGrace lets a provider redirect that arrives just after the
	// attempt timed out still verify, so the user sees "expired" rather
	// than "invalid"
	stateGrace = time.Minute
)

// AuthBridge is the complete application: the login popup orchestrator,
// the session store and guard, and the HTTP surface the dashboard uses
type AuthBridge struct {
	config       config.Config
	httpServer   *server.HTTPServer
	handler      http.Handler
	store        storage.Store
	orchestrator *popup.Orchestrator
	sweeper      storage.Sweeper
	unsubscribe  func()
}

// NewAuthBridge builds the application from cfg
func NewAuthBridge(ctx context.Context, cfg config.Config) (*AuthBridge, error) {
	log.LogInfoWithFields("authbridge", "Building auth bridge", map[string]any{
		"origin":   cfg.Bridge.Origin,
		"provider": string(cfg.Provider.Kind),
		"storage":  string(cfg.Storage.Kind),
		"opener":   string(cfg.Popup.Opener),
	})

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	b, err := build(ctx, cfg, store)
	if err != nil {
		if closeErr := store.Close(); closeErr != nil {
			log.LogErrorWithFields("authbridge", "Failed to close storage", map[string]any{
				"error": closeErr.Error(),
			})
		}
		return nil, err
	}
	return b, nil
}

func build(ctx context.Context, cfg config.Config, store storage.Store) (*AuthBridge, error) {
	sessions := session.NewStore(store, cfg.Storage.Namespace)
	restoreCtx, cancel := context.WithTimeout(ctx, restoreTimeout)
	defer cancel()
	if err := sessions.Restore(restoreCtx); err != nil {
		// a corrupt or unreachable state means logged out, not a dead bridge
		log.LogWarnWithFields("authbridge", "Failed to restore session state", map[string]any{
			"error": err.Error(),
		})
	}

	hub := notify.NewHub(recentNotification)
	channel := window.NewChannel()

	sessionGuard := guard.New(cfg.Guard, hub, sessions)
	unsubscribe := sessionGuard.ResetOnLogin(sessions)

	provider, err := idp.NewProvider(ctx, cfg.Provider)
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	signingKey, err := crypto.DeriveKey([]byte(cfg.Bridge.SigningSecret), "popup-state")
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to derive state signing key: %w", err)
	}

	csrfKey, err := crypto.DeriveKey([]byte(cfg.Bridge.SigningSecret), "csrf")
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to derive CSRF key: %w", err)
	}
	csrf := crypto.NewCSRFProtection(csrfKey, csrfTTL)

	opener, remote := setupOpener(cfg.Popup)

	orchestrator, err := popup.New(popup.ConfigFrom(cfg), popup.Deps{
		Opener:   opener,
		Channel:  channel,
		Store:    store,
		Signer:   crypto.NewTokenSigner(signingKey, cfg.Popup.Timeout+stateGrace),
		Provider: provider,
		Notifier: hub,
		Sessions: sessions,
	})
	if err != nil {
		unsubscribe()
		return nil, fmt.Errorf("failed to setup popup orchestrator: %w", err)
	}

	routes := server.Routes{
		Service:       cfg.Bridge.Name,
		AllowedOrigin: allowedOrigins(cfg.Bridge),
		Sessions:      sessions,
		CSRF:          csrf,
		Bridge:        server.NewBridgeHandlers(orchestrator, channel, sessions, remote, csrf),
		Callback:      server.NewCallbackHandler(orchestrator, provider, channel, cfg.Bridge.Origin),
		Notifications: server.NewNotificationHandler(hub, remote),
	}
	if cfg.Monitor != nil {
		log.LogInfoWithFields("authbridge", "Monitoring backend enabled", map[string]any{
			"url": cfg.Monitor.URL,
		})
		routes.Monitor = server.NewMonitorHandlers(monitor.New(*cfg.Monitor, sessionGuard))
	}
	handler := server.NewMux(routes)

	// Redis expires keys itself; the other backends are swept
	sweeper, _ := store.(storage.Sweeper)

	return &AuthBridge{
		config:       cfg,
		httpServer:   server.NewHTTPServer(handler, cfg.Bridge.Addr),
		handler:      handler,
		store:        store,
		orchestrator: orchestrator,
		sweeper:      sweeper,
		unsubscribe:  unsubscribe,
	}, nil
}

func setupOpener(cfg config.PopupConfig) (window.Opener, *window.RemoteOpener) {
	if cfg.Opener == config.OpenerBrowser {
		return window.NewBrowserOpener(), nil
	}
	remote := window.NewRemoteOpener(cfg.AckTimeout)
	return remote, remote
}

// allowedOrigins always includes the bridge's own origin
func allowedOrigins(cfg config.BridgeConfig) []string {
	origins := []string{cfg.Origin}
	for _, o := range cfg.AllowedOrigins {
		if o != cfg.Origin {
			origins = append(origins, o)
		}
	}
	return origins
}

// Handler returns the bridge's HTTP handler
func (b *AuthBridge) Handler() http.Handler {
	return b.handler
}

// Run serves until ctx is done, SIGINT or SIGTERM arrives, or the server
// fails, then shuts everything down
func (b *AuthBridge) Run(ctx context.Context) error {
	log.LogInfoWithFields("authbridge", "Starting auth bridge", map[string]any{
		"addr": b.config.Bridge.Addr,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup *storage.CleanupManager
	if b.sweeper != nil {
		cleanup = storage.NewCleanupManager(b.sweeper, b.config.Storage.CleanupInterval)
		cleanup.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("authbridge", "Starting graceful shutdown", map[string]any{
			"timeout": shutdownTimeout.String(),
		})

		b.orchestrator.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return b.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if cleanup != nil {
		cleanup.Stop()
	}
	if closeErr := b.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	if err != nil {
		log.LogErrorWithFields("authbridge", "Auth bridge stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("authbridge", "Application shutdown complete", nil)
	return nil
}

// Close releases the storage backend. Run calls it on the way out.
func (b *AuthBridge) Close() error {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
	if b.store == nil {
		return nil
	}
	err := b.store.Close()
	b.store = nil
	return err
}
