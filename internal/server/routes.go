package server

import (
	"net/http"

	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/session"
)

// Routes collects the handlers mounted by NewMux. Monitor is optional.
type Routes struct {
	Service       string
	AllowedOrigin []string
	Sessions      *session.Store
	CSRF          *crypto.CSRFProtection
	Bridge        *BridgeHandlers
	Callback      http.Handler
	Notifications *NotificationHandler
	Monitor       *MonitorHandlers
}

// NewMux builds the bridge's HTTP surface
func NewMux(routes Routes) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /health", NewHealthHandler(routes.Service))

	// state-changing dashboard calls need a token from GET /bridge/session
	requireCSRF := NewCSRFMiddleware(routes.CSRF)

	mux.Handle("POST /bridge/login", requireCSRF(http.HandlerFunc(routes.Bridge.LoginHandler)))
	mux.HandleFunc("GET /bridge/login/{id}", routes.Bridge.LoginStatusHandler)
	mux.Handle("DELETE /bridge/login/{id}", requireCSRF(http.HandlerFunc(routes.Bridge.CancelLoginHandler)))
	mux.HandleFunc("POST /bridge/messages", routes.Bridge.MessageHandler)
	mux.HandleFunc("POST /bridge/windows/{id}", routes.Bridge.WindowReportHandler)
	mux.HandleFunc("GET /bridge/session", routes.Bridge.SessionHandler)
	mux.Handle("POST /bridge/logout", requireCSRF(http.HandlerFunc(routes.Bridge.LogoutHandler)))
	mux.Handle("GET /bridge/notifications", routes.Notifications)
	mux.HandleFunc("GET /bridge/notifications/recent", routes.Notifications.RecentHandler)

	mux.Handle("GET /oauth/callback", routes.Callback)

	if routes.Monitor != nil {
		requireSession := NewSessionRequiredMiddleware(routes.Sessions)
		mux.Handle("GET /api/hosts", requireSession(http.HandlerFunc(routes.Monitor.HostsHandler)))
		mux.Handle("GET /api/hosts/{id}/items", requireSession(http.HandlerFunc(routes.Monitor.ItemsHandler)))
		mux.Handle("GET /api/problems", requireSession(http.HandlerFunc(routes.Monitor.ProblemsHandler)))
	}

	return ChainMiddleware(mux,
		NewCORSMiddleware(routes.AllowedOrigin),
		NewLoggerMiddleware("http"),
		NewRecoverMiddleware("http"),
	)
}
