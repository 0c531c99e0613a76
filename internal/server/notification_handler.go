package server

import (
	"net/http"
	"time"

	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/notify"
	"github.com/dgellow/authbridge/internal/sse"
	"github.com/dgellow/authbridge/internal/window"
)

const (
	subscriberBuffer  = 16
	keepaliveInterval = 30 * time.Second

	eventNotification = "notification"
	eventWindow       = "window"
)

// NotificationHandler streams user notifications and, when popups are
// opened remotely, window commands to the dashboard
type NotificationHandler struct {
	hub    *notify.Hub
	remote *window.RemoteOpener
}

// NewNotificationHandler creates the handler. remote may be nil.
func NewNotificationHandler(hub *notify.Hub, remote *window.RemoteOpener) *NotificationHandler {
	return &NotificationHandler{hub: hub, remote: remote}
}

func (h *NotificationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonwriter.WriteInternalServerError(w, "Streaming unsupported")
		return
	}

	notifications, cancelNotifications := h.hub.Subscribe(subscriberBuffer)
	defer cancelNotifications()

	// a nil channel blocks forever, which disables the case below
	var commands <-chan window.Command
	if h.remote != nil {
		var cancelCommands func()
		commands, cancelCommands = h.remote.Subscribe(subscriberBuffer)
		defer cancelCommands()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := sse.WriteComment(w, flusher, "connected"); err != nil {
		return
	}

	log.LogDebugWithFields("server", "Notification stream opened", map[string]any{
		"remote_addr": r.RemoteAddr,
	})

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			log.LogDebugWithFields("server", "Notification stream closed", map[string]any{
				"remote_addr": r.RemoteAddr,
			})
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			err = sse.WriteEvent(w, flusher, eventNotification, n)
		case cmd, ok := <-commands:
			if !ok {
				return
			}
			err = sse.WriteEvent(w, flusher, eventWindow, cmd)
		case <-keepalive.C:
			err = sse.WriteComment(w, flusher, "ping")
		}
		if err != nil {
			log.LogDebugWithFields("server", "Notification stream write failed", map[string]any{
				"error": err.Error(),
			})
			return
		}
	}
}

// RecentHandler returns the notifications raised before the caller
// connected, oldest first, so a reloaded dashboard can show them
func (h *NotificationHandler) RecentHandler(w http.ResponseWriter, r *http.Request) {
	_ = jsonwriter.Write(w, h.hub.Recent())
}
