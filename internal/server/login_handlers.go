package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dgellow/authbridge/internal/crypto"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/popup"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/session"
	"github.com/dgellow/authbridge/internal/window"
)

// maxMessageBytes caps a posted cross-window message
const maxMessageBytes = 64 << 10

const (
	statusPending   = "pending"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

// LoginResponse describes an attempt to the dashboard
type LoginResponse struct {
	ID      string          `json:"id"`
	AuthURL string          `json:"authUrl,omitempty"`
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *LoginError     `json:"error,omitempty"`
}

// LoginError is the typed failure of an attempt
type LoginError struct {
	Kind    popup.Kind `json:"kind"`
	Message string     `json:"message"`
}

// BridgeHandlers serve the dashboard-facing login and session endpoints
type BridgeHandlers struct {
	orchestrator *popup.Orchestrator
	channel      *window.Channel
	sessions     *session.Store
	remote       *window.RemoteOpener
	csrf         *crypto.CSRFProtection
}

// SessionResponse is the session state plus a fresh anti-forgery token
// for the state-changing endpoints
type SessionResponse struct {
	session.State
	CSRFToken string `json:"csrfToken"`
}

// NewBridgeHandlers creates the handlers. remote is nil unless popups are
// opened through the dashboard.
func NewBridgeHandlers(orchestrator *popup.Orchestrator, channel *window.Channel, sessions *session.Store, remote *window.RemoteOpener, csrf *crypto.CSRFProtection) *BridgeHandlers {
	return &BridgeHandlers{
		orchestrator: orchestrator,
		channel:      channel,
		sessions:     sessions,
		remote:       remote,
		csrf:         csrf,
	}
}

// LoginHandler starts an attempt. Unless wait=false is given, it waits for
// the outcome until the request is done and then reports it as pending.
func (h *BridgeHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	attempt, err := h.orchestrator.Start(ctx)
	if err != nil {
		if errors.Is(err, popup.ErrAlreadyInProgress) {
			jsonwriter.WriteConflict(w, popup.MessageAlreadyInProgress)
			return
		}
		log.LogErrorWithFields("server", "Failed to start login", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to start login")
		return
	}

	wait := true
	if v := r.URL.Query().Get("wait"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			wait = parsed
		}
	}

	if wait {
		// a done request leaves the attempt running
		_, _ = attempt.Wait(ctx)
	}

	resp := describeAttempt(attempt)
	status := http.StatusOK
	if resp.Status == statusPending {
		status = http.StatusAccepted
	}
	_ = jsonwriter.WriteResponse(w, status, resp)
}

// LoginStatusHandler reports an attempt by id
func (h *BridgeHandlers) LoginStatusHandler(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.orchestrator.Get(r.PathValue("id"))
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown login attempt")
		return
	}
	_ = jsonwriter.Write(w, describeAttempt(attempt))
}

// CancelLoginHandler cancels an attempt. Cancelling a settled attempt is a
// no-op that still reports its outcome.
func (h *BridgeHandlers) CancelLoginHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	attempt, ok := h.orchestrator.Get(id)
	if !ok {
		jsonwriter.WriteNotFound(w, "Unknown login attempt")
		return
	}
	if attempt.Cancel() {
		log.LogInfoWithFields("server", "Login cancelled by user", map[string]any{
			"attempt": id,
		})
	}
	_ = jsonwriter.Write(w, describeAttempt(attempt))
}

func describeAttempt(a *popup.Attempt) LoginResponse {
	resp := LoginResponse{ID: a.ID(), Status: statusPending}

	result, settled := a.Result()
	if !settled {
		resp.AuthURL = a.AuthURL()
		return resp
	}
	if result.Err == nil {
		resp.Status = statusSucceeded
		resp.Payload = result.Payload
		return resp
	}

	resp.Status = statusFailed
	var authErr *popup.AuthError
	if errors.As(result.Err, &authErr) {
		resp.Error = &LoginError{Kind: authErr.Kind, Message: authErr.Error()}
	} else {
		resp.Error = &LoginError{Kind: popup.KindProviderError, Message: result.Err.Error()}
	}
	return resp
}

// MessageHandler is the cross-window message ingress. The origin comes from
// the Origin header, never the body. It always answers 204 so a sender
// learns nothing about which messages were accepted.
func (h *BridgeHandlers) MessageHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
	if err == nil {
		if msg, ok := protocol.Decode(r.Header.Get("Origin"), body); ok {
			h.channel.Post(msg)
		} else {
			log.LogTraceWithFields("server", "Dropped malformed message", nil)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

type windowReport struct {
	Status window.Status `json:"status"`
}

// WindowReportHandler receives popup liveness reports from the dashboard
func (h *BridgeHandlers) WindowReportHandler(w http.ResponseWriter, r *http.Request) {
	if h.remote == nil {
		jsonwriter.WriteNotFound(w, "Popups are not opened remotely")
		return
	}

	var report windowReport
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&report); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid report")
		return
	}
	if err := h.remote.Report(r.PathValue("id"), report.Status); err != nil {
		if errors.Is(err, window.ErrUnknownWindow) {
			jsonwriter.WriteNotFound(w, "Unknown window")
			return
		}
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SessionHandler returns the current session state and a CSRF token.
// Only the dashboard origin can read the response, so only it learns the
// token.
func (h *BridgeHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Generate()
	if err != nil {
		log.LogErrorWithFields("server", "Failed to generate CSRF token", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to generate CSRF token")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	_ = jsonwriter.Write(w, SessionResponse{State: h.sessions.State(), CSRFToken: token})
}

// LogoutHandler logs the user out
func (h *BridgeHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessions.Dispatch(r.Context(), session.Logout{Reason: session.ReasonUserLogout})
	if err != nil {
		// the in-memory state is already logged out; only persisting failed
		log.LogErrorWithFields("server", "Failed to persist logout", map[string]any{
			"error": err.Error(),
		})
	}
	_ = jsonwriter.Write(w, state)
}
