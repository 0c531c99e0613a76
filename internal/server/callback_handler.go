package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/authbridge/internal/idp"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/popup"
	"github.com/dgellow/authbridge/internal/protocol"
	"github.com/dgellow/authbridge/internal/window"
)

const (
	exchangeTimeout  = 30 * time.Second
	closePopupMillis = 1500
)

// CallbackHandler completes the provider redirect inside the popup. It
// turns the redirect into a cross-window message for the attempt named in
// the signed state, then renders a page that closes itself.
type CallbackHandler struct {
	orchestrator *popup.Orchestrator
	provider     idp.Provider
	channel      *window.Channel
	origin       string
}

// NewCallbackHandler creates the handler. Messages are posted with origin,
// the bridge's own origin.
func NewCallbackHandler(orchestrator *popup.Orchestrator, provider idp.Provider, channel *window.Channel, origin string) *CallbackHandler {
	return &CallbackHandler{
		orchestrator: orchestrator,
		provider:     provider,
		channel:      channel,
		origin:       origin,
	}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	claims, err := h.orchestrator.VerifyState(query.Get("state"))
	if err != nil {
		log.LogWarnWithFields("callback", "Rejected callback with invalid state", map[string]any{
			"error": err.Error(),
		})
		h.render(w, http.StatusBadRequest, CallbackPageData{
			Title:   "Login failed",
			Message: "This login link is invalid or has expired.",
		})
		return
	}

	correlation, ok := h.orchestrator.CorrelationID(claims.AttemptID)
	if !ok || subtle.ConstantTimeCompare([]byte(correlation), []byte(claims.CorrelationID)) != 1 {
		log.LogWarnWithFields("callback", "Callback for unknown attempt", map[string]any{
			"attempt": claims.AttemptID,
		})
		h.render(w, http.StatusGone, CallbackPageData{
			Title:   "Login expired",
			Message: "This login attempt is no longer active. Start again from the dashboard.",
		})
		return
	}

	if providerErr := query.Get("error"); providerErr != "" {
		message := query.Get("error_description")
		if message == "" {
			message = providerErr
		}
		log.LogWarnWithFields("callback", "Provider reported an error", map[string]any{
			"attempt": claims.AttemptID,
			"error":   providerErr,
		})
		h.channel.Post(protocol.ErrorMessage(h.origin, correlation, message))
		h.render(w, http.StatusOK, CallbackPageData{Title: "Login failed", Message: message})
		return
	}

	identity, err := h.complete(r.Context(), query.Get("code"))
	if errors.Is(err, idp.ErrAccessDenied) {
		log.LogWarnWithFields("callback", "User not on allow-list", map[string]any{
			"attempt": claims.AttemptID,
			"error":   err.Error(),
		})
		h.channel.Post(protocol.ErrorMessage(h.origin, correlation, "Access denied"))
		h.render(w, http.StatusForbidden, CallbackPageData{
			Title:   "Access denied",
			Message: "Your account is not allowed to use this dashboard.",
		})
		return
	}
	if err != nil {
		log.LogErrorWithFields("callback", "Failed to complete login", map[string]any{
			"attempt": claims.AttemptID,
			"error":   err.Error(),
		})
		h.channel.Post(protocol.ErrorMessage(h.origin, correlation, "Login could not be completed"))
		h.render(w, http.StatusOK, CallbackPageData{
			Title:   "Login failed",
			Message: "Login could not be completed.",
		})
		return
	}

	msg, err := protocol.SuccessMessage(h.origin, correlation, identity)
	if err != nil {
		h.channel.Post(protocol.ErrorMessage(h.origin, correlation, "Login could not be completed"))
		h.render(w, http.StatusInternalServerError, CallbackPageData{Title: "Login failed", Message: err.Error()})
		return
	}

	log.LogInfoWithFields("callback", "User authenticated", map[string]any{
		"attempt": claims.AttemptID,
		"login":   identity.Login,
	})
	h.channel.Post(msg)
	h.render(w, http.StatusOK, CallbackPageData{
		Title:   "Logged in",
		Message: fmt.Sprintf("Signed in as %s.", identity.Login),
		Success: true,
	})
}

func (h *CallbackHandler) complete(ctx context.Context, code string) (*idp.Identity, error) {
	if code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	token, err := h.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}
	identity, err := h.provider.UserInfo(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetching identity: %w", err)
	}
	return identity, nil
}

func (h *CallbackHandler) render(w http.ResponseWriter, status int, data CallbackPageData) {
	data.CloseAfterMillis = closePopupMillis
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := callbackPageTemplate.Execute(w, data); err != nil {
		log.LogErrorWithFields("callback", "Failed to render callback page", map[string]any{
			"error": err.Error(),
		})
	}
}
