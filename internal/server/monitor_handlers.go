package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/monitor"
)

// MonitorBackend is the monitoring API as the dashboard sees it
type MonitorBackend interface {
	Hosts(ctx context.Context) ([]monitor.Host, error)
	Items(ctx context.Context, hostIDs []string) ([]monitor.Item, error)
	Problems(ctx context.Context, minSeverity int) ([]monitor.Problem, error)
}

// MonitorHandlers expose the monitoring backend to a logged-in dashboard
type MonitorHandlers struct {
	backend MonitorBackend
}

// NewMonitorHandlers creates the handlers
func NewMonitorHandlers(backend MonitorBackend) *MonitorHandlers {
	return &MonitorHandlers{backend: backend}
}

// HostsHandler lists hosts
func (h *MonitorHandlers) HostsHandler(w http.ResponseWriter, r *http.Request) {
	hosts, err := h.backend.Hosts(r.Context())
	if err != nil {
		writeBackendError(w, "hosts", err)
		return
	}
	_ = jsonwriter.Write(w, hosts)
}

// ItemsHandler lists the items of one host, or of several given as
// ?hostids=1,2
func (h *MonitorHandlers) ItemsHandler(w http.ResponseWriter, r *http.Request) {
	hostIDs := []string{r.PathValue("id")}
	if extra := r.URL.Query().Get("hostids"); extra != "" {
		hostIDs = append(hostIDs, strings.Split(extra, ",")...)
	}

	items, err := h.backend.Items(r.Context(), hostIDs)
	if err != nil {
		writeBackendError(w, "items", err)
		return
	}
	_ = jsonwriter.Write(w, items)
}

// ProblemsHandler lists problems at or above ?severity (default 0)
func (h *MonitorHandlers) ProblemsHandler(w http.ResponseWriter, r *http.Request) {
	severity := monitor.SeverityNotClassified
	if v := r.URL.Query().Get("severity"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < monitor.SeverityNotClassified || parsed > monitor.SeverityDisaster {
			jsonwriter.WriteBadRequest(w, "severity must be an integer between 0 and 5")
			return
		}
		severity = parsed
	}

	problems, err := h.backend.Problems(r.Context(), severity)
	if err != nil {
		writeBackendError(w, "problems", err)
		return
	}
	_ = jsonwriter.Write(w, problems)
}

// writeBackendError maps a backend failure to a response. An expired
// session has already been handled by the guard, so it only needs a 401.
func writeBackendError(w http.ResponseWriter, resource string, err error) {
	if errors.Is(err, monitor.ErrSessionExpired) {
		jsonwriter.WriteUnauthorized(w, "Session expired")
		return
	}
	log.LogErrorWithFields("server", "Monitoring backend call failed", map[string]any{
		"resource": resource,
		"error":    err.Error(),
	})
	jsonwriter.WriteBadGateway(w, "Monitoring backend unavailable")
}
