// Package monitor is a client for a Zabbix-style JSON-RPC monitoring API.
// Every call goes through the session guard.
package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/guard"
	"github.com/dgellow/authbridge/internal/ioutil"
	"github.com/dgellow/authbridge/internal/jsonrpc"
	"github.com/dgellow/authbridge/internal/log"
	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the backend rejected the session,
// either with HTTP 401 or with a JSON-RPC error saying so
var ErrSessionExpired = errors.New("monitoring session expired")

const defaultTimeout = 30 * time.Second

// sessionExpiredHints are substrings of the error data the backend uses
// for expired or missing sessions
var sessionExpiredHints = []string{
	"session terminated",
	"not authorised",
	"not authorized",
}

// Client calls the monitoring API
type Client struct {
	url    string
	token  string
	http   *http.Client
	guard  *guard.Guard
	nextID atomic.Int64

	// reads coalesces identical concurrent list calls; dashboard widgets
	// polling the same list share one backend request
	reads singleflight.Group
}

// New creates a client whose HTTP transport is wrapped by g
func New(cfg config.MonitorConfig, g *guard.Guard) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:   cfg.URL,
		token: string(cfg.APIToken),
		http: &http.Client{
			Transport: g.Transport(nil),
			Timeout:   timeout,
		},
		guard: g,
	}
}

// Call invokes method and decodes the result into out
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	req := jsonrpc.NewRequest(c.nextID.Add(1), method, params)
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json-rpc")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("calling %s: %w", method, ErrSessionExpired)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("calling %s: status %d: %s", method, resp.StatusCode, ioutil.Snippet(resp.Body, ioutil.DefaultSnippetLimit))
	}

	var rpcResp jsonrpc.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}

	if rpcResp.Error != nil {
		if sessionExpired(rpcResp.Error) {
			// the backend reports expiry in the body, so feed the guard by hand
			c.guard.Observe(ctx, http.StatusUnauthorized)
			return fmt.Errorf("calling %s: %w: %v", method, ErrSessionExpired, rpcResp.Error)
		}
		return fmt.Errorf("calling %s: %w", method, rpcResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}

	log.LogTraceWithFields("monitor", "Call completed", map[string]any{
		"method": method,
		"id":     req.ID,
	})
	return nil
}

func sessionExpired(e *jsonrpc.Error) bool {
	text := strings.ToLower(fmt.Sprint(e.Data) + " " + e.Message)
	for _, hint := range sessionExpiredHints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}
