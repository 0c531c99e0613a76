package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// Host is a monitored host. The API encodes numbers as strings.
type Host struct {
	HostID string `json:"hostid"`
	Host   string `json:"host"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Item is a metric collected on a host
type Item struct {
	ItemID    string `json:"itemid"`
	HostID    string `json:"hostid"`
	Name      string `json:"name"`
	Key       string `json:"key_"`
	LastValue string `json:"lastvalue"`
	Units     string `json:"units"`
}

// Problem is an open alert
type Problem struct {
	EventID  string `json:"eventid"`
	ObjectID string `json:"objectid"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Clock    string `json:"clock"`
}

// Severity levels, lowest to highest
const (
	SeverityNotClassified = 0
	SeverityInformation   = 1
	SeverityWarning       = 2
	SeverityAverage       = 3
	SeverityHigh          = 4
	SeverityDisaster      = 5
)

// Hosts lists monitored hosts
func (c *Client) Hosts(ctx context.Context) ([]Host, error) {
	return list[Host](ctx, c, "host.get", map[string]any{
		"output": []string{"hostid", "host", "name", "status"},
	})
}

// Items lists the items collected on hostIDs
func (c *Client) Items(ctx context.Context, hostIDs []string) ([]Item, error) {
	if len(hostIDs) == 0 {
		return nil, fmt.Errorf("at least one host id is required")
	}
	return list[Item](ctx, c, "item.get", map[string]any{
		"output":  []string{"itemid", "hostid", "name", "key_", "lastvalue", "units"},
		"hostids": hostIDs,
	})
}

// Problems lists open problems at or above minSeverity
func (c *Client) Problems(ctx context.Context, minSeverity int) ([]Problem, error) {
	if minSeverity < SeverityNotClassified || minSeverity > SeverityDisaster {
		return nil, fmt.Errorf("severity must be between %d and %d", SeverityNotClassified, SeverityDisaster)
	}
	severities := make([]int, 0, SeverityDisaster-minSeverity+1)
	for s := minSeverity; s <= SeverityDisaster; s++ {
		severities = append(severities, s)
	}

	return list[Problem](ctx, c, "problem.get", map[string]any{
		"output":     "extend",
		"severities": severities,
		"recent":     true,
	})
}

// list runs a read through the client's singleflight group. The shared
// call is detached from any one caller's cancellation and bounded by the
// HTTP client timeout instead; each caller still stops waiting when its
// own ctx is done.
func list[T any](ctx context.Context, c *Client, method string, params map[string]any) ([]T, error) {
	key, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encoding %s params: %w", method, err)
	}

	ch := c.reads.DoChan(method+":"+string(key), func() (any, error) {
		var out []T
		err := c.Call(context.WithoutCancel(ctx), method, params, &out)
		return out, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// shared results must not alias between callers
		return slices.Clone(res.Val.([]T)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
