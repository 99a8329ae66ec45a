// Package connect is a client for the Kafka Connect REST management API.
// It enumerates registered connectors and resolves each one's run state
// and per-task states. A single connector's status fetch failing never
// aborts resolution of the rest; that connector is reported with state
// UNKNOWN and the fetch error attached.
package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RunState is the run state reported by Kafka Connect for a connector
// or one of its tasks.
type RunState string

const (
	StateRunning    RunState = "RUNNING"
	StatePaused     RunState = "PAUSED"
	StateFailed     RunState = "FAILED"
	StateUnassigned RunState = "UNASSIGNED"
	StateUnknown    RunState = "UNKNOWN"
)

// ParseRunState normalizes a state string from the API. Anything
// unrecognized maps to StateUnknown.
func ParseRunState(s string) RunState {
	switch RunState(s) {
	case StateRunning, StatePaused, StateFailed, StateUnassigned:
		return RunState(s)
	default:
		return StateUnknown
	}
}

// Task is the state of one task under a connector.
type Task struct {
	ID    int
	State RunState
}

// Connector is the resolved status of one registered connector.
type Connector struct {
	Name  string
	State RunState
	Tasks []Task
	// FetchErr records why the status fetch failed, if it did. The
	// connector's State is StateUnknown in that case.
	FetchErr error
}

// Client talks to a single Kafka Connect instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given Connect base URL with a
// bounded per-request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// connectorStatus mirrors the Connect API status document.
type connectorStatus struct {
	Name      string `json:"name"`
	Connector struct {
		State    string `json:"state"`
		WorkerID string `json:"worker_id"`
	} `json:"connector"`
	Tasks []struct {
		ID       int    `json:"id"`
		State    string `json:"state"`
		WorkerID string `json:"worker_id"`
	} `json:"tasks"`
}

// ListConnectors returns the names of all registered connectors in the
// order the API returned them.
func (c *Client) ListConnectors(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.getJSON(ctx, "/connectors", &names); err != nil {
		return nil, fmt.Errorf("list connectors: %w", err)
	}
	return names, nil
}

// ConnectorStatus fetches the status of one connector.
func (c *Client) ConnectorStatus(ctx context.Context, name string) (Connector, error) {
	var status connectorStatus
	path := "/connectors/" + url.PathEscape(name) + "/status"
	if err := c.getJSON(ctx, path, &status); err != nil {
		return Connector{}, fmt.Errorf("connector %s status: %w", name, err)
	}

	conn := Connector{
		Name:  name,
		State: ParseRunState(status.Connector.State),
	}
	for _, t := range status.Tasks {
		conn.Tasks = append(conn.Tasks, Task{
			ID:    t.ID,
			State: ParseRunState(t.State),
		})
	}
	return conn, nil
}

// ResolveConnectors lists all connectors and resolves each one's status.
// Per-connector fetch failures are isolated: the failing connector is
// returned with StateUnknown and FetchErr set, and resolution continues.
// Only the initial listing call can fail the whole resolution.
func (c *Client) ResolveConnectors(ctx context.Context) ([]Connector, error) {
	names, err := c.ListConnectors(ctx)
	if err != nil {
		return nil, err
	}

	connectors := make([]Connector, 0, len(names))
	for _, name := range names {
		conn, err := c.ConnectorStatus(ctx, name)
		if err != nil {
			conn = Connector{
				Name:     name,
				State:    StateUnknown,
				FetchErr: err,
			}
		}
		connectors = append(connectors, conn)
	}
	return connectors, nil
}

// getJSON issues a GET against the Connect API and decodes the JSON
// response body into target.
func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("connect API status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
