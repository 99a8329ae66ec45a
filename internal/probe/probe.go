// Package probe performs reachability checks against monitored targets.
// A probe never fails with an error for routine unreachability; timeouts,
// refused connections, and DNS failures all become data on the returned
// Observation.
package probe

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Target is one monitored service endpoint.
type Target struct {
	// Name identifies the target; it is the subject id for its verdicts.
	Name string
	// Host and Port locate the TCP endpoint.
	Host string
	Port int
	// HTTPPath, when non-empty, declares an HTTP surface probed after a
	// successful TCP dial. "/" probes the server root.
	HTTPPath string
}

// Addr returns the host:port dial address.
func (t Target) Addr() string {
	return net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
}

// HasHTTP reports whether the target declares an HTTP surface.
func (t Target) HasHTTP() bool {
	return t.HTTPPath != ""
}

// BaseURL returns the http base URL for the target.
func (t Target) BaseURL() string {
	return "http://" + t.Addr()
}

// Observation is the raw result of probing one target. It is produced
// fresh each cycle and never persisted.
type Observation struct {
	Target       string
	Timestamp    time.Time
	TCPReachable bool
	// HTTPChecked is true when an HTTP probe was attempted; HTTPReachable
	// and HTTPStatus are meaningless otherwise.
	HTTPChecked   bool
	HTTPReachable bool
	HTTPStatus    int
}

// Prober probes targets with a bounded per-attempt timeout.
type Prober struct {
	timeout    time.Duration
	dialer     *net.Dialer
	httpClient *http.Client
}

// DefaultTimeout bounds each TCP and HTTP attempt.
const DefaultTimeout = 5 * time.Second

// NewProber creates a prober. A non-positive timeout falls back to
// DefaultTimeout.
func NewProber(timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		timeout: timeout,
		dialer:  &net.Dialer{Timeout: timeout},
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Probe performs one observation of one target. TCP first; HTTP only
// when TCP succeeded and the target declares an HTTP surface.
func (p *Prober) Probe(ctx context.Context, target Target) Observation {
	obs := Observation{
		Target:    target.Name,
		Timestamp: time.Now(),
	}

	conn, err := p.dialer.DialContext(ctx, "tcp", target.Addr())
	if err != nil {
		return obs
	}
	conn.Close()
	obs.TCPReachable = true

	if !target.HasHTTP() {
		return obs
	}

	obs.HTTPChecked = true
	status, err := p.fetchStatus(ctx, target.BaseURL()+target.HTTPPath)
	if err != nil {
		return obs
	}
	obs.HTTPReachable = true
	obs.HTTPStatus = status
	return obs
}

// fetchStatus issues a GET and returns the response status code.
func (p *Prober) fetchStatus(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
