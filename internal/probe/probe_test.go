package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"
)

// listenTCP starts a throwaway TCP listener and returns its target.
func listenTCP(t *testing.T, name string) (Target, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	addr := ln.Addr().(*net.TCPAddr)
	return Target{Name: name, Host: "127.0.0.1", Port: addr.Port}, func() { ln.Close() }
}

// closedPort returns a port that was just released, so connecting to it
// is refused.
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// targetFromServer builds a Target pointing at an httptest server.
func targetFromServer(t *testing.T, srv *httptest.Server, path string) Target {
	t.Helper()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return Target{Name: "connect", Host: u.Hostname(), Port: port, HTTPPath: path}
}

func TestProbeTCPReachable(t *testing.T) {
	target, cleanup := listenTCP(t, "broker")
	defer cleanup()

	obs := NewProber(time.Second).Probe(context.Background(), target)

	if obs.Target != "broker" {
		t.Errorf("target = %q, want broker", obs.Target)
	}
	if !obs.TCPReachable {
		t.Error("expected TCP reachable")
	}
	if obs.HTTPChecked {
		t.Error("no HTTP surface declared, should not probe HTTP")
	}
	if obs.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestProbeTCPRefused(t *testing.T) {
	target := Target{Name: "zookeeper", Host: "127.0.0.1", Port: closedPort(t)}

	obs := NewProber(time.Second).Probe(context.Background(), target)

	if obs.TCPReachable {
		t.Error("expected TCP unreachable")
	}
	if obs.HTTPChecked {
		t.Error("HTTP must not be probed when TCP failed")
	}
}

func TestProbeDNSFailureIsUnreachable(t *testing.T) {
	// DNS failure is represented as data, never an error.
	target := Target{Name: "broker", Host: "host.invalid", Port: 9092}

	obs := NewProber(time.Second).Probe(context.Background(), target)
	if obs.TCPReachable {
		t.Error("expected unreachable for unresolvable host")
	}
}

func TestProbeHTTPHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := targetFromServer(t, srv, "/")
	obs := NewProber(time.Second).Probe(context.Background(), target)

	if !obs.TCPReachable || !obs.HTTPChecked || !obs.HTTPReachable {
		t.Fatalf("observation = %+v", obs)
	}
	if obs.HTTPStatus != http.StatusOK {
		t.Errorf("status = %d, want 200", obs.HTTPStatus)
	}
}

func TestProbeHTTPErrorStatusRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	target := targetFromServer(t, srv, "/")
	obs := NewProber(time.Second).Probe(context.Background(), target)

	// A non-2xx answer is still reachable; the evaluator decides health.
	if !obs.HTTPReachable {
		t.Error("expected HTTP reachable")
	}
	if obs.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", obs.HTTPStatus)
	}
}

func TestProbeHTTPTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer slow.Close()

	target := targetFromServer(t, slow, "/")
	obs := NewProber(50 * time.Millisecond).Probe(context.Background(), target)

	if !obs.TCPReachable {
		t.Error("TCP should be reachable")
	}
	if obs.HTTPReachable {
		t.Error("slow HTTP response should count as unreachable")
	}
}

func TestTargetAddr(t *testing.T) {
	target := Target{Name: "broker", Host: "localhost", Port: 9092}
	if got := target.Addr(); got != "localhost:9092" {
		t.Errorf("Addr() = %q", got)
	}
	if target.HasHTTP() {
		t.Error("no HTTP path declared")
	}

	withAPI := Target{Name: "connect", Host: "localhost", Port: 8083, HTTPPath: "/"}
	if !withAPI.HasHTTP() {
		t.Error("HTTP path declared")
	}
	if got := withAPI.BaseURL(); got != "http://localhost:8083" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestNewProberDefaultTimeout(t *testing.T) {
	p := NewProber(0)
	if p.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", p.timeout, DefaultTimeout)
	}
}
