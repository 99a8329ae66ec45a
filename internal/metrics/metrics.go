// Package metrics provides Prometheus metrics for kafkawatch. Because
// each invocation runs to completion and exits, metrics are not served;
// they are written as a node-exporter textfile-collector file at the
// end of the run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "kafkawatch"

// Set is a self-contained metrics registry for one run.
type Set struct {
	registry *prometheus.Registry

	// SubjectSeverity reports the evaluated severity per subject
	// (0=OK, 1=WARNING, 2=CRITICAL).
	SubjectSeverity *prometheus.GaugeVec

	// SubjectsTotal counts evaluated subjects by severity.
	SubjectsTotal *prometheus.GaugeVec

	// TCPReachable reports TCP reachability per target (1 reachable).
	TCPReachable *prometheus.GaugeVec

	// NotificationsSent counts notifications sent by transition kind.
	NotificationsSent *prometheus.CounterVec

	// NotificationsFailed counts notification transport failures.
	NotificationsFailed prometheus.Counter

	// NotificationsSuppressed counts deduplicated or rate-limited sends.
	NotificationsSuppressed prometheus.Counter

	// RunDuration is the wall-clock duration of the run in seconds.
	RunDuration prometheus.Gauge

	// LastRunTimestamp is the unix time the run completed.
	LastRunTimestamp prometheus.Gauge
}

// NewSet creates a metrics set backed by its own registry.
func NewSet() *Set {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Set{
		registry: reg,
		SubjectSeverity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subject_severity",
				Help:      "Evaluated severity per subject (0=OK, 1=WARNING, 2=CRITICAL)",
			},
			[]string{"subject"},
		),
		SubjectsTotal: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subjects",
				Help:      "Number of evaluated subjects by severity",
			},
			[]string{"severity"},
		),
		TCPReachable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_tcp_reachable",
				Help:      "Whether the target's TCP endpoint was reachable (1=yes)",
			},
			[]string{"target"},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Notifications sent, by transition kind",
			},
			[]string{"kind"},
		),
		NotificationsFailed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Notification transport failures",
			},
		),
		NotificationsSuppressed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_suppressed_total",
				Help:      "Notifications suppressed by deduplication or rate limiting",
			},
		),
		RunDuration: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of the monitoring run",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix timestamp of the last completed run",
			},
		),
	}
}

// SeverityValue maps a severity name to its gauge value.
func SeverityValue(severity string) float64 {
	switch severity {
	case "CRITICAL":
		return 2
	case "WARNING":
		return 1
	default:
		return 0
	}
}

// WriteTextfile writes the metrics in Prometheus text exposition format
// to path, atomically via a temp file rename so the textfile collector
// never reads a partial file.
func (s *Set) WriteTextfile(path string) error {
	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := expfmt.NewEncoder(tmp, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			tmp.Close()
			return fmt.Errorf("encode metrics: %w", err)
		}
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp metrics file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename metrics file: %w", err)
	}
	return nil
}
