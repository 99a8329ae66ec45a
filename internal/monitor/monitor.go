// Package monitor runs one monitoring cycle: probe targets, resolve
// connector status, evaluate health, deduplicate against persisted
// state, and dispatch notifications. One invocation per scheduler tick;
// the process exit code reflects aggregate health.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/kafkawatch/internal/alerting"
	"github.com/good-yellow-bee/kafkawatch/internal/connect"
	"github.com/good-yellow-bee/kafkawatch/internal/health"
	"github.com/good-yellow-bee/kafkawatch/internal/metrics"
	"github.com/good-yellow-bee/kafkawatch/internal/notifier"
	"github.com/good-yellow-bee/kafkawatch/internal/probe"
	"github.com/good-yellow-bee/kafkawatch/internal/storage"
)

// Dispatcher sends notifications. Satisfied by notifier.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *alerting.Notification) error
}

// Options configures a Runner.
type Options struct {
	// Targets to probe, in order. The target named ConnectTargetName
	// additionally has its connectors resolved when its API is reachable.
	Targets           []probe.Target
	ConnectTargetName string

	ProbeTimeout     time.Duration
	RenotifyInterval time.Duration

	// StatePath is the SQLite alert-state database.
	StatePath string
	// LockPath guards the load-evaluate-persist window against an
	// overlapping invocation.
	LockPath string
	// MetricsPath, when non-empty, receives a textfile-collector .prom
	// file at the end of the run.
	MetricsPath string
}

// Summary is the outcome of one run.
type Summary struct {
	// Skipped is true when another invocation held the run lock; nothing
	// was probed or persisted.
	Skipped bool

	Verdicts   []health.Verdict
	Sent       int
	Suppressed int

	// SendFailures counts notifications whose transport failed.
	SendFailures int
	// PersistFailed is true when alert state could not be written back.
	PersistFailed bool
}

// Healthy reports whether every subject evaluated OK.
func (s Summary) Healthy() bool {
	for _, v := range s.Verdicts {
		if v.Severity != health.SeverityOK {
			return false
		}
	}
	return true
}

// ExitCode maps the summary onto the process exit status: 0 when every
// subject is OK and the run itself was clean, 1 otherwise. A skipped
// run is a non-error no-op.
func (s Summary) ExitCode() int {
	if s.Skipped {
		return 0
	}
	if !s.Healthy() || s.SendFailures > 0 || s.PersistFailed {
		return 1
	}
	return 0
}

// Runner executes monitoring cycles.
type Runner struct {
	opts       Options
	prober     *probe.Prober
	tracker    *alerting.Tracker
	dispatcher Dispatcher
	metrics    *metrics.Set
}

// New creates a Runner.
func New(opts Options, dispatcher Dispatcher) *Runner {
	return &Runner{
		opts:       opts,
		prober:     probe.NewProber(opts.ProbeTimeout),
		tracker:    alerting.NewTracker(opts.RenotifyInterval),
		dispatcher: dispatcher,
		metrics:    metrics.NewSet(),
	}
}

// Run executes one full monitoring cycle.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	lock := flock.New(r.opts.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Summary{}, fmt.Errorf("acquire run lock %s: %w", r.opts.LockPath, err)
	}
	if !locked {
		log.Printf("another invocation holds %s, skipping this run", r.opts.LockPath)
		return Summary{Skipped: true}, nil
	}
	defer lock.Unlock()

	store, prior := r.loadState(ctx)
	if store != nil {
		defer store.Close()
	}

	summary := Summary{}
	summary.Verdicts = r.evaluate(ctx)

	result := r.tracker.TrackAt(prior, summary.Verdicts, time.Now())
	r.dispatch(ctx, store, result, &summary)

	if store != nil {
		if err := r.persist(ctx, store, result); err != nil {
			log.Printf("ERROR: persisting alert state failed, deduplication may misfire next cycle: %v", err)
			summary.PersistFailed = true
		}
	} else {
		summary.PersistFailed = true
	}

	r.recordMetrics(summary, started)
	return summary, nil
}

// loadState opens the state store and loads prior entries. A missing or
// unreadable store is loud but not fatal: the cycle still runs with
// empty prior state and the summary marks persistence degraded.
func (r *Runner) loadState(ctx context.Context) (*storage.SQLiteStorage, map[string]alerting.Entry) {
	store := storage.NewSQLiteStorage(r.opts.StatePath)
	if err := store.Open(); err != nil {
		log.Printf("ERROR: open alert state %s: %v (continuing with empty state)", r.opts.StatePath, err)
		return nil, map[string]alerting.Entry{}
	}
	if err := store.Migrate(); err != nil {
		log.Printf("ERROR: migrate alert state %s: %v (continuing with empty state)", r.opts.StatePath, err)
		store.Close()
		return nil, map[string]alerting.Entry{}
	}

	prior, err := store.AlertState().Load(ctx)
	if err != nil {
		log.Printf("ERROR: load alert state: %v (continuing with empty state)", err)
		return store, map[string]alerting.Entry{}
	}
	return store, prior
}

// evaluate probes every target and resolves connectors, returning all
// verdicts for this cycle.
func (r *Runner) evaluate(ctx context.Context) []health.Verdict {
	var verdicts []health.Verdict

	for _, target := range r.opts.Targets {
		obs := r.prober.Probe(ctx, target)
		r.metrics.TCPReachable.WithLabelValues(target.Name).Set(boolValue(obs.TCPReachable))

		verdict := health.EvaluateTarget(target, obs)
		logVerdict(verdict)

		if target.Name == r.opts.ConnectTargetName && obs.HTTPReachable {
			connVerdicts, err := r.resolveConnectors(ctx, target)
			if err != nil {
				// The API answered the probe but the listing failed:
				// the connector-runner itself is unhealthy.
				log.Printf("ERROR: %s: %v", target.Name, err)
				verdict = health.Verdict{
					Subject:  target.Name,
					Severity: health.SeverityCritical,
					Reason:   health.ReasonAPIUnhealthy,
					Message:  fmt.Sprintf("%s connector listing failed: %v", target.Name, err),
				}
			}
			verdicts = append(verdicts, verdict)
			verdicts = append(verdicts, connVerdicts...)
			continue
		}

		verdicts = append(verdicts, verdict)
	}

	return verdicts
}

// resolveConnectors enumerates connectors and evaluates each one and
// its tasks. Per-connector fetch failures are already isolated by the
// client; only the listing call can fail here.
func (r *Runner) resolveConnectors(ctx context.Context, target probe.Target) ([]health.Verdict, error) {
	client := connect.NewClient(target.BaseURL(), r.opts.ProbeTimeout)
	connectors, err := client.ResolveConnectors(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("found %d connectors on %s", len(connectors), target.Name)

	var verdicts []health.Verdict
	for _, conn := range connectors {
		if conn.FetchErr != nil {
			log.Printf("WARN: connector %q status fetch failed: %v", conn.Name, conn.FetchErr)
		}
		for _, v := range health.EvaluateConnector(conn) {
			logVerdict(v)
			verdicts = append(verdicts, v)
		}
	}
	return verdicts, nil
}

// dispatch sends every firing notification and records history. A
// transport failure is logged and counted but never stops the rest.
func (r *Runner) dispatch(ctx context.Context, store *storage.SQLiteStorage, result alerting.Result, summary *Summary) {
	for _, v := range result.Suppressed {
		log.Printf("suppressed: %s still %s (%s), re-notify interval not elapsed", v.Subject, v.Severity, v.Reason)
		r.metrics.NotificationsSuppressed.Inc()
		summary.Suppressed++
	}

	for i := range result.Notifications {
		n := &result.Notifications[i]

		err := r.dispatcher.Dispatch(ctx, n)
		switch {
		case errors.Is(err, notifier.ErrRateLimited):
			log.Printf("suppressed: %s notification for %s rate limited", n.Kind, n.Verdict.Subject)
			r.metrics.NotificationsSuppressed.Inc()
			summary.Suppressed++
		case err != nil:
			log.Printf("ERROR: send %s notification for %s: %v", n.Kind, n.Verdict.Subject, err)
			r.metrics.NotificationsFailed.Inc()
			summary.SendFailures++
		default:
			log.Printf("sent %s notification: %s is %s (%s)", n.Kind, n.Verdict.Subject, n.Verdict.Severity, n.Verdict.Reason)
			r.metrics.NotificationsSent.WithLabelValues(string(n.Kind)).Inc()
			summary.Sent++
			r.recordHistory(ctx, store, n)
		}
	}
}

// recordHistory appends one sent notification to the audit trail.
func (r *Runner) recordHistory(ctx context.Context, store *storage.SQLiteStorage, n *alerting.Notification) {
	if store == nil {
		return
	}
	h := &storage.History{
		ID:        uuid.New().String(),
		Subject:   n.Verdict.Subject,
		Severity:  string(n.Verdict.Severity),
		Reason:    string(n.Verdict.Reason),
		Kind:      string(n.Kind),
		Message:   n.Verdict.Message,
		SentAt:    n.Timestamp,
		CreatedAt: time.Now(),
	}
	if err := store.History().Create(ctx, h); err != nil {
		log.Printf("WARN: record alert history for %s: %v", n.Verdict.Subject, err)
	}
}

// persist writes the tracker's state changes back to the store. State
// is written regardless of notification transport outcomes: the
// transition was observed, and a failed send surfaces via exit status.
func (r *Runner) persist(ctx context.Context, store *storage.SQLiteStorage, result alerting.Result) error {
	repo := store.AlertState()
	for _, entry := range result.Upserts {
		if err := repo.Upsert(ctx, entry); err != nil {
			return err
		}
	}
	for _, subject := range result.Deletes {
		if err := repo.Delete(ctx, subject); err != nil {
			return err
		}
	}
	return nil
}

// recordMetrics finalizes run metrics and writes the textfile if
// configured. Metrics output is best-effort and never fails the run.
func (r *Runner) recordMetrics(summary Summary, started time.Time) {
	counts := map[health.Severity]int{}
	for _, v := range summary.Verdicts {
		r.metrics.SubjectSeverity.WithLabelValues(v.Subject).Set(metrics.SeverityValue(string(v.Severity)))
		counts[v.Severity]++
	}
	for _, sev := range []health.Severity{health.SeverityOK, health.SeverityWarning, health.SeverityCritical} {
		r.metrics.SubjectsTotal.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
	r.metrics.RunDuration.Set(time.Since(started).Seconds())
	r.metrics.LastRunTimestamp.Set(float64(time.Now().Unix()))

	if r.opts.MetricsPath == "" {
		return
	}
	if err := r.metrics.WriteTextfile(r.opts.MetricsPath); err != nil {
		log.Printf("WARN: write metrics textfile %s: %v", r.opts.MetricsPath, err)
	}
}

func logVerdict(v health.Verdict) {
	if v.Severity == health.SeverityOK {
		log.Printf("[OK] %s", v.Message)
		return
	}
	log.Printf("[%s] %s: %s", v.Severity, v.Reason, v.Message)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
