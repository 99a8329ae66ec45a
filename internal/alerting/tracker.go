// Package alerting decides which health verdicts are worth notifying
// about. It compares the current cycle's verdicts against the persisted
// state from prior invocations and emits at most one notification per
// state transition, plus bounded periodic reminders for sustained
// incidents.
package alerting

import (
	"time"

	"github.com/good-yellow-bee/kafkawatch/internal/health"
)

// Entry is the persisted alert state for one subject. Only non-OK
// subjects have entries; recovery deletes them.
type Entry struct {
	Subject      string
	Severity     health.Severity
	Reason       health.Reason
	FirstSeen    time.Time
	LastNotified time.Time
}

// Kind classifies the transition a notification reports.
type Kind string

const (
	// KindNew is a transition from OK (or no history) into WARNING or CRITICAL.
	KindNew Kind = "new"
	// KindEscalated is a WARNING to CRITICAL transition.
	KindEscalated Kind = "escalated"
	// KindDegraded is a CRITICAL to WARNING transition without passing
	// through OK: improved but still degraded.
	KindDegraded Kind = "degraded"
	// KindReminder re-surfaces a sustained incident after the re-notify
	// interval has elapsed.
	KindReminder Kind = "reminder"
	// KindRecovered is a transition back to OK.
	KindRecovered Kind = "recovered"
)

// Notification is one firing verdict plus its transition context.
type Notification struct {
	Verdict   health.Verdict
	Kind      Kind
	Timestamp time.Time
	// FirstSeen is when the incident began. For recovered notifications
	// it yields the incident duration.
	FirstSeen time.Time
}

// Duration returns how long the incident has been (or was) active.
func (n Notification) Duration() time.Duration {
	if n.FirstSeen.IsZero() {
		return 0
	}
	return n.Timestamp.Sub(n.FirstSeen)
}

// Result is the outcome of tracking one cycle: what to send, what to
// persist, and what was deliberately suppressed.
type Result struct {
	Notifications []Notification
	// Upserts are entries to write back to the state store.
	Upserts []Entry
	// Deletes are subjects whose entries must be cleared (recoveries).
	Deletes []string
	// Suppressed are still-firing verdicts deduplicated away this cycle.
	Suppressed []health.Verdict
}

// Tracker applies the deduplication contract. A zero re-notify interval
// disables reminders entirely.
type Tracker struct {
	renotify time.Duration
}

// NewTracker creates a tracker with the given re-notify interval.
func NewTracker(renotify time.Duration) *Tracker {
	return &Tracker{renotify: renotify}
}

// Track evaluates verdicts against prior state at the current time.
func (t *Tracker) Track(prior map[string]Entry, verdicts []health.Verdict) Result {
	return t.TrackAt(prior, verdicts, time.Now())
}

// TrackAt evaluates verdicts against prior state at a specific time.
// prior is not mutated.
func (t *Tracker) TrackAt(prior map[string]Entry, verdicts []health.Verdict, now time.Time) Result {
	var res Result

	for _, v := range verdicts {
		prev, known := prior[v.Subject]

		if v.Severity == health.SeverityOK {
			if !known {
				continue
			}
			// Recovery: one notification, then the entry clears.
			res.Notifications = append(res.Notifications, Notification{
				Verdict:   v,
				Kind:      KindRecovered,
				Timestamp: now,
				FirstSeen: prev.FirstSeen,
			})
			res.Deletes = append(res.Deletes, v.Subject)
			continue
		}

		entry := Entry{
			Subject:      v.Subject,
			Severity:     v.Severity,
			Reason:       v.Reason,
			FirstSeen:    now,
			LastNotified: now,
		}

		switch {
		case !known:
			res.Notifications = append(res.Notifications, Notification{
				Verdict:   v,
				Kind:      KindNew,
				Timestamp: now,
				FirstSeen: now,
			})
			res.Upserts = append(res.Upserts, entry)

		case v.Severity.WorseThan(prev.Severity):
			res.Notifications = append(res.Notifications, Notification{
				Verdict:   v,
				Kind:      KindEscalated,
				Timestamp: now,
				FirstSeen: now,
			})
			res.Upserts = append(res.Upserts, entry)

		case prev.Severity.WorseThan(v.Severity):
			// CRITICAL to WARNING without an intervening OK: reported as
			// a fresh degraded state, not silently absorbed.
			res.Notifications = append(res.Notifications, Notification{
				Verdict:   v,
				Kind:      KindDegraded,
				Timestamp: now,
				FirstSeen: now,
			})
			res.Upserts = append(res.Upserts, entry)

		case t.renotify > 0 && now.Sub(prev.LastNotified) >= t.renotify:
			res.Notifications = append(res.Notifications, Notification{
				Verdict:   v,
				Kind:      KindReminder,
				Timestamp: now,
				FirstSeen: prev.FirstSeen,
			})
			entry.FirstSeen = prev.FirstSeen
			res.Upserts = append(res.Upserts, entry)

		default:
			// Same severity, interval not elapsed: suppressed. The
			// persisted entry is already accurate, nothing to write.
			res.Suppressed = append(res.Suppressed, v)
		}
	}

	return res
}
