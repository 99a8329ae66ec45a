package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/good-yellow-bee/kafkawatch/internal/alerting"
	"github.com/good-yellow-bee/kafkawatch/internal/health"
)

type sqliteAlertStateRepo struct {
	db *sql.DB
}

func (r *sqliteAlertStateRepo) Load(ctx context.Context) (map[string]alerting.Entry, error) {
	query := `
		SELECT subject, severity, reason, first_seen, last_notified
		FROM alert_state
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query alert state: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]alerting.Entry)
	for rows.Next() {
		var e alerting.Entry
		var severity, reason string
		if err := rows.Scan(&e.Subject, &severity, &reason, &e.FirstSeen, &e.LastNotified); err != nil {
			return nil, fmt.Errorf("scan alert state: %w", err)
		}
		e.Severity = health.Severity(severity)
		e.Reason = health.Reason(reason)
		entries[e.Subject] = e
	}
	return entries, rows.Err()
}

func (r *sqliteAlertStateRepo) Get(ctx context.Context, subject string) (alerting.Entry, error) {
	query := `
		SELECT subject, severity, reason, first_seen, last_notified
		FROM alert_state WHERE subject = ?
	`
	var e alerting.Entry
	var severity, reason string
	err := r.db.QueryRowContext(ctx, query, subject).
		Scan(&e.Subject, &severity, &reason, &e.FirstSeen, &e.LastNotified)
	if errors.Is(err, sql.ErrNoRows) {
		return alerting.Entry{}, ErrNotFound
	}
	if err != nil {
		return alerting.Entry{}, fmt.Errorf("get alert state %s: %w", subject, err)
	}
	e.Severity = health.Severity(severity)
	e.Reason = health.Reason(reason)
	return e, nil
}

func (r *sqliteAlertStateRepo) Upsert(ctx context.Context, entry alerting.Entry) error {
	query := `
		INSERT INTO alert_state (subject, severity, reason, first_seen, last_notified)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(subject) DO UPDATE SET
			severity = excluded.severity,
			reason = excluded.reason,
			first_seen = excluded.first_seen,
			last_notified = excluded.last_notified
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.Subject, string(entry.Severity), string(entry.Reason),
		entry.FirstSeen, entry.LastNotified,
	)
	if err != nil {
		return fmt.Errorf("upsert alert state %s: %w", entry.Subject, err)
	}
	return nil
}

func (r *sqliteAlertStateRepo) Delete(ctx context.Context, subject string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM alert_state WHERE subject = ?", subject)
	if err != nil {
		return fmt.Errorf("delete alert state %s: %w", subject, err)
	}
	return nil
}
