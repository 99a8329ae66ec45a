package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type sqliteHistoryRepo struct {
	db *sql.DB
}

func (r *sqliteHistoryRepo) Create(ctx context.Context, h *History) error {
	query := `
		INSERT INTO alert_history (id, subject, severity, reason, kind, message, sent_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.Subject, h.Severity, h.Reason, h.Kind, h.Message, h.SentAt, h.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert history: %w", err)
	}
	return nil
}

func (r *sqliteHistoryRepo) List(ctx context.Context, limit, offset int) ([]*History, int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history").Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count alert history: %w", err)
	}

	query := `
		SELECT id, subject, severity, reason, kind, message, sent_at, created_at
		FROM alert_history ORDER BY created_at DESC LIMIT ? OFFSET ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	histories, err := r.scanHistories(rows)
	if err != nil {
		return nil, 0, err
	}
	return histories, total, rows.Err()
}

func (r *sqliteHistoryRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alert_history WHERE created_at < ?", before)
	if err != nil {
		return 0, fmt.Errorf("delete alert history: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteHistoryRepo) scanHistories(rows *sql.Rows) ([]*History, error) {
	var histories []*History
	for rows.Next() {
		h := &History{}
		err := rows.Scan(&h.ID, &h.Subject, &h.Severity, &h.Reason, &h.Kind,
			&h.Message, &h.SentAt, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		histories = append(histories, h)
	}
	return histories, nil
}
