package usage

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// PostgresStore keeps counters in usage_counters keyed by (user_id, month_key).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Read(ctx context.Context, userID, monthKey string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT count
		FROM usage_counters
		WHERE user_id = $1 AND month_key = $2;
	`, userID, monthKey).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PostgresStore) Increment(ctx context.Context, userID, monthKey string) (int, error) {
	month, year, err := parseMonthKey(monthKey)
	if err != nil {
		return 0, err
	}
	periodStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)

	var count int
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO usage_counters (user_id, month_key, period_start, count, updated_at)
		VALUES ($1, $2, $3, 1, now())
		ON CONFLICT (user_id, month_key)
		DO UPDATE SET count = usage_counters.count + 1, updated_at = now()
		RETURNING count;
	`, userID, monthKey, periodStart).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Prune deletes counters whose period started before the month containing cutoff.
func (p *PostgresStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, time.UTC)
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM usage_counters
		WHERE period_start < $1;
	`, start)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	log.Printf("usage prune done before=%s deleted=%d", start.Format("2006-01"), n)
	return n, nil
}
