package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/tickrify1/tickrify.com-sub000/app/config"

	_ "github.com/lib/pq"
)

// db is nil when no Postgres host is configured; every caller handles that.
var db *sql.DB

// MustInitDB initializes the global db and logs fatally on error.
func MustInitDB(cfg config.PostgresConfig) {
	d, err := OpenDB(context.Background(), cfg)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	db = d
}

// OpenDB connects, pings and creates missing tables.
func OpenDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	d, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := d.PingContext(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("db.Ping: %w", err)
	}
	if err := ensureSchema(ctx, d); err != nil {
		d.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")
	return d, nil
}

// DB returns the shared connection, or nil.
func DB() *sql.DB { return db }

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	email       TEXT,
	name        TEXT,
	issuer      TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_login  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id                TEXT PRIMARY KEY,
	price_id               TEXT,
	plan_type              TEXT NOT NULL DEFAULT 'free',
	is_active              BOOLEAN NOT NULL DEFAULT false,
	start_date             TIMESTAMPTZ,
	end_date               TIMESTAMPTZ,
	stripe_customer_id     TEXT,
	stripe_subscription_id TEXT,
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS subscriptions_customer_idx ON subscriptions (stripe_customer_id);

CREATE TABLE IF NOT EXISTS usage_counters (
	user_id      TEXT NOT NULL,
	month_key    TEXT NOT NULL,
	period_start DATE NOT NULL,
	count        INT NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, month_key)
);

CREATE TABLE IF NOT EXISTS analyses (
	id                   TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	symbol               TEXT NOT NULL,
	recommendation       TEXT NOT NULL,
	confidence           INT NOT NULL,
	target_price         DOUBLE PRECISION NOT NULL,
	stop_loss            DOUBLE PRECISION NOT NULL,
	timeframe            TEXT NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL,
	reasoning            TEXT NOT NULL,
	image_data           TEXT,
	technical_indicators JSONB,
	risk_management      JSONB,
	ai_decision          JSONB
);
CREATE INDEX IF NOT EXISTS analyses_user_created_idx ON analyses (user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS signals (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	analysis_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	type        TEXT NOT NULL,
	confidence  INT NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	source      TEXT NOT NULL,
	description TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS signals_user_created_idx ON signals (user_id, created_at DESC);
`

func ensureSchema(ctx context.Context, d *sql.DB) error {
	_, err := d.ExecContext(ctx, schema)
	return err
}
