package billing

import (
	"context"
	"database/sql"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// PostgresStore keeps subscriptions in the subscriptions table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*models.SubscriptionData, error) {
	var (
		sub                    models.SubscriptionData
		priceID, customer, sid sql.NullString
		start, end             sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT price_id, plan_type, is_active, start_date, end_date, stripe_customer_id, stripe_subscription_id
		FROM subscriptions
		WHERE user_id = $1;
	`, userID).Scan(&priceID, &sub.PlanType, &sub.IsActive, &start, &end, &customer, &sid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub.PriceID = priceID.String
	sub.StripeCustomerID = customer.String
	sub.StripeSubscriptionID = sid.String
	if start.Valid {
		sub.StartDate = &start.Time
	}
	if end.Valid {
		sub.EndDate = &end.Time
	}
	return &sub, nil
}

func (p *PostgresStore) Put(ctx context.Context, userID string, sub models.SubscriptionData) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, price_id, plan_type, is_active, start_date, end_date,
			stripe_customer_id, stripe_subscription_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			price_id = EXCLUDED.price_id,
			plan_type = EXCLUDED.plan_type,
			is_active = EXCLUDED.is_active,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
			updated_at = now();
	`,
		userID,
		nullIfEmpty(sub.PriceID),
		sub.PlanType,
		sub.IsActive,
		nullTime(sub.StartDate),
		nullTime(sub.EndDate),
		nullIfEmpty(sub.StripeCustomerID),
		nullIfEmpty(sub.StripeSubscriptionID),
	)
	return err
}

func (p *PostgresStore) FindUserByCustomer(ctx context.Context, customerID string) (string, error) {
	var userID string
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM subscriptions
		WHERE stripe_customer_id = $1;
	`, customerID).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", ErrCustomerNotFound
	}
	return userID, err
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
