package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanTrader   PlanType = "trader"
	PlanAlphaPro PlanType = "alpha_pro"
)

// Unlimited marks a plan without a monthly analysis cap.
const Unlimited = -1

// Valid reports whether p is one of the known plan tiers.
func (p PlanType) Valid() bool {
	switch p {
	case PlanFree, PlanTrader, PlanAlphaPro:
		return true
	}
	return false
}

// Plan is static plan metadata shown on the pricing page.
type Plan struct {
	Type         PlanType        `json:"type"`
	Name         string          `json:"name"`
	PriceID      string          `json:"price_id,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Interval     string          `json:"interval"`
	MonthlyLimit int             `json:"monthly_limit"`
	Features     []string        `json:"features"`
}

// SubscriptionData is the single active subscription record of a user.
type SubscriptionData struct {
	PriceID              string     `json:"price_id,omitempty"`
	PlanType             PlanType   `json:"plan_type"`
	IsActive             bool       `json:"is_active"`
	StartDate            *time.Time `json:"start_date,omitempty"`
	EndDate              *time.Time `json:"end_date,omitempty"`
	StripeCustomerID     string     `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string     `json:"stripe_subscription_id,omitempty"`
}

// MonthlyUsage counts analyses in one calendar month.
type MonthlyUsage struct {
	Count int `json:"count"`
	Month int `json:"month"`
	Year  int `json:"year"`
}

// MonthKey formats a calendar month as MM-YYYY.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%02d-%d", int(t.Month()), t.Year())
}

// Key returns the MM-YYYY key of the usage period.
func (u MonthlyUsage) Key() string {
	return fmt.Sprintf("%02d-%d", u.Month, u.Year)
}
