// Package usage counts analyses per user per calendar month.
package usage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// Store persists one counter per user and month key (MM-YYYY).
// A month key that was never incremented reads as zero, so a new month always starts at zero.
type Store interface {
	Read(ctx context.Context, userID, monthKey string) (int, error)
	Increment(ctx context.Context, userID, monthKey string) (int, error)
}

// CanAnalyze reports whether another analysis fits under limit.
func CanAnalyze(count, limit int) bool {
	return limit == models.Unlimited || count < limit
}

// Remaining returns how many analyses are left, or Unlimited.
func Remaining(count, limit int) int {
	if limit == models.Unlimited {
		return models.Unlimited
	}
	if count >= limit {
		return 0
	}
	return limit - count
}

// Counter reads and increments the current month's usage.
type Counter struct {
	store Store
	now   func() time.Time
}

func NewCounter(store Store) *Counter {
	return &Counter{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (c *Counter) WithClock(now func() time.Time) *Counter {
	c.now = now
	return c
}

// Current returns the usage of the running calendar month.
func (c *Counter) Current(ctx context.Context, userID string) (models.MonthlyUsage, error) {
	now := c.now()
	count, err := c.store.Read(ctx, userID, models.MonthKey(now))
	if err != nil {
		return models.MonthlyUsage{}, fmt.Errorf("usage read: %w", err)
	}
	return models.MonthlyUsage{Count: count, Month: int(now.Month()), Year: now.Year()}, nil
}

// Increment adds one analysis to the running month.
func (c *Counter) Increment(ctx context.Context, userID string) (models.MonthlyUsage, error) {
	now := c.now()
	count, err := c.store.Increment(ctx, userID, models.MonthKey(now))
	if err != nil {
		return models.MonthlyUsage{}, fmt.Errorf("usage increment: %w", err)
	}
	log.Printf("usage incremented user=%s month=%s count=%d", userID, models.MonthKey(now), count)
	return models.MonthlyUsage{Count: count, Month: int(now.Month()), Year: now.Year()}, nil
}

func parseMonthKey(key string) (month, year int, err error) {
	if _, err := fmt.Sscanf(key, "%02d-%d", &month, &year); err != nil {
		return 0, 0, fmt.Errorf("invalid month key %q: %w", key, err)
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month key %q", key)
	}
	return month, year, nil
}
