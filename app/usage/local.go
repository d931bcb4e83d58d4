package usage

import (
	"context"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

// LocalStore keeps a single MonthlyUsage per user in the key-value store.
// A stored period other than the requested one reads as zero.
// Increments are read-modify-writes against the backend.
type LocalStore struct {
	backend store.Backend
}

func NewLocalStore(backend store.Backend) *LocalStore {
	return &LocalStore{backend: backend}
}

func (s *LocalStore) value(userID string) *store.Value[models.MonthlyUsage] {
	return store.Bind(s.backend, store.UserKey(store.KeyMonthlyUsage, userID), models.MonthlyUsage{})
}

func (s *LocalStore) Read(ctx context.Context, userID, monthKey string) (int, error) {
	if _, _, err := parseMonthKey(monthKey); err != nil {
		return 0, err
	}
	cur := s.value(userID).Get(ctx)
	if cur.Key() != monthKey {
		return 0, nil
	}
	return cur.Count, nil
}

func (s *LocalStore) Increment(ctx context.Context, userID, monthKey string) (int, error) {
	month, year, err := parseMonthKey(monthKey)
	if err != nil {
		return 0, err
	}
	next := s.value(userID).Update(ctx, func(cur models.MonthlyUsage) models.MonthlyUsage {
		if cur.Key() != monthKey {
			cur = models.MonthlyUsage{Month: month, Year: year}
		}
		cur.Count++
		return cur
	})
	return next.Count, nil
}
