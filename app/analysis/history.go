package analysis

import (
	"context"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

// History keeps the most-recent-first analysis and signal feeds of each user.
type History interface {
	AddAnalysis(ctx context.Context, userID string, a models.Analysis) error
	Analyses(ctx context.Context, userID string) ([]models.Analysis, error)
	AddSignal(ctx context.Context, userID string, s models.Signal) error
	Signals(ctx context.Context, userID string) ([]models.Signal, error)
}

// KVHistory stores both feeds in the key-value store, capped at store.HistoryLimit.
type KVHistory struct {
	backend store.Backend
}

func NewKVHistory(backend store.Backend) *KVHistory {
	return &KVHistory{backend: backend}
}

func (h *KVHistory) analysisValue(userID string) *store.Value[[]models.Analysis] {
	return store.Bind(h.backend, store.UserKey(store.KeyAnalyses, userID), []models.Analysis{})
}

func (h *KVHistory) signalValue(userID string) *store.Value[[]models.Signal] {
	return store.Bind(h.backend, store.UserKey(store.KeySignals, userID), []models.Signal{})
}

func (h *KVHistory) AddAnalysis(ctx context.Context, userID string, a models.Analysis) error {
	h.analysisValue(userID).Update(ctx, func(cur []models.Analysis) []models.Analysis {
		return store.Prepend(cur, a, store.HistoryLimit)
	})
	return nil
}

func (h *KVHistory) Analyses(ctx context.Context, userID string) ([]models.Analysis, error) {
	return h.analysisValue(userID).Get(ctx), nil
}

func (h *KVHistory) AddSignal(ctx context.Context, userID string, s models.Signal) error {
	h.signalValue(userID).Update(ctx, func(cur []models.Signal) []models.Signal {
		return store.Prepend(cur, s, store.HistoryLimit)
	})
	return nil
}

func (h *KVHistory) Signals(ctx context.Context, userID string) ([]models.Signal, error) {
	return h.signalValue(userID).Get(ctx), nil
}

// PerformanceStore folds every new analysis into the user's aggregates.
type PerformanceStore struct {
	backend store.Backend
}

func NewPerformanceStore(backend store.Backend) *PerformanceStore {
	return &PerformanceStore{backend: backend}
}

func (p *PerformanceStore) value(userID string) *store.Value[models.Performance] {
	return store.Bind(p.backend, store.UserKey(store.KeyPerformance, userID), models.Performance{})
}

func (p *PerformanceStore) Record(ctx context.Context, userID string, a models.Analysis) models.Performance {
	return p.value(userID).Update(ctx, func(cur models.Performance) models.Performance {
		return cur.Record(a)
	})
}

func (p *PerformanceStore) Get(ctx context.Context, userID string) models.Performance {
	return p.value(userID).Get(ctx)
}
