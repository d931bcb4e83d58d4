package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

func TestValueRoundTripAnalysis(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	ts := time.Date(2025, time.May, 2, 14, 30, 0, 0, time.UTC)
	a := models.Analysis{
		ID:             "a-1",
		Symbol:         "BTC/USDT",
		Recommendation: models.RecommendationBuy,
		Confidence:     87,
		TargetPrice:    46250.5,
		StopLoss:       43100,
		Timeframe:      "4H",
		Timestamp:      ts,
		Reasoning:      "breakout",
		ImageData:      "aGVsbG8=",
		TechnicalIndicators: []models.TechnicalIndicator{
			{Name: "RSI", Value: "62", Signal: "BUY"},
		},
		RiskManagement: &models.RiskManagement{PositionSize: "2%", RiskReward: "1:2.5", MaxLoss: "1%"},
		AIDecision:     &models.AIDecision{Action: "compra", Justification: "rompimento"},
	}

	v := Bind(backend, UserKey(KeyAnalyses, "u1"), []models.Analysis{})
	v.Set(ctx, []models.Analysis{a})

	reloaded := Bind(backend, UserKey(KeyAnalyses, "u1"), []models.Analysis{})
	got := reloaded.Get(ctx)
	if len(got) != 1 {
		t.Fatalf("expected 1 analysis, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(ts) {
		t.Fatalf("timestamp = %v, want %v", got[0].Timestamp, ts)
	}
	if got[0].Symbol != a.Symbol || got[0].Confidence != a.Confidence || got[0].TargetPrice != a.TargetPrice ||
		got[0].StopLoss != a.StopLoss || got[0].Reasoning != a.Reasoning || got[0].ImageData != a.ImageData {
		t.Fatalf("fields mismatch: %+v", got[0])
	}
	if got[0].RiskManagement == nil || got[0].RiskManagement.RiskReward != "1:2.5" {
		t.Fatalf("risk management lost: %+v", got[0].RiskManagement)
	}
	if got[0].AIDecision == nil || got[0].AIDecision.Action != "compra" {
		t.Fatalf("ai decision lost: %+v", got[0].AIDecision)
	}
	if len(got[0].TechnicalIndicators) != 1 || got[0].TechnicalIndicators[0].Name != "RSI" {
		t.Fatalf("indicators lost: %+v", got[0].TechnicalIndicators)
	}
}

func TestDecodeRevivesTimestampFields(t *testing.T) {
	raw := []byte(`[{"id":"s1","timestamp":"2025-05-02T14:30:00Z","nested":{"timestamp":"2024-01-01T00:00:00Z"}},{"timestamp":"not a date"}]`)
	var out []any
	if err := Decode(raw, &out); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	first := out[0].(map[string]any)
	if _, ok := first["timestamp"].(time.Time); !ok {
		t.Fatalf("timestamp not revived: %T", first["timestamp"])
	}
	if _, ok := first["nested"].(map[string]any)["timestamp"].(time.Time); !ok {
		t.Fatalf("nested timestamp not revived")
	}
	if _, ok := first["id"].(string); !ok {
		t.Fatalf("id should stay a string")
	}
	if s, ok := out[1].(map[string]any)["timestamp"].(string); !ok || s != "not a date" {
		t.Fatalf("unparseable timestamp should stay a string")
	}
}

func TestGetFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	_ = backend.Save(ctx, "broken", []byte("{not json"))

	v := Bind(backend, "broken", models.MonthlyUsage{Month: 1, Year: 2025})
	if got := v.Get(ctx); got.Month != 1 || got.Count != 0 {
		t.Fatalf("expected default, got %+v", got)
	}
	missing := Bind(backend, "missing", 7)
	if missing.Get(ctx) != 7 {
		t.Fatalf("expected default 7")
	}
}

func TestSaveFailureIsNotSurfaced(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	v := Bind(backend, "k", 0)
	backend.FailSaves = errors.New("disk full")

	got := v.Update(ctx, func(n int) int { return n + 1 })
	if got != 1 || v.Get(ctx) != 1 {
		t.Fatalf("in-memory value should still update, got %d", got)
	}
	if _, err := backend.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing persisted, got %v", err)
	}
}

func TestSaveFailureRecoversOnNextWrite(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	v := Bind(backend, "k", 0)
	backend.FailSaves = errors.New("disk full")
	v.Update(ctx, func(n int) int { return n + 1 })
	backend.FailSaves = nil

	if got := v.Update(ctx, func(n int) int { return n + 1 }); got != 2 {
		t.Fatalf("expected unsaved value to carry over, got %d", got)
	}
	other := Bind(backend, "k", 0)
	if got := other.Get(ctx); got != 2 {
		t.Fatalf("expected 2 persisted, got %d", got)
	}
}

// loadSaveOnly hides Modify so Value falls back to load then save.
type loadSaveOnly struct {
	Backend
}

func TestHoldersOnSharedBackend(t *testing.T) {
	cases := []struct {
		name    string
		backend func(t *testing.T) (Backend, Backend)
	}{
		{"memory", func(t *testing.T) (Backend, Backend) {
			b := NewMemoryBackend()
			return b, b
		}},
		{"memory without modify", func(t *testing.T) (Backend, Backend) {
			b := NewMemoryBackend()
			return loadSaveOnly{b}, loadSaveOnly{b}
		}},
		{"file", func(t *testing.T) (Backend, Backend) {
			dir := t.TempDir()
			a, err := NewFileBackend(dir)
			if err != nil {
				t.Fatalf("NewFileBackend error: %v", err)
			}
			b, err := NewFileBackend(dir)
			if err != nil {
				t.Fatalf("NewFileBackend error: %v", err)
			}
			return a, b
		}},
		{"sqlite", func(t *testing.T) (Backend, Backend) {
			path := filepath.Join(t.TempDir(), "kv.db")
			a, err := NewSQLiteBackend(path)
			if err != nil {
				t.Skipf("sqlite unavailable: %v", err)
			}
			t.Cleanup(func() { a.Close() })
			b, err := NewSQLiteBackend(path)
			if err != nil {
				t.Fatalf("NewSQLiteBackend error: %v", err)
			}
			t.Cleanup(func() { b.Close() })
			return a, b
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			ba, bb := tc.backend(t)
			a := Bind(ba, "counter", 0)
			b := Bind(bb, "counter", 0)

			a.Update(ctx, func(n int) int { return n + 1 })
			if got := b.Update(ctx, func(n int) int { return n + 5 }); got != 6 {
				t.Fatalf("second holder lost the first write: got %d", got)
			}
			if got := a.Get(ctx); got != 6 {
				t.Fatalf("first holder read stale value %d", got)
			}
			b.Clear(ctx)
			if got := a.Get(ctx); got != 0 {
				t.Fatalf("expected cleared value, got %d", got)
			}
		})
	}
}

func TestConcurrentUpdatesAcrossHolders(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	memory := NewMemoryBackend()
	for _, name := range []string{"memory", "file"} {
		t.Run(name, func(t *testing.T) {
			holders := make([]*Value[int], 2)
			for i := range holders {
				var backend Backend = memory
				if name == "file" {
					fb, err := NewFileBackend(dir)
					if err != nil {
						t.Fatalf("NewFileBackend error: %v", err)
					}
					backend = fb
				}
				holders[i] = Bind(backend, "hits", 0)
			}

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(v *Value[int]) {
					defer wg.Done()
					v.Update(ctx, func(n int) int { return n + 1 })
				}(holders[i%2])
			}
			wg.Wait()

			if got := Bind(holders[0].backend, "hits", 0).Get(ctx); got != 20 {
				t.Fatalf("expected 20 increments, got %d", got)
			}
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	v := Bind(backend, "k", "")
	v.Set(ctx, "value")
	v.Clear(ctx)
	if v.Get(ctx) != "" {
		t.Fatalf("expected cleared value")
	}
	if _, err := backend.Load(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected key deleted, got %v", err)
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	fb, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend error: %v", err)
	}
	if _, err := fb.Load(ctx, "tickrify-user:a/b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := fb.Save(ctx, "tickrify-user:a/b", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	b, err := fb.Load(ctx, "tickrify-user:a/b")
	if err != nil || string(b) != `{"id":"a"}` {
		t.Fatalf("Load = %q, %v", b, err)
	}
	if err := fb.Delete(ctx, "tickrify-user:a/b"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := fb.Delete(ctx, "tickrify-user:a/b"); err != nil {
		t.Fatalf("second Delete should be a no-op, got %v", err)
	}
}

func TestPrepend(t *testing.T) {
	var list []int
	for i := 0; i < 60; i++ {
		list = Prepend(list, i, HistoryLimit)
	}
	if len(list) != HistoryLimit {
		t.Fatalf("len = %d, want %d", len(list), HistoryLimit)
	}
	if list[0] != 59 || list[HistoryLimit-1] != 10 {
		t.Fatalf("unexpected order: first=%d last=%d", list[0], list[HistoryLimit-1])
	}
}
