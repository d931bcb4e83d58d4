package usage

import (
	"context"
	"testing"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

func TestCanAnalyze(t *testing.T) {
	cases := []struct {
		name  string
		count int
		limit int
		want  bool
	}{
		{"under limit", 9, 10, true},
		{"at limit", 10, 10, false},
		{"over limit", 11, 10, false},
		{"unlimited", 5000, models.Unlimited, true},
		{"zero limit", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAnalyze(tc.count, tc.limit); got != tc.want {
				t.Fatalf("CanAnalyze(%d,%d) = %v, want %v", tc.count, tc.limit, got, tc.want)
			}
		})
	}
}

func TestRemaining(t *testing.T) {
	if Remaining(3, 10) != 7 {
		t.Fatalf("expected 7 remaining")
	}
	if Remaining(12, 10) != 0 {
		t.Fatalf("expected 0 remaining when over limit")
	}
	if Remaining(12, models.Unlimited) != models.Unlimited {
		t.Fatalf("expected unlimited")
	}
}

func TestCounterReachesLimit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.May, 10, 12, 0, 0, 0, time.UTC)
	counter := NewCounter(NewLocalStore(store.NewMemoryBackend())).WithClock(func() time.Time { return now })

	for i := 0; i < 9; i++ {
		if _, err := counter.Increment(ctx, "u1"); err != nil {
			t.Fatalf("Increment error: %v", err)
		}
	}
	cur, err := counter.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if cur.Count != 9 || !CanAnalyze(cur.Count, 10) {
		t.Fatalf("expected 9 and allowed, got %+v", cur)
	}

	next, err := counter.Increment(ctx, "u1")
	if err != nil {
		t.Fatalf("Increment error: %v", err)
	}
	if next.Count != 10 {
		t.Fatalf("expected 10, got %d", next.Count)
	}
	if CanAnalyze(next.Count, 10) {
		t.Fatalf("expected limit reached")
	}
}

func TestCounterRollover(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.January, 31, 23, 0, 0, 0, time.UTC)
	counter := NewCounter(NewLocalStore(store.NewMemoryBackend())).WithClock(func() time.Time { return now })

	for i := 0; i < 4; i++ {
		if _, err := counter.Increment(ctx, "u1"); err != nil {
			t.Fatalf("Increment error: %v", err)
		}
	}

	now = time.Date(2025, time.February, 1, 0, 30, 0, 0, time.UTC)
	cur, err := counter.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current error: %v", err)
	}
	if cur.Count != 0 || cur.Month != 2 || cur.Year != 2025 {
		t.Fatalf("expected fresh february counter, got %+v", cur)
	}

	next, err := counter.Increment(ctx, "u1")
	if err != nil {
		t.Fatalf("Increment error: %v", err)
	}
	if next.Count != 1 {
		t.Fatalf("expected 1 after rollover, got %d", next.Count)
	}
}

func TestLocalStorePersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	first := NewLocalStore(backend)
	if _, err := first.Increment(ctx, "u1", "05-2025"); err != nil {
		t.Fatalf("Increment error: %v", err)
	}
	if _, err := first.Increment(ctx, "u1", "05-2025"); err != nil {
		t.Fatalf("Increment error: %v", err)
	}

	second := NewLocalStore(backend)
	got, err := second.Read(ctx, "u1", "05-2025")
	if err != nil || got != 2 {
		t.Fatalf("Read = (%d,%v), want (2,nil)", got, err)
	}
	if got, _ := second.Read(ctx, "u2", "05-2025"); got != 0 {
		t.Fatalf("other users start at zero, got %d", got)
	}
}

func TestLocalStoresShareBackendCounts(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	a := NewLocalStore(backend)
	b := NewLocalStore(backend)

	if _, err := a.Read(ctx, "u1", "05-2025"); err != nil {
		t.Fatalf("Read error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := b.Increment(ctx, "u1", "05-2025"); err != nil {
			t.Fatalf("Increment error: %v", err)
		}
	}
	got, err := a.Increment(ctx, "u1", "05-2025")
	if err != nil || got != 6 {
		t.Fatalf("Increment = (%d,%v), want (6,nil)", got, err)
	}
	if got, _ := NewLocalStore(backend).Read(ctx, "u1", "05-2025"); got != 6 {
		t.Fatalf("backend holds %d, want 6", got)
	}
	if got, _ := b.Read(ctx, "u1", "05-2025"); got != 6 {
		t.Fatalf("other store reads %d, want 6", got)
	}
}

func TestParseMonthKey(t *testing.T) {
	m, y, err := parseMonthKey("03-2025")
	if err != nil || m != 3 || y != 2025 {
		t.Fatalf("parseMonthKey = (%d,%d,%v)", m, y, err)
	}
	if _, _, err := parseMonthKey("13-2025"); err == nil {
		t.Fatalf("expected invalid month error")
	}
	if _, _, err := parseMonthKey("bogus"); err == nil {
		t.Fatalf("expected parse error")
	}
}
