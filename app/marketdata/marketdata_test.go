package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTC/USDT": "BTC-USD",
		"btcusdt":  "BTC-USD",
		"ETH-USDC": "ETH-USD",
		"PETR4.SA": "PETR4.SA",
		"EUR/BRL":  "EUR-BRL",
		"  ":       "",
	}
	for in, want := range cases {
		if got := NormalizeSymbol(in); got != want {
			t.Fatalf("NormalizeSymbol(%q) = %q, want %q", in, got, want)
		}
	}
}

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Quote(_ context.Context, symbol string) (Quote, error) {
	s.calls++
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{Symbol: NormalizeSymbol(symbol), Price: decimal.NewFromInt(45000)}, nil
}

func TestCacheTTL(t *testing.T) {
	src := &countingSource{}
	c := NewCache(src, time.Minute)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := c.Quote(context.Background(), "BTC/USDT"); err != nil {
			t.Fatalf("Quote error: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", src.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.Quote(context.Background(), "BTCUSDT"); err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d calls", src.calls)
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	src := &countingSource{err: errors.New("down")}
	c := NewCache(src, time.Minute)
	if _, err := c.Quote(context.Background(), "BTC/USDT"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := c.Quote(context.Background(), "BTC/USDT"); err == nil {
		t.Fatalf("expected error")
	}
	if src.calls != 2 {
		t.Fatalf("errors must not be cached, got %d calls", src.calls)
	}
}
