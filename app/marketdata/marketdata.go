// Package marketdata looks up the last traded price of a chart's symbol.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

var ErrNoQuote = errors.New("no quote for symbol")

type Quote struct {
	Symbol string
	Price  decimal.Decimal
	At     time.Time
}

type Source interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// YahooSource reads quotes from Yahoo Finance.
type YahooSource struct{}

func (YahooSource) Quote(_ context.Context, symbol string) (Quote, error) {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return Quote{}, ErrNoQuote
	}
	q, err := quote.Get(normalized)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to get quote for %s: %w", normalized, err)
	}
	if q == nil || q.RegularMarketPrice <= 0 {
		return Quote{}, ErrNoQuote
	}
	return Quote{
		Symbol: normalized,
		Price:  decimal.NewFromFloat(q.RegularMarketPrice),
		At:     time.Now(),
	}, nil
}

// NormalizeSymbol maps chart pair notation (BTC/USDT, ETHUSDT) to Yahoo tickers (BTC-USD).
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return ""
	}
	for _, sep := range []string{"/", "-", ":"} {
		if base, quoteCcy, ok := strings.Cut(s, sep); ok {
			return base + "-" + fiat(quoteCcy)
		}
	}
	for _, stable := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(s, stable) && len(s) > len(stable) {
			return strings.TrimSuffix(s, stable) + "-USD"
		}
	}
	return s
}

func fiat(ccy string) string {
	switch ccy {
	case "USDT", "USDC", "BUSD":
		return "USD"
	}
	return ccy
}

type cachedQuote struct {
	quote Quote
	at    time.Time
}

// Cache wraps a Source with a TTL map.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cachedQuote
}

func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, now: time.Now, entries: map[string]cachedQuote{}}
}

func (c *Cache) Quote(ctx context.Context, symbol string) (Quote, error) {
	key := NormalizeSymbol(symbol)
	c.mu.RLock()
	hit, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && c.now().Sub(hit.at) <= c.ttl {
		return hit.quote, nil
	}

	q, err := c.src.Quote(ctx, symbol)
	if err != nil {
		return Quote{}, err
	}
	c.mu.Lock()
	c.entries[key] = cachedQuote{quote: q, at: c.now()}
	c.mu.Unlock()
	log.Printf("quote cached symbol=%s price=%s", key, q.Price.String())
	return q, nil
}
