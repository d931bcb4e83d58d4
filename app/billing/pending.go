package billing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

// PendingPrices remembers the plan a visitor picked before logging in.
// Take is one-shot so a resumed checkout cannot be submitted twice.
type PendingPrices struct {
	mu      sync.Mutex
	backend store.Backend
}

func NewPendingPrices(backend store.Backend) *PendingPrices {
	return &PendingPrices{backend: backend}
}

func (p *PendingPrices) Put(ctx context.Context, clientID, priceID string) error {
	clientID = strings.TrimSpace(clientID)
	priceID = strings.TrimSpace(priceID)
	if clientID == "" || priceID == "" {
		return errors.New("client id and price id are required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend.Save(ctx, store.UserKey(store.KeyPendingPrice, clientID), []byte(priceID))
}

// Take returns and removes the pending price of clientID.
func (p *PendingPrices) Take(ctx context.Context, clientID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := store.UserKey(store.KeyPendingPrice, clientID)
	b, err := p.backend.Load(ctx, key)
	if err != nil {
		return "", false
	}
	_ = p.backend.Delete(ctx, key)
	return string(b), len(b) > 0
}

// Clear drops any pending price of clientID.
func (p *PendingPrices) Clear(ctx context.Context, clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.backend.Delete(ctx, store.UserKey(store.KeyPendingPrice, clientID))
}
