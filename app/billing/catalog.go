// Package billing owns plan metadata and the per-user subscription record.
package billing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

const (
	FreeMonthlyLimit   = 10
	TraderMonthlyLimit = 120
)

var ErrUnknownPrice = errors.New("unknown price id")

// Catalog is the static plan table plus the Stripe price id lookup.
type Catalog struct {
	plans   []models.Plan
	byPrice map[string]models.PlanType
}

func NewCatalog(traderPriceID, alphaProPriceID string) *Catalog {
	plans := []models.Plan{
		{
			Type:         models.PlanFree,
			Name:         "Free",
			Price:        decimal.Zero,
			Currency:     "BRL",
			Interval:     "month",
			MonthlyLimit: FreeMonthlyLimit,
			Features:     []string{"10 análises por mês", "Histórico de sinais", "Suporte por email"},
		},
		{
			Type:         models.PlanTrader,
			Name:         "Trader",
			PriceID:      traderPriceID,
			Price:        decimal.RequireFromString("49.90"),
			Currency:     "BRL",
			Interval:     "month",
			MonthlyLimit: TraderMonthlyLimit,
			Features:     []string{"120 análises por mês", "Gestão de risco", "Indicadores técnicos", "Suporte prioritário"},
		},
		{
			Type:         models.PlanAlphaPro,
			Name:         "Alpha Pro",
			PriceID:      alphaProPriceID,
			Price:        decimal.RequireFromString("99.90"),
			Currency:     "BRL",
			Interval:     "month",
			MonthlyLimit: models.Unlimited,
			Features:     []string{"Análises ilimitadas", "Gestão de risco", "Indicadores técnicos", "Alertas em tempo real", "Suporte VIP"},
		},
	}
	byPrice := map[string]models.PlanType{}
	for _, p := range plans {
		if p.PriceID != "" {
			byPrice[p.PriceID] = p.Type
		}
	}
	return &Catalog{plans: plans, byPrice: byPrice}
}

// Plans returns the catalog in display order.
func (c *Catalog) Plans() []models.Plan {
	out := make([]models.Plan, len(c.plans))
	copy(out, c.plans)
	return out
}

// PlanTypeForPrice maps a Stripe price id to a plan tier.
func (c *Catalog) PlanTypeForPrice(priceID string) (models.PlanType, error) {
	t, ok := c.byPrice[priceID]
	if !ok {
		return "", ErrUnknownPrice
	}
	return t, nil
}

// Plan returns the catalog entry for t, or the free plan.
func (c *Catalog) Plan(t models.PlanType) models.Plan {
	for _, p := range c.plans {
		if p.Type == t {
			return p
		}
	}
	return c.plans[0]
}

// Limit is the monthly analysis cap of t.
func (c *Catalog) Limit(t models.PlanType) int {
	return c.Plan(t).MonthlyLimit
}
