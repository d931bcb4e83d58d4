package models

import (
	"testing"
	"time"
)

func TestMonthKey(t *testing.T) {
	got := MonthKey(time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC))
	if got != "03-2025" {
		t.Fatalf("MonthKey = %q, want 03-2025", got)
	}
	u := MonthlyUsage{Count: 2, Month: 11, Year: 2024}
	if u.Key() != "11-2024" {
		t.Fatalf("Key = %q, want 11-2024", u.Key())
	}
}

func TestPerformanceRecord(t *testing.T) {
	var p Performance
	p = p.Record(Analysis{Recommendation: RecommendationBuy, Confidence: 80})
	p = p.Record(Analysis{Recommendation: RecommendationSell, Confidence: 60})
	p = p.Record(Analysis{Recommendation: RecommendationHold, Confidence: 70})

	if p.TotalAnalyses != 3 || p.BuySignals != 1 || p.SellSignals != 1 || p.HoldSignals != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if p.AverageConfidence != 70 {
		t.Fatalf("AverageConfidence = %v, want 70", p.AverageConfidence)
	}
}

func TestPlanTypeValid(t *testing.T) {
	for _, p := range []PlanType{PlanFree, PlanTrader, PlanAlphaPro} {
		if !p.Valid() {
			t.Fatalf("%s should be valid", p)
		}
	}
	if PlanType("pro").Valid() {
		t.Fatalf("unknown plan should be invalid")
	}
}
