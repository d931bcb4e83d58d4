package models

import "time"

type Recommendation string

const (
	RecommendationBuy  Recommendation = "BUY"
	RecommendationSell Recommendation = "SELL"
	RecommendationHold Recommendation = "HOLD"
)

type TechnicalIndicator struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Signal string `json:"signal"`
}

type RiskManagement struct {
	PositionSize string `json:"positionSize"`
	RiskReward   string `json:"riskReward"`
	MaxLoss      string `json:"maxLoss"`
}

// AIDecision keeps the raw decision returned by the chart analysis endpoint.
type AIDecision struct {
	Action        string `json:"acao"`
	Justification string `json:"justificativa"`
}

// Analysis is one chart evaluation shown to the user. It is never mutated after creation.
type Analysis struct {
	ID                  string               `json:"id"`
	Symbol              string               `json:"symbol"`
	Recommendation      Recommendation       `json:"recommendation"`
	Confidence          int                  `json:"confidence"`
	TargetPrice         float64              `json:"targetPrice"`
	StopLoss            float64              `json:"stopLoss"`
	Timeframe           string               `json:"timeframe"`
	Timestamp           time.Time            `json:"timestamp"`
	Reasoning           string               `json:"reasoning"`
	ImageData           string               `json:"imageData,omitempty"`
	TechnicalIndicators []TechnicalIndicator `json:"technicalIndicators"`
	RiskManagement      *RiskManagement      `json:"riskManagement,omitempty"`
	AIDecision          *AIDecision          `json:"aiDecision,omitempty"`
}

// Signal is the lightweight feed entry derived from an Analysis.
type Signal struct {
	ID          string         `json:"id"`
	AnalysisID  string         `json:"analysisId"`
	Symbol      string         `json:"symbol"`
	Type        Recommendation `json:"type"`
	Confidence  int            `json:"confidence"`
	Price       float64        `json:"price"`
	Timestamp   time.Time      `json:"timestamp"`
	Source      string         `json:"source"`
	Description string         `json:"description"`
}

// Performance holds rolling aggregates over a user's analyses.
type Performance struct {
	TotalAnalyses     int       `json:"totalAnalyses"`
	BuySignals        int       `json:"buySignals"`
	SellSignals       int       `json:"sellSignals"`
	HoldSignals       int       `json:"holdSignals"`
	AverageConfidence float64   `json:"averageConfidence"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

// Record folds a new analysis into the aggregates.
func (p Performance) Record(a Analysis) Performance {
	p.TotalAnalyses++
	switch a.Recommendation {
	case RecommendationBuy:
		p.BuySignals++
	case RecommendationSell:
		p.SellSignals++
	case RecommendationHold:
		p.HoldSignals++
	}
	n := float64(p.TotalAnalyses)
	p.AverageConfidence = (p.AverageConfidence*(n-1) + float64(a.Confidence)) / n
	p.LastUpdated = a.Timestamp
	return p
}
