package analysis

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// Values used when neither the upstream response nor a market quote supplies a field.
const (
	DefaultTargetPrice = 45000.0
	DefaultStopLoss    = 43500.0
	DefaultConfidence  = 75
	DefaultTimeframe   = "1H"
	DefaultSymbol      = "BTC/USDT"
)

// Offsets from the last quote used to derive price levels.
var (
	targetOffset = decimal.RequireFromString("0.03")
	stopOffset   = decimal.RequireFromString("0.02")
)

// NormalizeInput carries the request-side context Normalize needs.
type NormalizeInput struct {
	ID        string
	Symbol    string
	ImageData string
	Now       time.Time
	// Quote is the last traded price of Symbol when known.
	Quote *decimal.Decimal
}

// Normalize maps any upstream schema into one Analysis.
func Normalize(u Upstream, in NormalizeInput) models.Analysis {
	a := models.Analysis{
		ID:        in.ID,
		Symbol:    firstNonEmpty(in.Symbol, DefaultSymbol),
		Timeframe: DefaultTimeframe,
		Timestamp: in.Now.UTC(),
		ImageData: in.ImageData,
	}

	var target, stop *float64
	confidence := float64(DefaultConfidence)

	switch u.Kind {
	case KindEnglish:
		r := u.English
		a.Recommendation = ParseRecommendation(r.Recommendation)
		a.Reasoning = r.Reasoning
		if r.Confidence != nil {
			confidence = *r.Confidence
		}
		target, stop = r.TargetPrice, r.StopLoss
		if r.Timeframe != "" {
			a.Timeframe = r.Timeframe
		}
		if in.Symbol == "" && r.Symbol != "" {
			a.Symbol = r.Symbol
		}
		a.TechnicalIndicators = r.TechnicalIndicators
		a.RiskManagement = r.RiskManagement
	case KindPortuguese:
		r := u.Portuguese
		a.Recommendation = ParseRecommendation(r.Decisao)
		a.Reasoning = r.JustificativaDecisao
		if r.ConfiancaPercentual != nil {
			confidence = *r.ConfiancaPercentual
		}
		a.AIDecision = &models.AIDecision{Action: r.Decisao, Justification: r.JustificativaDecisao}
	case KindDecision:
		r := u.Decision
		a.Recommendation = ParseRecommendation(r.Acao)
		a.Reasoning = r.Justificativa
		a.AIDecision = &models.AIDecision{Action: r.Acao, Justification: r.Justificativa}
	default:
		a.Recommendation = models.RecommendationHold
	}

	a.Confidence = clampConfidence(confidence)
	a.TargetPrice, a.StopLoss = priceLevels(a.Recommendation, target, stop, in.Quote)
	if a.Reasoning == "" {
		a.Reasoning = fmt.Sprintf("Análise técnica indica %s para %s no gráfico %s.", actionLabel(a.Recommendation), a.Symbol, a.Timeframe)
	}
	if len(a.TechnicalIndicators) == 0 {
		a.TechnicalIndicators = defaultIndicators(a.Recommendation)
	}
	if a.RiskManagement == nil {
		a.RiskManagement = defaultRisk(a.TargetPrice, a.StopLoss, in.Quote)
	}
	return a
}

// ParseRecommendation accepts English and Portuguese action words. Anything else is HOLD.
func ParseRecommendation(s string) models.Recommendation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "compra", "comprar", "long", "strong buy":
		return models.RecommendationBuy
	case "sell", "venda", "vender", "short", "strong sell":
		return models.RecommendationSell
	default:
		return models.RecommendationHold
	}
}

func priceLevels(rec models.Recommendation, target, stop *float64, quote *decimal.Decimal) (float64, float64) {
	if target != nil && stop != nil {
		return *target, *stop
	}
	if quote != nil && quote.IsPositive() {
		one := decimal.NewFromInt(1)
		var t, s decimal.Decimal
		switch rec {
		case models.RecommendationSell:
			t = quote.Mul(one.Sub(targetOffset))
			s = quote.Mul(one.Add(stopOffset))
		default:
			t = quote.Mul(one.Add(targetOffset))
			s = quote.Mul(one.Sub(stopOffset))
		}
		tf, _ := t.Round(2).Float64()
		sf, _ := s.Round(2).Float64()
		if target != nil {
			tf = *target
		}
		if stop != nil {
			sf = *stop
		}
		return tf, sf
	}
	tf, sf := DefaultTargetPrice, DefaultStopLoss
	if target != nil {
		tf = *target
	}
	if stop != nil {
		sf = *stop
	}
	return tf, sf
}

func clampConfidence(c float64) int {
	if math.IsNaN(c) {
		return DefaultConfidence
	}
	// Some providers answer a fraction; a whole 1 is already a percentage.
	if c > 0 && c < 1 {
		c *= 100
	}
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return int(math.Round(c))
}

func defaultIndicators(rec models.Recommendation) []models.TechnicalIndicator {
	sig := string(rec)
	switch rec {
	case models.RecommendationBuy:
		return []models.TechnicalIndicator{
			{Name: "RSI", Value: "58", Signal: sig},
			{Name: "MACD", Value: "Cruzamento de alta", Signal: sig},
			{Name: "Volume", Value: "Acima da média", Signal: sig},
		}
	case models.RecommendationSell:
		return []models.TechnicalIndicator{
			{Name: "RSI", Value: "71", Signal: sig},
			{Name: "MACD", Value: "Cruzamento de baixa", Signal: sig},
			{Name: "Volume", Value: "Distribuição", Signal: sig},
		}
	default:
		return []models.TechnicalIndicator{
			{Name: "RSI", Value: "50", Signal: sig},
			{Name: "MACD", Value: "Neutro", Signal: sig},
			{Name: "Volume", Value: "Médio", Signal: sig},
		}
	}
}

func defaultRisk(target, stop float64, quote *decimal.Decimal) *models.RiskManagement {
	rr := "1:2"
	if quote != nil && quote.IsPositive() {
		entry, _ := quote.Float64()
		risk := math.Abs(entry - stop)
		reward := math.Abs(target - entry)
		if risk > 0 {
			rr = fmt.Sprintf("1:%.1f", reward/risk)
		}
	}
	return &models.RiskManagement{PositionSize: "2% do capital", RiskReward: rr, MaxLoss: "1% do capital"}
}

func actionLabel(r models.Recommendation) string {
	switch r {
	case models.RecommendationBuy:
		return "compra"
	case models.RecommendationSell:
		return "venda"
	}
	return "espera"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
