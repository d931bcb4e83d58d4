package analysis

import (
	"math/rand"
	"sync"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

type template struct {
	timeframe  string
	reasoning  map[models.Recommendation]string
	indicators []string
}

var templates = []template{
	{
		timeframe: "4H",
		reasoning: map[models.Recommendation]string{
			models.RecommendationBuy:  "Rompimento de resistência com aumento de volume. Médias móveis alinhadas para alta e RSI saindo da zona neutra.",
			models.RecommendationSell: "Rejeição em resistência importante com divergência baixista no RSI. Volume decrescente na última pernada de alta.",
		},
		indicators: []string{"RSI", "MACD", "Volume"},
	},
	{
		timeframe: "1H",
		reasoning: map[models.Recommendation]string{
			models.RecommendationBuy:  "Pullback na média de 21 períodos com candle de reversão. Estrutura de topos e fundos ascendentes preservada.",
			models.RecommendationSell: "Perda da média de 21 períodos e reteste sem força. Estrutura de topos e fundos descendentes em formação.",
		},
		indicators: []string{"MM21", "Estocástico", "Volume"},
	},
	{
		timeframe: "1D",
		reasoning: map[models.Recommendation]string{
			models.RecommendationBuy:  "Padrão de fundo duplo confirmado com fechamento acima da linha de pescoço. Bandas de Bollinger se expandindo.",
			models.RecommendationSell: "Padrão de topo duplo confirmado com fechamento abaixo da linha de pescoço. Bandas de Bollinger se expandindo para baixo.",
		},
		indicators: []string{"Bollinger", "RSI", "OBV"},
	},
	{
		timeframe: "15M",
		reasoning: map[models.Recommendation]string{
			models.RecommendationBuy:  "Acumulação lateral seguida de rompimento com volume. MACD cruzando acima da linha de sinal.",
			models.RecommendationSell: "Distribuição lateral seguida de rompimento para baixo. MACD cruzando abaixo da linha de sinal.",
		},
		indicators: []string{"MACD", "VWAP", "Volume"},
	},
}

// Fallback synthesizes a plausible result when the analyzer is unavailable.
// The recommendation is drawn uniformly from BUY and SELL.
type Fallback struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFallback(rng *rand.Rand) *Fallback {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Fallback{rng: rng}
}

// Generate returns an English-schema result so it flows through Normalize like any other response.
func (f *Fallback) Generate(symbol string, quote float64) Upstream {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := models.RecommendationBuy
	if f.rng.Intn(2) == 1 {
		rec = models.RecommendationSell
	}
	t := templates[f.rng.Intn(len(templates))]

	base := quote
	if base <= 0 {
		base = DefaultTargetPrice
	}
	// up to ±5% drift around the base price
	price := base * (1 + (f.rng.Float64()-0.5)*0.1)
	var target, stop float64
	if rec == models.RecommendationBuy {
		target = price * (1 + 0.02 + f.rng.Float64()*0.04)
		stop = price * (1 - 0.01 - f.rng.Float64()*0.02)
	} else {
		target = price * (1 - 0.02 - f.rng.Float64()*0.04)
		stop = price * (1 + 0.01 + f.rng.Float64()*0.02)
	}
	confidence := float64(70 + f.rng.Intn(23))

	indicators := make([]models.TechnicalIndicator, 0, len(t.indicators))
	for _, name := range t.indicators {
		indicators = append(indicators, models.TechnicalIndicator{Name: name, Value: indicatorValue(name, rec), Signal: string(rec)})
	}

	target, stop = round2(target), round2(stop)
	return FromEnglish(EnglishResult{
		Symbol:              symbol,
		Recommendation:      string(rec),
		Confidence:          &confidence,
		Reasoning:           t.reasoning[rec],
		TargetPrice:         &target,
		StopLoss:            &stop,
		Timeframe:           t.timeframe,
		TechnicalIndicators: indicators,
	})
}

func indicatorValue(name string, rec models.Recommendation) string {
	up := rec == models.RecommendationBuy
	switch name {
	case "RSI":
		if up {
			return "62"
		}
		return "68"
	case "Volume", "OBV":
		if up {
			return "Crescente"
		}
		return "Decrescente"
	}
	if up {
		return "Alta"
	}
	return "Baixa"
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
