package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

var ErrMalformedResponse = errors.New("malformed analysis response")

// UpstreamKind tags which response schema an analyzer produced.
type UpstreamKind int

const (
	KindEnglish UpstreamKind = iota + 1
	KindPortuguese
	KindDecision
)

// EnglishResult is the {recommendation, confidence, ...} schema.
type EnglishResult struct {
	Symbol              string                      `json:"symbol,omitempty"`
	Recommendation      string                      `json:"recommendation"`
	Confidence          *float64                    `json:"confidence,omitempty"`
	Reasoning           string                      `json:"reasoning"`
	TargetPrice         *float64                    `json:"targetPrice,omitempty"`
	StopLoss            *float64                    `json:"stopLoss,omitempty"`
	Timeframe           string                      `json:"timeframe,omitempty"`
	TechnicalIndicators []models.TechnicalIndicator `json:"technicalIndicators,omitempty"`
	RiskManagement      *models.RiskManagement      `json:"riskManagement,omitempty"`
}

// PortugueseResult is the {decisao, confianca_percentual, justificativa_decisao} schema.
type PortugueseResult struct {
	Decisao              string   `json:"decisao"`
	ConfiancaPercentual  *float64 `json:"confianca_percentual,omitempty"`
	JustificativaDecisao string   `json:"justificativa_decisao"`
}

// DecisionResult is the analyze-chart endpoint's {acao, justificativa} schema.
type DecisionResult struct {
	Acao          string `json:"acao"`
	Justificativa string `json:"justificativa"`
}

// Upstream holds exactly one of the three schemas, selected by Kind.
type Upstream struct {
	Kind       UpstreamKind
	English    *EnglishResult
	Portuguese *PortugueseResult
	Decision   *DecisionResult
}

func FromEnglish(r EnglishResult) Upstream       { return Upstream{Kind: KindEnglish, English: &r} }
func FromPortuguese(r PortugueseResult) Upstream { return Upstream{Kind: KindPortuguese, Portuguese: &r} }
func FromDecision(r DecisionResult) Upstream     { return Upstream{Kind: KindDecision, Decision: &r} }

// ParseUpstream detects the schema of body by its discriminating field.
func ParseUpstream(body []byte) (Upstream, error) {
	body = []byte(stripCodeFence(string(body)))
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Upstream{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case fields["acao"] != nil:
		var r DecisionResult
		if err := json.Unmarshal(body, &r); err != nil {
			return Upstream{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return FromDecision(r), nil
	case fields["decisao"] != nil:
		var r PortugueseResult
		if err := json.Unmarshal(body, &r); err != nil {
			return Upstream{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return FromPortuguese(r), nil
	case fields["recommendation"] != nil:
		var r EnglishResult
		if err := json.Unmarshal(body, &r); err != nil {
			return Upstream{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		return FromEnglish(r), nil
	}
	return Upstream{}, fmt.Errorf("%w: no recommendation field", ErrMalformedResponse)
}

// stripCodeFence removes a surrounding ```json fence that chat models like to add.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
