package analysis

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// GeminiOpenAIBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

const visionSystemPrompt = `Você é um analista técnico profissional de criptomoedas e ações.
Analise o gráfico enviado e responda SOMENTE com um objeto JSON neste formato:
{"symbol": string, "recommendation": "BUY"|"SELL"|"HOLD", "confidence": 0-100,
"reasoning": string em português, "targetPrice": number, "stopLoss": number, "timeframe": string,
"technicalIndicators": [{"name": string, "value": string, "signal": "BUY"|"SELL"|"HOLD"}],
"riskManagement": {"positionSize": string, "riskReward": string, "maxLoss": string}}`

// Generator is the part of an eino chat model the vision analyzer uses.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// VisionAnalyzer asks a multimodal chat model to read the chart.
type VisionAnalyzer struct {
	chat Generator
}

func NewVisionAnalyzer(chat Generator) *VisionAnalyzer {
	return &VisionAnalyzer{chat: chat}
}

// NewOpenAIChat builds an eino chat model. baseURL is empty for OpenAI itself.
func NewOpenAIChat(ctx context.Context, baseURL, apiKey, modelName string) (*openai.ChatModel, error) {
	maxTokens := 1024
	temperature := float32(0.2)
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Model:       modelName,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	})
}

func (v *VisionAnalyzer) Analyze(ctx context.Context, req Request) (Upstream, error) {
	prompt := "Analise este gráfico."
	if req.Symbol != "" {
		prompt = fmt.Sprintf("Analise este gráfico de %s.", req.Symbol)
	}
	messages := []*schema.Message{
		schema.SystemMessage(visionSystemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: prompt},
				{
					Type: schema.ChatMessagePartTypeImageURL,
					ImageURL: &schema.ChatMessageImageURL{
						URL:    "data:" + req.MIMEType() + ";base64," + req.ImageBase64,
						Detail: schema.ImageURLDetailHigh,
					},
				},
			},
		},
	}
	out, err := v.chat.Generate(ctx, messages)
	if err != nil {
		return Upstream{}, fmt.Errorf("vision model: %w", err)
	}
	if out == nil || out.Content == "" {
		return Upstream{}, fmt.Errorf("%w: empty model reply", ErrMalformedResponse)
	}
	return ParseUpstream([]byte(out.Content))
}
