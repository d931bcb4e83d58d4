package analysis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Analyzer turns a chart image into one of the upstream schemas.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Upstream, error)
}

// EndpointAnalyzer posts the image to the analyze-chart service.
type EndpointAnalyzer struct {
	client *resty.Client
}

func NewEndpointAnalyzer(baseURL string, timeout time.Duration) *EndpointAnalyzer {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	return &EndpointAnalyzer{client: client}
}

type analyzeChartRequest struct {
	ImageBase64 string `json:"image_base64"`
	UserID      string `json:"user_id"`
}

func (e *EndpointAnalyzer) Analyze(ctx context.Context, req Request) (Upstream, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(analyzeChartRequest{ImageBase64: req.ImageBase64, UserID: req.UserID}).
		Post("/api/analyze-chart")
	if err != nil {
		return Upstream{}, fmt.Errorf("analyze-chart request: %w", err)
	}
	if resp.IsError() {
		return Upstream{}, fmt.Errorf("analyze-chart status %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	u, err := ParseUpstream(resp.Body())
	if err != nil {
		return Upstream{}, err
	}
	log.Printf("analyze-chart ok user=%s kind=%d", req.UserID, u.Kind)
	return u, nil
}

// FallbackOnly always fails so the orchestrator uses the template generator.
type FallbackOnly struct{}

func (FallbackOnly) Analyze(context.Context, Request) (Upstream, error) {
	return Upstream{}, fmt.Errorf("no analysis provider configured")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
