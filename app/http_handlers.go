package app

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tickrify1/tickrify.com-sub000/app/analysis"
	"github.com/tickrify1/tickrify.com-sub000/app/billing"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
	"github.com/tickrify1/tickrify.com-sub000/auth"
)

type analyzeRequest struct {
	Symbol      string `json:"symbol"`
	ImageBase64 string `json:"image_base64"`
}

// Analyze runs one chart analysis for the caller.
func (s *Server) Analyze(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result, err := s.orchestrator.Analyze(c.Request.Context(), analysis.Request{
		UserID:      claims.Subject,
		Email:       claims.Email,
		Symbol:      req.Symbol,
		ImageBase64: req.ImageBase64,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, analysis.ErrUsageLimitExceeded):
		planType, limit, _ := s.billing.Limit(c.Request.Context(), claims.Subject)
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error": "limit exceeded",
			"plan":  planType,
			"limit": limit,
		})
	case errors.Is(err, analysis.ErrMissingImage), errors.Is(err, analysis.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, analysis.ErrAnalysisInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("analyze failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
	}
}

func (s *Server) ListAnalyses(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	list, err := s.history.Analyses(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("list analyses failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load analyses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": list, "state": s.orchestrator.State(claims.Subject)})
}

func (s *Server) ListSignals(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	list, err := s.history.Signals(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("list signals failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load signals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": list})
}

func (s *Server) GetPerformance(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	c.JSON(http.StatusOK, s.performance.Get(c.Request.Context(), claims.Subject))
}

func (s *Server) GetUsage(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	ctx := c.Request.Context()
	planType, limit, err := s.billing.Limit(ctx, claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan"})
		return
	}
	cur, err := s.usage.Current(ctx, claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"plan":       planType,
		"count":      cur.Count,
		"month":      cur.Month,
		"year":       cur.Year,
		"limit":      limitOrNil(limit),
		"remaining":  limitOrNil(usage.Remaining(cur.Count, limit)),
		"canAnalyze": usage.CanAnalyze(cur.Count, limit),
	})
}

func (s *Server) GetSubscription(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	ctx := c.Request.Context()
	sub, err := s.billing.Subscription(ctx, claims.Subject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load subscription"})
		return
	}
	planType, _ := s.billing.GetPlanType(ctx, claims.Subject)
	plan, _ := s.billing.GetCurrentPlan(ctx, claims.Subject)
	active, _ := s.billing.HasActiveSubscription(ctx, claims.Subject)
	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"planType":     planType,
		"plan":         plan,
		"isActive":     active,
	})
}

type switchPlanRequest struct {
	// PriceID nil cancels to the free plan.
	PriceID *string `json:"price_id"`
}

// SwitchPlan writes the subscription directly. Only available in billing test mode;
// real changes arrive through the Stripe webhook.
func (s *Server) SwitchPlan(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if !s.cfg.Stripe.TestMode {
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": "plan switching is only available in test mode"})
		return
	}
	var req switchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	sub, err := s.billing.SwitchPlan(c.Request.Context(), claims.Subject, req.PriceID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, billing.ErrUnknownPrice) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "subscription": sub})
}

func (s *Server) Plans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": s.billing.Catalog().Plans()})
}

// PublicConfig exposes the publishable keys the dashboard needs.
func (s *Server) PublicConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"stripePublishableKey": s.cfg.Stripe.PublishableKey,
		"supabaseUrl":          s.cfg.Auth.SupabaseURL,
		"supabaseAnonKey":      s.cfg.Auth.SupabaseAnonKey,
		"clerkPublishableKey":  s.cfg.Auth.ClerkPublishableKey,
		"billingTestMode":      s.cfg.Stripe.TestMode,
	})
}

// EventsSocket streams the caller's events over a websocket.
func (s *Server) EventsSocket(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if err := s.hub.Serve(c.Writer, c.Request, claims.Subject); err != nil {
		log.Printf("ws upgrade failed user=%s err=%v", claims.Subject, err)
	}
}
