// Package app wires shared HTTP routes for both local and Lambda execution.
package app

import (
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/tickrify1/tickrify.com-sub000/auth"
)

// NewRouter builds the shared HTTP router for both local and Lambda execution.
func NewRouter(s *Server) (*gin.Engine, error) {
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	registerRoutes(router, s)
	return router, nil
}

func registerRoutes(router *gin.Engine, s *Server) {
	router.GET("/health", Health)
	router.GET("/api/plans", s.Plans)
	router.GET("/api/config", s.PublicConfig)
	router.Any("/api/checkout", s.Checkout)
	router.POST("/api/webhooks/stripe", s.StripeWebhook)
	router.POST("/api/auth/login", s.Login)
	router.POST("/api/auth/register", s.Register)
	router.GET("/api/auth/google", s.GoogleAuth)
	router.POST("/api/billing/pending", s.SavePendingPrice)

	protected := router.Group("/")
	protected.Use(auth.Middleware(s.verifier, auth.MiddlewareConfig{
		DisableAuth:     s.cfg.Auth.Disabled,
		AllowQueryToken: true,
		OnAuthenticated: func(c *gin.Context, claims *auth.Claims) {
			if err := UpsertUserFromClaims(c.Request.Context(), s.identity, claims); err != nil {
				log.Printf("user upsert failed user=%s err=%v", claims.Subject, err)
			}
		},
	}))
	protected.GET("/me", s.Me)
	protected.POST("/api/auth/logout", s.Logout)
	protected.PUT("/api/auth/profile", s.UpdateProfile)
	protected.GET("/api/subscription", s.GetSubscription)
	protected.POST("/api/subscription/switch", s.SwitchPlan)
	protected.POST("/api/billing/create-checkout-session", s.CreateCheckoutSession)
	protected.POST("/api/billing/portal-session", s.CreatePortalSession)
	protected.POST("/api/billing/resume", s.ResumeCheckout)
	protected.POST("/api/analyze", s.Analyze)
	protected.GET("/api/analyses", s.ListAnalyses)
	protected.GET("/api/signals", s.ListSignals)
	protected.GET("/api/performance", s.GetPerformance)
	protected.GET("/api/usage", s.GetUsage)
	protected.GET("/api/events/ws", s.EventsSocket)
}
