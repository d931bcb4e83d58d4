package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/tickrify1/tickrify.com-sub000/app/billing"
	"github.com/tickrify1/tickrify.com-sub000/auth"
)

type checkoutRequest struct {
	PriceID       string            `json:"price_id"`
	Mode          string            `json:"mode"`
	SuccessURL    string            `json:"success_url"`
	CancelURL     string            `json:"cancel_url"`
	CustomerEmail string            `json:"customer_email"`
	CustomerName  string            `json:"customer_name"`
	Metadata      map[string]string `json:"metadata"`
}

// Checkout creates a Checkout Session from a fully specified request.
func (s *Server) Checkout(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}
	if !s.stripe.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stripe not configured"})
		return
	}
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if req.PriceID == "" || req.SuccessURL == "" || req.CancelURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price_id, success_url and cancel_url are required"})
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = string(stripe.CheckoutSessionModeSubscription)
	}
	metadata := map[string]string{}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["price_id"] = req.PriceID
	if req.CustomerName != "" {
		metadata["customer_name"] = req.CustomerName
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		Metadata:   metadata,
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	if userID := metadata["user_id"]; userID != "" {
		params.ClientReferenceID = stripe.String(userID)
	}
	if mode == string(stripe.CheckoutSessionModeSubscription) {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	}

	sess, err := s.stripe.NewCheckoutSession(params)
	if err != nil {
		log.Printf("stripe checkout session failed price=%s err=%v", req.PriceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "url": sess.URL})
}

type billingCheckoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckoutSession starts a subscription checkout for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req billingCheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	if req.PriceID == "" {
		req.PriceID = s.cfg.Stripe.PriceIDTrader
	}
	s.startUserCheckout(c, claims, req.PriceID)
}

func (s *Server) startUserCheckout(c *gin.Context, claims *auth.Claims, priceID string) {
	if !s.stripe.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	if _, err := s.billing.Catalog().PlanTypeForPrice(priceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price"})
		return
	}

	stripeCustomerID, err := s.ensureStripeCustomer(c.Request.Context(), claims.Subject, claims.Email, claims.Name)
	if err != nil {
		log.Printf("ensureStripeCustomer failed user=%s: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	frontendURL := trimURL(s.cfg.Stripe.FrontendURL)
	metadata := map[string]string{"user_id": claims.Subject, "price_id": priceID}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(stripeCustomerID),
		ClientReferenceID: stripe.String(claims.Subject),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:       stripe.String(frontendURL + "/dashboard?checkout=success&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:        stripe.String(frontendURL + "/pricing?checkout=cancel"),
		Metadata:         metadata,
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata},
	}

	sess, err := s.stripe.NewCheckoutSession(params)
	if err != nil {
		log.Printf("stripe checkout session failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID, "url": sess.URL})
}

// CreatePortalSession creates a Stripe Customer Portal session for the authenticated user.
func (s *Server) CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if !s.stripe.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}
	customerID, err := s.billing.CustomerID(c.Request.Context(), claims.Subject)
	if err != nil {
		log.Printf("portal lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if customerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(trimURL(s.cfg.Stripe.FrontendURL) + "/dashboard"),
	}
	sess, err := s.stripe.NewPortalSession(params)
	if err != nil {
		log.Printf("stripe portal session failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

type pendingPriceRequest struct {
	ClientID string `json:"client_id"`
	PriceID  string `json:"price_id"`
}

// SavePendingPrice remembers a plan chosen before login.
func (s *Server) SavePendingPrice(c *gin.Context) {
	var req pendingPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if _, err := s.billing.Catalog().PlanTypeForPrice(req.PriceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price"})
		return
	}
	if err := s.pending.Put(c.Request.Context(), req.ClientID, req.PriceID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}

type resumeRequest struct {
	ClientID string `json:"client_id"`
}

// ResumeCheckout consumes the pending price once and opens checkout with it.
func (s *Server) ResumeCheckout(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var req resumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = claims.Subject
	}
	priceID, found := s.pending.Take(c.Request.Context(), clientID)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending checkout"})
		return
	}
	log.Printf("resuming checkout user=%s price=%s", claims.Subject, priceID)
	s.startUserCheckout(c, claims, priceID)
}

// StripeWebhook verifies the signature and applies subscription lifecycle events.
func (s *Server) StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		log.Printf("stripe webhook read failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	endpointSecret := s.cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		log.Printf("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		log.Printf("stripe webhook signature failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("stripe session unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		userID := sess.ClientReferenceID
		if userID == "" {
			userID = sess.Metadata["user_id"]
		}
		priceID := sess.Metadata["price_id"]
		if userID == "" || priceID == "" {
			log.Printf("stripe session missing user or price session=%s", sess.ID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing user or price"})
			return
		}
		customerID, subscriptionID := "", ""
		if sess.Customer != nil {
			customerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			subscriptionID = sess.Subscription.ID
		}
		if _, err := s.billing.Activate(ctx, userID, priceID, customerID, subscriptionID); err != nil {
			log.Printf("stripe plan upgrade failed user=%s err=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscription"})
			return
		}
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		in := billing.StripeSubscription{
			ID:     sub.ID,
			Status: string(sub.Status),
		}
		if sub.Customer != nil {
			in.CustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			in.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.CurrentPeriodStart > 0 {
			in.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0)
		}
		if sub.CurrentPeriodEnd > 0 {
			in.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0)
		}
		if _, err := s.billing.SyncFromStripe(ctx, in); err != nil {
			if !s.ignorableWebhookError(c, err, in.CustomerID) {
				return
			}
		}
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			log.Printf("stripe subscription unmarshal failed: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		customerID := ""
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		if _, err := s.billing.CancelByCustomer(ctx, customerID); err != nil {
			if !s.ignorableWebhookError(c, err, customerID) {
				return
			}
		}
	default:
		// Intentionally ignore unhandled events.
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "type": event.Type})
}

// ignorableWebhookError answers 500 for retryable failures. Unknown customers
// and prices are acknowledged so Stripe stops retrying.
func (s *Server) ignorableWebhookError(c *gin.Context, err error, customerID string) bool {
	if errors.Is(err, billing.ErrCustomerNotFound) || errors.Is(err, billing.ErrUnknownPrice) {
		log.Printf("stripe webhook ignored customer=%s err=%v", customerID, err)
		return true
	}
	log.Printf("stripe subscription sync failed customer=%s err=%v", customerID, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update subscription"})
	return false
}
