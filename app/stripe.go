package app

import (
	"context"
	"errors"
	"log"

	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"

	"github.com/tickrify1/tickrify.com-sub000/app/config"
)

var errStripeNotConfigured = errors.New("stripe secret key not configured")

// StripeAPI is the slice of the Stripe SDK the handlers call.
type StripeAPI interface {
	NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
	NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error)
	Configured() bool
}

type liveStripe struct {
	configured bool
}

func (l liveStripe) NewCheckoutSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (l liveStripe) NewPortalSession(params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return portal.New(params)
}

func (l liveStripe) NewCustomer(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return customer.New(params)
}

func (l liveStripe) Configured() bool { return l.configured }

// InitStripe wires the Stripe API key and returns the SDK client.
func InitStripe(cfg config.StripeConfig) StripeAPI {
	stripe.Key = cfg.SecretKey
	if cfg.SecretKey == "" {
		log.Println("level=warn component=bootstrap msg=\"STRIPE_SECRET_KEY not set; checkout disabled\"")
	}
	return liveStripe{configured: cfg.SecretKey != ""}
}

// ensureStripeCustomer finds or creates a Stripe Customer for the given user
// and links it to the user's subscription record.
func (s *Server) ensureStripeCustomer(ctx context.Context, userID, email, name string) (string, error) {
	if userID == "" {
		return "", errors.New("missing user id")
	}
	existing, err := s.billing.CustomerID(ctx, userID)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}
	if !s.stripe.Configured() {
		return "", errStripeNotConfigured
	}

	params := &stripe.CustomerParams{
		Metadata: map[string]string{
			"user_id": userID,
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	cust, err := s.stripe.NewCustomer(params)
	if err != nil {
		return "", err
	}
	if err := s.billing.LinkCustomer(ctx, userID, cust.ID); err != nil {
		return "", err
	}
	log.Printf("stripe customer created user=%s customer=%s", userID, cust.ID)
	return cust.ID, nil
}
