package billing

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tickrify1/tickrify.com-sub000/app/events"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

// Service resolves a user's plan. A remote record wins over the local one,
// and a missing or inactive record means the free plan.
type Service struct {
	catalog *Catalog
	local   SubscriptionStore
	remote  SubscriptionStore
	events  events.Publisher
	now     func() time.Time
}

// NewService builds a Service. remote may be nil.
func NewService(catalog *Catalog, local, remote SubscriptionStore, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{catalog: catalog, local: local, remote: remote, events: pub, now: time.Now}
}

func (s *Service) Catalog() *Catalog { return s.catalog }

// Subscription returns the effective record, or nil.
func (s *Service) Subscription(ctx context.Context, userID string) (*models.SubscriptionData, error) {
	if s.remote != nil {
		sub, err := s.remote.Get(ctx, userID)
		if err != nil {
			log.Printf("subscription remote read failed user=%s err=%v", userID, err)
		} else if sub != nil {
			return sub, nil
		}
	}
	return s.local.Get(ctx, userID)
}

func (s *Service) GetPlanType(ctx context.Context, userID string) (models.PlanType, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return models.PlanFree, err
	}
	return s.planTypeOf(sub), nil
}

func (s *Service) planTypeOf(sub *models.SubscriptionData) models.PlanType {
	if sub == nil || !sub.IsActive {
		return models.PlanFree
	}
	if sub.PlanType.Valid() {
		return sub.PlanType
	}
	if t, err := s.catalog.PlanTypeForPrice(sub.PriceID); err == nil {
		return t
	}
	return models.PlanFree
}

// GetCurrentPlan returns the catalog plan of the active record, or nil when there is none.
func (s *Service) GetCurrentPlan(ctx context.Context, userID string) (*models.Plan, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.IsActive {
		return nil, nil
	}
	t, err := s.catalog.PlanTypeForPrice(sub.PriceID)
	if err != nil {
		t = s.planTypeOf(sub)
	}
	plan := s.catalog.Plan(t)
	return &plan, nil
}

func (s *Service) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.IsActive, nil
}

// Limit returns the plan tier and monthly cap of userID.
func (s *Service) Limit(ctx context.Context, userID string) (models.PlanType, int, error) {
	t, err := s.GetPlanType(ctx, userID)
	return t, s.catalog.Limit(t), err
}

// SwitchPlan activates priceID for one month. A nil priceID cancels to free.
func (s *Service) SwitchPlan(ctx context.Context, userID string, priceID *string) (models.SubscriptionData, error) {
	prev, err := s.Subscription(ctx, userID)
	if err != nil {
		return models.SubscriptionData{}, err
	}
	now := s.now().UTC()

	var next models.SubscriptionData
	if prev != nil {
		next.StripeCustomerID = prev.StripeCustomerID
		next.StripeSubscriptionID = prev.StripeSubscriptionID
	}
	if priceID == nil {
		next.PlanType = models.PlanFree
		next.IsActive = false
		next.EndDate = &now
		if prev != nil {
			next.StartDate = prev.StartDate
		}
	} else {
		t, err := s.catalog.PlanTypeForPrice(*priceID)
		if err != nil {
			return models.SubscriptionData{}, fmt.Errorf("switch plan %q: %w", *priceID, err)
		}
		end := now.AddDate(0, 1, 0)
		next.PriceID = *priceID
		next.PlanType = t
		next.IsActive = true
		next.StartDate = &now
		next.EndDate = &end
	}

	if err := s.put(ctx, userID, next); err != nil {
		return models.SubscriptionData{}, err
	}
	log.Printf("subscription switched user=%s plan=%s active=%t", userID, next.PlanType, next.IsActive)
	return next, nil
}

// Activate records a completed checkout.
func (s *Service) Activate(ctx context.Context, userID, priceID, customerID, subscriptionID string) (models.SubscriptionData, error) {
	t, err := s.catalog.PlanTypeForPrice(priceID)
	if err != nil {
		return models.SubscriptionData{}, fmt.Errorf("activate %q: %w", priceID, err)
	}
	now := s.now().UTC()
	end := now.AddDate(0, 1, 0)
	sub := models.SubscriptionData{
		PriceID:              priceID,
		PlanType:             t,
		IsActive:             true,
		StartDate:            &now,
		EndDate:              &end,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: subscriptionID,
	}
	if err := s.put(ctx, userID, sub); err != nil {
		return models.SubscriptionData{}, err
	}
	log.Printf("subscription activated user=%s plan=%s customer=%s", userID, t, customerID)
	return sub, nil
}

// StripeSubscription is the subset of a Stripe subscription object the service needs.
type StripeSubscription struct {
	ID          string
	CustomerID  string
	Status      string
	PriceID     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// SyncFromStripe applies a customer.subscription.updated payload.
func (s *Service) SyncFromStripe(ctx context.Context, in StripeSubscription) (models.SubscriptionData, error) {
	userID, err := s.findUserByCustomer(ctx, in.CustomerID)
	if err != nil {
		return models.SubscriptionData{}, err
	}
	switch in.Status {
	case "active", "trialing", "past_due":
	default:
		return s.cancel(ctx, userID, in.CustomerID)
	}
	t, err := s.catalog.PlanTypeForPrice(in.PriceID)
	if err != nil {
		return models.SubscriptionData{}, fmt.Errorf("sync %q: %w", in.PriceID, err)
	}
	sub := models.SubscriptionData{
		PriceID:              in.PriceID,
		PlanType:             t,
		IsActive:             true,
		StripeCustomerID:     in.CustomerID,
		StripeSubscriptionID: in.ID,
	}
	if !in.PeriodStart.IsZero() {
		start := in.PeriodStart.UTC()
		sub.StartDate = &start
	}
	if !in.PeriodEnd.IsZero() {
		end := in.PeriodEnd.UTC()
		sub.EndDate = &end
	}
	if err := s.put(ctx, userID, sub); err != nil {
		return models.SubscriptionData{}, err
	}
	return sub, nil
}

// CancelByCustomer downgrades the user linked to customerID.
func (s *Service) CancelByCustomer(ctx context.Context, customerID string) (models.SubscriptionData, error) {
	userID, err := s.findUserByCustomer(ctx, customerID)
	if err != nil {
		return models.SubscriptionData{}, err
	}
	return s.cancel(ctx, userID, customerID)
}

func (s *Service) cancel(ctx context.Context, userID, customerID string) (models.SubscriptionData, error) {
	now := s.now().UTC()
	sub := models.SubscriptionData{
		PlanType:         models.PlanFree,
		IsActive:         false,
		EndDate:          &now,
		StripeCustomerID: customerID,
	}
	if err := s.put(ctx, userID, sub); err != nil {
		return models.SubscriptionData{}, err
	}
	log.Printf("subscription canceled user=%s customer=%s", userID, customerID)
	return sub, nil
}

// CustomerID returns the linked Stripe customer, or "".
func (s *Service) CustomerID(ctx context.Context, userID string) (string, error) {
	sub, err := s.Subscription(ctx, userID)
	if err != nil || sub == nil {
		return "", err
	}
	return sub.StripeCustomerID, nil
}

// LinkCustomer stores customerID on the user's record without changing the plan.
func (s *Service) LinkCustomer(ctx context.Context, userID, customerID string) error {
	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return err
	}
	next := models.SubscriptionData{PlanType: models.PlanFree}
	if sub != nil {
		next = *sub
	}
	next.StripeCustomerID = customerID
	return s.write(ctx, userID, next)
}

func (s *Service) findUserByCustomer(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrCustomerNotFound
	}
	if s.remote != nil {
		userID, err := s.remote.FindUserByCustomer(ctx, customerID)
		if err == nil {
			return userID, nil
		}
		log.Printf("subscription remote customer lookup failed customer=%s err=%v", customerID, err)
	}
	return s.local.FindUserByCustomer(ctx, customerID)
}

func (s *Service) put(ctx context.Context, userID string, sub models.SubscriptionData) error {
	if err := s.write(ctx, userID, sub); err != nil {
		return err
	}
	s.events.Publish(ctx, events.Event{
		Kind:    events.KindSubscriptionUpdated,
		UserID:  userID,
		Payload: sub,
	})
	return nil
}

// write goes to the remote store when configured and falls back to local on failure.
func (s *Service) write(ctx context.Context, userID string, sub models.SubscriptionData) error {
	if s.remote != nil {
		err := s.remote.Put(ctx, userID, sub)
		if err == nil {
			return nil
		}
		log.Printf("subscription remote write failed user=%s err=%v", userID, err)
	}
	return s.local.Put(ctx, userID, sub)
}
