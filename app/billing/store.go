package billing

import (
	"context"
	"errors"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

var ErrCustomerNotFound = errors.New("stripe customer not linked to a user")

// SubscriptionStore persists one SubscriptionData per user.
// Get returns nil, nil when the user has no record.
type SubscriptionStore interface {
	Get(ctx context.Context, userID string) (*models.SubscriptionData, error)
	Put(ctx context.Context, userID string, sub models.SubscriptionData) error
	FindUserByCustomer(ctx context.Context, customerID string) (string, error)
}
