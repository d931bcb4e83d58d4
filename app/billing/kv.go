package billing

import (
	"context"
	"errors"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/store"
)

const keyCustomerIndex = "tickrify-stripe-customer"

// KVStore keeps subscriptions in the local key-value store.
type KVStore struct {
	backend store.Backend
}

func NewKVStore(backend store.Backend) *KVStore {
	return &KVStore{backend: backend}
}

func (s *KVStore) value(userID string) *store.Value[*models.SubscriptionData] {
	return store.Bind[*models.SubscriptionData](s.backend, store.UserKey(store.KeySubscription, userID), nil)
}

func (s *KVStore) Get(ctx context.Context, userID string) (*models.SubscriptionData, error) {
	cur := s.value(userID).Get(ctx)
	if cur == nil {
		return nil, nil
	}
	out := *cur
	return &out, nil
}

func (s *KVStore) Put(ctx context.Context, userID string, sub models.SubscriptionData) error {
	s.value(userID).Set(ctx, &sub)
	if sub.StripeCustomerID != "" {
		if err := s.backend.Save(ctx, store.UserKey(keyCustomerIndex, sub.StripeCustomerID), []byte(userID)); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) FindUserByCustomer(ctx context.Context, customerID string) (string, error) {
	b, err := s.backend.Load(ctx, store.UserKey(keyCustomerIndex, customerID))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrCustomerNotFound
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}
