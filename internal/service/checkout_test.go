package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
)

type memCheckout struct {
	byWhop map[string]model.CheckoutMapping
	err    error
}

func (s *memCheckout) GetSubscription(_ context.Context, userID string) (*model.Subscription, error) {
	for _, m := range s.byWhop {
		if m.FirebaseUID == userID {
			return &model.Subscription{UserID: userID, WhopUserID: m.WhopUserID, PendingCheckout: true}, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memCheckout) SavePending(_ context.Context, m *model.CheckoutMapping) error {
	if s.err != nil {
		return s.err
	}
	s.byWhop[m.WhopUserID] = *m
	return nil
}

func TestSavePendingCheckout(t *testing.T) {
	store := &memCheckout{byWhop: map[string]model.CheckoutMapping{}}
	svc := NewCheckoutService(store)
	ctx := context.Background()

	for _, in := range [][2]string{{"", "whop_1"}, {"uid_1", ""}, {" ", " "}} {
		_, err := svc.SavePending(ctx, in[0], in[1])
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "Missing firebaseUid or whopUserId", err.Error())
	}
	assert.Empty(t, store.byWhop)

	_, err := svc.SavePending(ctx, "uid_1", "whop_1")
	require.NoError(t, err)
	_, err = svc.SavePending(ctx, "uid_2", "whop_1")
	require.NoError(t, err)
	require.Len(t, store.byWhop, 1)
	assert.Equal(t, "uid_2", store.byWhop["whop_1"].FirebaseUID)

	sub, err := svc.Subscription(ctx, "uid_2")
	require.NoError(t, err)
	assert.True(t, sub.PendingCheckout)
	_, err = svc.Subscription(ctx, "uid_1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSavePendingCheckoutStoreError(t *testing.T) {
	boom := errors.New("db down")
	svc := NewCheckoutService(&memCheckout{err: boom})
	_, err := svc.SavePending(context.Background(), "uid_1", "whop_1")
	assert.ErrorIs(t, err, boom)
}
