package service

import (
	"context"
	"strings"
	"time"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

type CheckoutService struct {
	store CheckoutStore
}

func NewCheckoutService(store CheckoutStore) *CheckoutService {
	return &CheckoutService{store: store}
}

// SavePending (save-pending-checkout) запоминает, какому пользователю принадлежит покупатель Whop.
// Ключ: whopUserId; повторный вызов перезаписывает запись.
func (s *CheckoutService) SavePending(ctx context.Context, firebaseUID, whopUserID string) (*model.CheckoutMapping, error) {
	firebaseUID = strings.TrimSpace(firebaseUID)
	whopUserID = strings.TrimSpace(whopUserID)
	if firebaseUID == "" || whopUserID == "" {
		return nil, invalid("Missing firebaseUid or whopUserId")
	}
	m := &model.CheckoutMapping{
		WhopUserID:  whopUserID,
		FirebaseUID: firebaseUID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SavePending(ctx, m); err != nil {
		return nil, err
	}
	logger.Infof("checkout: pending mapping whop=%s uid=%s", whopUserID, firebaseUID)
	return m, nil
}

// Subscription: запись подписки текущего пользователя (после вебхука оплаты или pending).
func (s *CheckoutService) Subscription(ctx context.Context, userID string) (*model.Subscription, error) {
	return s.store.GetSubscription(ctx, userID)
}
