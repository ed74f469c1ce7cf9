package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

type CheckoutRepository struct {
	pool *pgxpool.Pool
}

func NewCheckoutRepository(pool *pgxpool.Pool) *CheckoutRepository {
	return &CheckoutRepository{pool: pool}
}

// SavePending записывает связь whop → пользователь (перезапись по ключу whop_user_id)
// и дополняет запись подписки пользователя, не затирая остальные поля.
func (r *CheckoutRepository) SavePending(ctx context.Context, m *model.CheckoutMapping) error {
	defer logger.DeferLogDuration("checkout.SavePending", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("checkoutRepo.SavePending begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO pending_checkouts (whop_user_id, firebase_uid, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (whop_user_id) DO UPDATE SET firebase_uid = EXCLUDED.firebase_uid, created_at = EXCLUDED.created_at`,
		m.WhopUserID, m.FirebaseUID, m.CreatedAt,
	); err != nil {
		return fmt.Errorf("checkoutRepo.SavePending mapping: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO subscriptions (user_id, whop_user_id, pending_checkout, updated_at) VALUES ($1, $2, TRUE, $3)
		 ON CONFLICT (user_id) DO UPDATE SET whop_user_id = EXCLUDED.whop_user_id, pending_checkout = TRUE, updated_at = EXCLUDED.updated_at`,
		m.FirebaseUID, m.WhopUserID, m.CreatedAt,
	); err != nil {
		return fmt.Errorf("checkoutRepo.SavePending subscription: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("checkoutRepo.SavePending commit: %w", err)
	}
	return nil
}

func (r *CheckoutRepository) GetSubscription(ctx context.Context, userID string) (*model.Subscription, error) {
	defer logger.DeferLogDuration("checkout.GetSubscription", time.Now())()
	s := &model.Subscription{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, whop_user_id, pending_checkout, updated_at FROM subscriptions WHERE user_id = $1`, userID,
	).Scan(&s.UserID, &s.WhopUserID, &s.PendingCheckout, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checkoutRepo.GetSubscription: %w", err)
	}
	return s, nil
}
