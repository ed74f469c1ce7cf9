package model

import "time"

// CheckoutMapping связывает идентификатор покупателя в Whop с пользователем приложения,
// чтобы асинхронный вебхук оплаты нашёл, кому начислить подписку.
type CheckoutMapping struct {
	WhopUserID  string    `json:"whopUserId"`
	FirebaseUID string    `json:"firebaseUid"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Subscription: запись о подписке пользователя (дополняется, а не заменяется).
type Subscription struct {
	UserID          string    `json:"user_id"`
	WhopUserID      string    `json:"whop_user_id"`
	PendingCheckout bool      `json:"pending_checkout"`
	UpdatedAt       time.Time `json:"updated_at"`
}
