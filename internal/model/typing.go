package model

import "time"

// TypingStatus: эфемерный флаг «печатает» для пары (матч, пользователь).
type TypingStatus struct {
	MatchID   string    `json:"match_id"`
	UserID    string    `json:"user_id"`
	Typing    bool      `json:"typing"`
	UpdatedAt time.Time `json:"updated_at"`
}
