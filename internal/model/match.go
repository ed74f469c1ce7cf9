package model

import "time"

// Match: разговор двух пользователей после взаимного свайпа.
// Инвариант: ровно два участника. После IsUnmatched новые сообщения запрещены, история остаётся.
type Match struct {
	ID              string                     `json:"id"`
	Users           [2]string                  `json:"users"`
	Profiles        map[string]ProfileSnapshot `json:"profiles"`
	LastMessage     string                     `json:"last_message,omitempty"`
	LastMessageTime *time.Time                 `json:"last_message_time,omitempty"`
	UnreadCount     map[string]int             `json:"unread_count"`
	IsNew           bool                       `json:"is_new"`
	IsUnmatched     bool                       `json:"is_unmatched"`
	UnmatchedBy     string                     `json:"unmatched_by,omitempty"`
	UnmatchedAt     *time.Time                 `json:"unmatched_at,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
}

// HasUser сообщает, участвует ли userID в матче.
func (m *Match) HasUser(userID string) bool {
	return m.Users[0] == userID || m.Users[1] == userID
}

// Other возвращает второго участника относительно userID.
func (m *Match) Other(userID string) string {
	if m.Users[0] == userID {
		return m.Users[1]
	}
	return m.Users[0]
}

// Counterpart возвращает снимок профиля собеседника для userID.
func (m *Match) Counterpart(userID string) ProfileSnapshot {
	return m.Profiles[m.Other(userID)]
}

// HasLastMessage: в матче уже есть переписка.
func (m *Match) HasLastMessage() bool {
	return m.LastMessage != "" || m.LastMessageTime != nil
}
