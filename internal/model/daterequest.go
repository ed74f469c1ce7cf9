package model

import "time"

type DateStatus string

const (
	DateStatusPending   DateStatus = "pending"
	DateStatusAccepted  DateStatus = "accepted"
	DateStatusDeclined  DateStatus = "declined"
	DateStatusCancelled DateStatus = "cancelled"
)

// DateRequest: предложение свидания внутри матча.
type DateRequest struct {
	ID          string     `json:"id"`
	MatchID     string     `json:"match_id"`
	SenderID    string     `json:"sender_id"`
	Title       string     `json:"title"`
	Date        string     `json:"date"` // YYYY-MM-DD
	Time        string     `json:"time"`
	Location    string     `json:"location"`
	Description string     `json:"description,omitempty"`
	Status      DateStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CancelledBy string     `json:"cancelled_by,omitempty"`
}
