package model

import (
	"encoding/json"
	"time"
)

type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusConnecting CallStatus = "connecting"
	CallStatusOngoing    CallStatus = "ongoing"
	CallStatusEnded      CallStatus = "ended"
	CallStatusDeclined   CallStatus = "declined"
	CallStatusMissed     CallStatus = "missed"
)

// Terminal: звонок завершён и больше не меняет статус.
func (s CallStatus) Terminal() bool {
	return s == CallStatusEnded || s == CallStatusDeclined || s == CallStatusMissed
}

// SessionDescription: непрозрачный SDP (offer/answer) от WebRTC.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type Call struct {
	ID          string              `json:"id"`
	MatchID     string              `json:"match_id"`
	CallerID    string              `json:"caller_id"`
	CalleeID    string              `json:"callee_id"`
	CallerName  string              `json:"caller_name"`
	CallerPhoto string              `json:"caller_photo,omitempty"`
	Offer       *SessionDescription `json:"offer,omitempty"`
	Answer      *SessionDescription `json:"answer,omitempty"`
	Status      CallStatus          `json:"status"`
	EndReason   string              `json:"end_reason,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	AnsweredAt  *time.Time          `json:"answered_at,omitempty"`
	EndedAt     *time.Time          `json:"ended_at,omitempty"`
}

// HasUser: userID звонит или принимает звонок.
func (c *Call) HasUser(userID string) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// ICECandidate: сетевой кандидат, найденный одной из сторон. Candidate хранится как есть (RTCIceCandidateInit).
type ICECandidate struct {
	ID            string          `json:"id"`
	CallID        string          `json:"call_id"`
	ContributorID string          `json:"contributor_id"`
	Candidate     json.RawMessage `json:"candidate"`
	CreatedAt     time.Time       `json:"created_at"`
}
