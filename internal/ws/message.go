package ws

import (
	"time"

	"github.com/frinder/internal/model"
)

type EventType string

const (
	EventMatchCreated   EventType = "match_created"
	EventMatchUpdated   EventType = "match_updated"
	EventNewMessage     EventType = "new_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventMessagesRead   EventType = "messages_read"
	EventTyping         EventType = "typing"
	EventDateRequest    EventType = "date_request"
	EventCallIncoming   EventType = "call_incoming"
	EventCallUpdated    EventType = "call_updated"
	EventICECandidate   EventType = "ice_candidate"
	EventGroupUpdated   EventType = "group_updated"
	EventGroupMessage   EventType = "group_message"
	EventError          EventType = "error"
)

// IncomingMessage is what the client sends to the server.
// Only lightweight signals go over the socket; writes use REST.
type IncomingMessage struct {
	Type    EventType `json:"type"`
	MatchID string    `json:"match_id,omitempty"`
	Typing  bool      `json:"typing,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// MessageDeletedPayload is broadcast when a message is deleted for everyone.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
	MatchID   string `json:"match_id"`
}

// TypingPayload is sent to the counterpart when typing starts or stops.
type TypingPayload struct {
	MatchID   string    `json:"match_id"`
	UserID    string    `json:"user_id"`
	Typing    bool      `json:"typing"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessagesReadPayload is sent to the sender when the counterpart opened the conversation.
type MessagesReadPayload struct {
	MatchID string `json:"match_id"`
	UserID  string `json:"user_id"`
}

// ICECandidatePayload carries a candidate to the other participant of the call.
type ICECandidatePayload struct {
	CallID    string             `json:"call_id"`
	Candidate model.ICECandidate `json:"candidate"`
}

// GroupMessagePayload is broadcast to group members.
type GroupMessagePayload struct {
	GroupID string             `json:"group_id"`
	Message model.GroupMessage `json:"message"`
}
