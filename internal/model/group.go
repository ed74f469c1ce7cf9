package model

import "time"

// Group: групповой чат с администратором (создателем) и заявками на вступление.
type Group struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Description     string     `json:"description"`
	PhotoURL        string     `json:"photo_url,omitempty"`
	CreatorID       string     `json:"creator_id"`
	Members         []string   `json:"members"`
	PendingMembers  []string   `json:"pending_members"`
	IsPrivate       bool       `json:"is_private"`
	LastMessage     string     `json:"last_message,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	Deleted         bool       `json:"deleted,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (g *Group) IsMember(userID string) bool {
	return contains(g.Members, userID)
}

func (g *Group) IsPending(userID string) bool {
	return contains(g.PendingMembers, userID)
}

type GroupMessage struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	SenderID  string    `json:"sender_id"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Deleted   bool      `json:"deleted,omitempty"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
