package model

import "time"

// DeletedMarker заменяет текст сообщения, удалённого для всех.
const DeletedMarker = "This message was deleted"

// ImagePreview: текст последнего сообщения в списке, если сообщение только с фото.
const ImagePreview = "📷 Photo"

// ReplyRef: ссылка на сообщение, на которое отвечают.
type ReplyRef struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	SenderID string `json:"sender_id"`
}

type Message struct {
	ID        string     `json:"id"`
	MatchID   string     `json:"match_id"`
	SenderID  string     `json:"sender_id"`
	Text      string     `json:"text"`
	ImageURL  string     `json:"image_url,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Read      bool       `json:"read"`
	Edited    bool       `json:"edited,omitempty"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	ReplyTo   *ReplyRef  `json:"reply_to,omitempty"`
}

// IsText: сообщение без вложения (только такие можно редактировать).
func (m *Message) IsText() bool {
	return m.ImageURL == "" && m.Text != ""
}

// Tombstone превращает сообщение в необратимую заглушку удаления.
func (m *Message) Tombstone() {
	m.Text = DeletedMarker
	m.ImageURL = ""
	m.ReplyTo = nil
	m.Edited = false
	m.EditedAt = nil
	m.Deleted = true
}

// Preview: текст для поля last_message матча.
func (m *Message) Preview() string {
	if m.Text != "" {
		return m.Text
	}
	if m.ImageURL != "" {
		return ImagePreview
	}
	return ""
}
