package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/storage"
	"github.com/frinder/internal/ws"
)

const (
	maxMessageLen   = 4000
	defaultPageSize = 200
)

type ConversationService struct {
	matches   MatchStore
	messages  MessageStore
	profiles  ProfileStore
	store     storage.Store
	pub       Publisher
	push      PushNotifier
	typingTTL time.Duration
	now       func() time.Time
}

func NewConversationService(
	matches MatchStore,
	messages MessageStore,
	profiles ProfileStore,
	store storage.Store,
	pub Publisher,
	push PushNotifier,
	typingTTL time.Duration,
) *ConversationService {
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &ConversationService{
		matches: matches, messages: messages, profiles: profiles, store: store,
		pub: pub, push: push, typingTTL: typingTTL, now: func() time.Time { return time.Now().UTC() },
	}
}

// SendInput: sendMessage(conversationId, senderId, text, imageUrl?, replyRef?).
type SendInput struct {
	Text      string `json:"text"`
	ImageURL  string `json:"image_url"`
	ReplyToID string `json:"reply_to_id"`
}

// participant загружает матч и проверяет, что userID: один из двух участников.
func (s *ConversationService) participant(ctx context.Context, userID, matchID string) (*model.Match, error) {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, ErrForbidden
	}
	return m, nil
}

// CreateMatch создаёт матч после взаимного свайпа со снимками обоих профилей.
// Повторный вызов для той же пары возвращает существующий матч.
func (s *ConversationService) CreateMatch(ctx context.Context, userID, otherID string) (*model.Match, bool, error) {
	otherID = strings.TrimSpace(otherID)
	if otherID == "" || otherID == userID {
		return nil, false, invalid("user_id of the other person is required")
	}
	existing, err := s.matches.FindByUsers(ctx, userID, otherID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	profiles := make(map[string]model.ProfileSnapshot, 2)
	for _, uid := range []string{userID, otherID} {
		p, err := s.profiles.GetByID(ctx, uid)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, invalid("profile " + uid + " does not exist")
		}
		if err != nil {
			return nil, false, err
		}
		profiles[uid] = p.Snapshot()
	}

	m := &model.Match{
		ID:          uuid.New().String(),
		Users:       [2]string{userID, otherID},
		Profiles:    profiles,
		UnreadCount: map[string]int{userID: 0, otherID: 0},
		IsNew:       true,
		CreatedAt:   s.now(),
	}
	if err := s.matches.Create(ctx, m); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// параллельный свайп второй стороны успел раньше
			existing, ferr := s.matches.FindByUsers(ctx, userID, otherID)
			if ferr != nil {
				return nil, false, ferr
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	logger.Infof("match created id=%s users=%s,%s", m.ID, userID, otherID)
	s.pub.Publish(m.Users[:], ws.EventMatchCreated, m)
	notify(s.push, otherID, "It's a match!", "You matched with "+profiles[userID].Name, map[string]string{"match_id": m.ID})
	return m, true, nil
}

func (s *ConversationService) ListMatches(ctx context.Context, userID string, unmatched bool) ([]model.Match, error) {
	list, err := s.matches.ListForUser(ctx, userID, unmatched)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Match{}
	}
	return list, nil
}

func (s *ConversationService) GetMatch(ctx context.Context, userID, matchID string) (*model.Match, error) {
	return s.participant(ctx, userID, matchID)
}

func (s *ConversationService) ListMessages(ctx context.Context, userID, matchID string, limit int) ([]model.Message, error) {
	if _, err := s.participant(ctx, userID, matchID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultPageSize
	}
	return s.messages.ListByMatch(ctx, matchID, limit)
}

// SendMessage создаёт сообщение. В разорванном матче писать нельзя никому.
func (s *ConversationService) SendMessage(ctx context.Context, userID, matchID string, in SendInput) (*model.Message, error) {
	defer logger.DeferLogDuration("conversation.SendMessage", time.Now())()
	text := strings.TrimSpace(in.Text)
	imageURL := strings.TrimSpace(in.ImageURL)
	if text == "" && imageURL == "" {
		return nil, invalid("text or image_url required")
	}
	if len([]rune(text)) > maxMessageLen {
		return nil, invalid(fmt.Sprintf("text longer than %d characters", maxMessageLen))
	}

	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	if m.IsUnmatched {
		return nil, ErrUnmatched
	}

	msg := &model.Message{
		ID:        uuid.New().String(),
		MatchID:   matchID,
		SenderID:  userID,
		Text:      text,
		ImageURL:  imageURL,
		Timestamp: s.now(),
	}
	if in.ReplyToID != "" {
		ref, err := s.messages.GetByID(ctx, in.ReplyToID)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && ref.MatchID != matchID) {
			return nil, invalid("reply_to_id does not belong to this conversation")
		}
		if err != nil {
			return nil, err
		}
		msg.ReplyTo = &model.ReplyRef{ID: ref.ID, Text: ref.Preview(), SenderID: ref.SenderID}
	}

	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}
	recipient := m.Other(userID)
	if err := s.matches.SetLastMessage(ctx, matchID, msg.Preview(), msg.Timestamp, recipient); err != nil {
		logger.Errorf("conversation.SendMessage last message match=%s: %v", matchID, err)
	}
	if err := s.store.ClearTyping(ctx, matchID, userID); err != nil {
		logger.Errorf("conversation.SendMessage clear typing match=%s: %v", matchID, err)
	}

	s.pub.Publish(m.Users[:], ws.EventNewMessage, msg)
	s.publishMatch(ctx, matchID)

	title := m.Profiles[userID].Name
	if title == "" {
		title = "New message"
	}
	notify(s.push, recipient, title, truncate(msg.Preview(), 120), map[string]string{"match_id": matchID, "message_id": msg.ID})
	return msg, nil
}

// EditMessage: правка текста. Только автор и только текстовые, неудалённые сообщения.
func (s *ConversationService) EditMessage(ctx context.Context, userID, messageID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text required")
	}
	if len([]rune(text)) > maxMessageLen {
		return nil, invalid(fmt.Sprintf("text longer than %d characters", maxMessageLen))
	}
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrForbidden
	}
	if msg.Deleted {
		return nil, ErrInvalidState
	}
	if !msg.IsText() {
		return nil, invalid("only text messages can be edited")
	}
	m, err := s.matches.GetByID(ctx, msg.MatchID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.messages.UpdateText(ctx, messageID, text, now); err != nil {
		return nil, err
	}
	msg.Text = text
	msg.Edited = true
	msg.EditedAt = &now

	s.refreshPreview(ctx, msg)
	s.pub.Publish(m.Users[:], ws.EventMessageEdited, msg)
	return msg, nil
}

// DeleteMessage удаляет для всех, оставляя необратимую заглушку. Повторное удаление ничего не меняет.
func (s *ConversationService) DeleteMessage(ctx context.Context, userID, messageID string) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, ErrForbidden
	}
	if msg.Deleted {
		return msg, nil
	}
	m, err := s.matches.GetByID(ctx, msg.MatchID)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Tombstone(ctx, messageID); err != nil {
		return nil, err
	}
	msg.Tombstone()

	s.refreshPreview(ctx, msg)
	s.pub.Publish(m.Users[:], ws.EventMessageDeleted, ws.MessageDeletedPayload{MessageID: msg.ID, MatchID: msg.MatchID})
	return msg, nil
}

// refreshPreview обновляет last_message матча, если изменено последнее сообщение.
func (s *ConversationService) refreshPreview(ctx context.Context, msg *model.Message) {
	latest, err := s.messages.Latest(ctx, msg.MatchID)
	if err != nil || latest == nil || latest.ID != msg.ID {
		return
	}
	if err := s.matches.SetPreview(ctx, msg.MatchID, msg.Preview()); err != nil {
		logger.Errorf("conversation preview match=%s: %v", msg.MatchID, err)
		return
	}
	s.publishMatch(ctx, msg.MatchID)
}

// MarkRead помечает прочитанными все сообщения собеседника и обнуляет счётчик читателя.
func (s *ConversationService) MarkRead(ctx context.Context, userID, matchID string) error {
	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return err
	}
	n, err := s.messages.MarkRead(ctx, matchID, userID)
	if err != nil {
		return err
	}
	if err := s.matches.ResetUnread(ctx, matchID, userID); err != nil {
		return err
	}
	if n > 0 {
		s.pub.Publish([]string{m.Other(userID)}, ws.EventMessagesRead, ws.MessagesReadPayload{MatchID: matchID, UserID: userID})
	}
	s.publishMatch(ctx, matchID)
	return nil
}

// Unmatch разрывает матч. История остаётся доступной для чтения.
func (s *ConversationService) Unmatch(ctx context.Context, userID, matchID string) (*model.Match, error) {
	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	if m.IsUnmatched {
		return m, nil
	}
	if err := s.matches.Unmatch(ctx, matchID, userID, s.now()); err != nil {
		return nil, err
	}
	_ = s.store.ClearTyping(ctx, matchID, m.Users[0])
	_ = s.store.ClearTyping(ctx, matchID, m.Users[1])
	logger.Infof("match unmatched id=%s by=%s", matchID, userID)
	if updated := s.publishMatch(ctx, matchID); updated != nil {
		return updated, nil
	}
	m.IsUnmatched = true
	m.UnmatchedBy = userID
	return m, nil
}

// SetTyping сохраняет флаг с TTL (или удаляет его) и сообщает собеседнику.
func (s *ConversationService) SetTyping(ctx context.Context, userID, matchID string, typing bool) error {
	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return err
	}
	if typing {
		if m.IsUnmatched {
			return ErrUnmatched
		}
		err = s.store.SetTyping(ctx, matchID, userID, s.typingTTL)
	} else {
		err = s.store.ClearTyping(ctx, matchID, userID)
	}
	if err != nil {
		return err
	}
	s.pub.Publish([]string{m.Other(userID)}, ws.EventTyping, ws.TypingPayload{
		MatchID: matchID, UserID: userID, Typing: typing, UpdatedAt: s.now(),
	})
	return nil
}

// TypingStatus: текущее состояние собеседника (для клиента, открывшего чат позже сигнала).
func (s *ConversationService) TypingStatus(ctx context.Context, userID, matchID string) (*model.TypingStatus, error) {
	m, err := s.participant(ctx, userID, matchID)
	if err != nil {
		return nil, err
	}
	other := m.Other(userID)
	on, err := s.store.IsTyping(ctx, matchID, other)
	if err != nil {
		return nil, err
	}
	return &model.TypingStatus{MatchID: matchID, UserID: other, Typing: on, UpdatedAt: s.now()}, nil
}

// HandleSignal принимает сигналы, пришедшие по WebSocket.
func (s *ConversationService) HandleSignal(ctx context.Context, userID string, msg ws.IncomingMessage) error {
	switch msg.Type {
	case ws.EventTyping:
		if msg.MatchID == "" {
			return invalid("match_id required")
		}
		return s.SetTyping(ctx, userID, msg.MatchID, msg.Typing)
	default:
		return invalid("unknown event type")
	}
}

// publishMatch перечитывает матч и рассылает его обоим участникам.
func (s *ConversationService) publishMatch(ctx context.Context, matchID string) *model.Match {
	m, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		logger.Errorf("conversation reload match=%s: %v", matchID, err)
		return nil
	}
	s.pub.Publish(m.Users[:], ws.EventMatchUpdated, m)
	return m
}
