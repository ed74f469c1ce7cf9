package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/ws"
)

type GroupService struct {
	groups GroupStore
	pub    Publisher
	push   PushNotifier
	now    func() time.Time
}

func NewGroupService(groups GroupStore, pub Publisher, push PushNotifier) *GroupService {
	return &GroupService{groups: groups, pub: pub, push: push, now: func() time.Time { return time.Now().UTC() }}
}

type GroupInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PhotoURL    string `json:"photo_url"`
	IsPrivate   bool   `json:"is_private"`
}

func (s *GroupService) Create(ctx context.Context, userID string, in GroupInput) (*model.Group, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("name required")
	}
	g := &model.Group{
		ID:             uuid.New().String(),
		Name:           name,
		Description:    strings.TrimSpace(in.Description),
		PhotoURL:       strings.TrimSpace(in.PhotoURL),
		CreatorID:      userID,
		Members:        []string{userID},
		PendingMembers: []string{},
		IsPrivate:      in.IsPrivate,
		CreatedAt:      s.now(),
	}
	if err := s.groups.Create(ctx, g); err != nil {
		return nil, err
	}
	s.pub.Publish(g.Members, ws.EventGroupUpdated, g)
	return g, nil
}

// get возвращает неудалённую группу.
func (s *GroupService) get(ctx context.Context, id string) (*model.Group, error) {
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Deleted {
		return nil, repository.ErrNotFound
	}
	return g, nil
}

// Get: приватную группу видят только участники и подавшие заявку.
func (s *GroupService) Get(ctx context.Context, userID, id string) (*model.Group, error) {
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.IsPrivate && !g.IsMember(userID) && !g.IsPending(userID) {
		return nil, ErrForbidden
	}
	return g, nil
}

func (s *GroupService) ListMine(ctx context.Context, userID string) ([]model.Group, error) {
	list, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []model.Group{}
	}
	return list, nil
}

const searchLimit = 20

// Search: открытые группы по подстроке названия; пустой запрос даёт пустой список.
func (s *GroupService) Search(ctx context.Context, query string) ([]model.Group, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Group{}, nil
	}
	return s.groups.Search(ctx, query, searchLimit)
}

// Join: в открытую группу вступает сразу, в закрытую подаёт заявку администратору.
// Повторный или одновременный вызов возвращает текущее состояние.
func (s *GroupService) Join(ctx context.Context, userID, id string) (*model.Group, error) {
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.IsMember(userID) || g.IsPending(userID) {
		return g, nil
	}
	if g.IsPrivate {
		g, err = s.groups.AddPending(ctx, id, userID)
	} else {
		g, err = s.groups.AddMember(ctx, id, userID, false)
	}
	if errors.Is(err, repository.ErrConflict) {
		return s.get(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	s.publish(g, userID)
	if g.IsPrivate {
		notify(s.push, g.CreatorID, g.Name, "New request to join", map[string]string{"group_id": g.ID})
	}
	return g, nil
}

var errNoRequest = invalid("user has no pending request")

// Approve: администратор принимает заявку.
func (s *GroupService) Approve(ctx context.Context, adminID, id, memberID string) (*model.Group, error) {
	g, err := s.admin(ctx, adminID, id)
	if err != nil {
		return nil, err
	}
	if !g.IsPending(memberID) {
		return nil, errNoRequest
	}
	g, err = s.groups.AddMember(ctx, id, memberID, true)
	if errors.Is(err, repository.ErrConflict) {
		return nil, errNoRequest
	}
	if err != nil {
		return nil, err
	}
	s.publish(g, memberID)
	notify(s.push, memberID, g.Name, "Your request was approved", map[string]string{"group_id": g.ID})
	return g, nil
}

// Reject: администратор отклоняет заявку.
func (s *GroupService) Reject(ctx context.Context, adminID, id, memberID string) (*model.Group, error) {
	g, err := s.admin(ctx, adminID, id)
	if err != nil {
		return nil, err
	}
	if !g.IsPending(memberID) {
		return nil, errNoRequest
	}
	g, err = s.groups.RemovePending(ctx, id, memberID)
	if errors.Is(err, repository.ErrConflict) {
		return nil, errNoRequest
	}
	if err != nil {
		return nil, err
	}
	s.publish(g, memberID)
	return g, nil
}

// Leave: выход из группы или отзыв заявки. Создатель выйти не может, только удалить группу.
func (s *GroupService) Leave(ctx context.Context, userID, id string) error {
	g, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if g.CreatorID == userID {
		return ErrInvalidState
	}
	if !g.IsMember(userID) && !g.IsPending(userID) {
		return nil
	}
	g, err = s.groups.RemoveMember(ctx, id, userID)
	if errors.Is(err, repository.ErrConflict) {
		return nil
	}
	if err != nil {
		return err
	}
	s.publish(g, userID)
	return nil
}

// Delete: мягкое удаление создателем; история сообщений остаётся в базе.
func (s *GroupService) Delete(ctx context.Context, userID, id string) error {
	g, err := s.admin(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.groups.SoftDelete(ctx, id); err != nil {
		return err
	}
	g.Deleted = true
	s.publish(g)
	return nil
}

func (s *GroupService) SendMessage(ctx context.Context, userID, id string, in SendInput) (*model.GroupMessage, error) {
	text := strings.TrimSpace(in.Text)
	imageURL := strings.TrimSpace(in.ImageURL)
	if text == "" && imageURL == "" {
		return nil, invalid("text or image_url required")
	}
	if len([]rune(text)) > maxMessageLen {
		return nil, invalid("text too long")
	}
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(userID) {
		return nil, ErrForbidden
	}
	msg := &model.GroupMessage{
		ID:        uuid.New().String(),
		GroupID:   id,
		SenderID:  userID,
		Text:      text,
		ImageURL:  imageURL,
		Timestamp: s.now(),
	}
	preview := text
	if preview == "" {
		preview = model.ImagePreview
	}
	if err := s.groups.AddMessage(ctx, msg, preview); err != nil {
		return nil, err
	}
	s.pub.Publish(g.Members, ws.EventGroupMessage, ws.GroupMessagePayload{GroupID: id, Message: *msg})
	return msg, nil
}

func (s *GroupService) ListMessages(ctx context.Context, userID, id string, limit int) ([]model.GroupMessage, error) {
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.IsMember(userID) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 1000 {
		limit = defaultPageSize
	}
	return s.groups.ListMessages(ctx, id, limit)
}

func (s *GroupService) admin(ctx context.Context, userID, id string) (*model.Group, error) {
	g, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.CreatorID != userID {
		return nil, ErrForbidden
	}
	return g, nil
}

// publish рассылает группу участникам, заявителям и дополнительно перечисленным (например, выбывшему).
func (s *GroupService) publish(g *model.Group, extra ...string) {
	ids := make([]string, 0, len(g.Members)+len(g.PendingMembers)+len(extra))
	ids = append(ids, g.Members...)
	ids = append(ids, g.PendingMembers...)
	ids = append(ids, extra...)
	s.pub.Publish(ids, ws.EventGroupUpdated, g)
}
