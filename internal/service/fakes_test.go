package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frinder/internal/model"
	"github.com/frinder/internal/repository"
	"github.com/frinder/internal/ws"
)

type event struct {
	to      []string
	kind    ws.EventType
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Publish(userIDs []string, kind ws.EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{to: append([]string(nil), userIDs...), kind: kind, payload: payload})
}

func (r *recorder) of(kind ws.EventType) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type pushed struct{ userID, title string }

type pushRecorder struct {
	mu    sync.Mutex
	sends []pushed
}

func (p *pushRecorder) Notify(_ context.Context, userID, title, _ string, _ map[string]string) {
	p.mu.Lock()
	p.sends = append(p.sends, pushed{userID, title})
	p.mu.Unlock()
}

func (p *pushRecorder) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sends)
}

// memMatches / memMessages / memDates / memProfiles: хранилища в памяти с семантикой репозиториев.

type memMatches struct {
	mu   sync.Mutex
	byID map[string]*model.Match
}

func newMemMatches(ms ...model.Match) *memMatches {
	s := &memMatches{byID: map[string]*model.Match{}}
	for i := range ms {
		m := ms[i]
		if m.UnreadCount == nil {
			m.UnreadCount = map[string]int{}
		}
		s.byID[m.ID] = &m
	}
	return s
}

func (s *memMatches) Create(_ context.Context, m *model.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.byID {
		if cur.HasUser(m.Users[0]) && cur.HasUser(m.Users[1]) {
			return repository.ErrConflict
		}
	}
	cp := *m
	s.byID[m.ID] = &cp
	return nil
}

func (s *memMatches) GetByID(_ context.Context, id string) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	cp.UnreadCount = map[string]int{}
	for k, v := range m.UnreadCount {
		cp.UnreadCount[k] = v
	}
	return &cp, nil
}

func (s *memMatches) FindByUsers(_ context.Context, a, b string) (*model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.byID {
		if m.HasUser(a) && m.HasUser(b) {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memMatches) ListForUser(_ context.Context, userID string, unmatched bool) ([]model.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Match
	for _, m := range s.byID {
		if m.HasUser(userID) && m.IsUnmatched == unmatched {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memMatches) SetLastMessage(_ context.Context, matchID, preview string, at time.Time, recipientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[matchID]
	if !ok {
		return repository.ErrNotFound
	}
	m.LastMessage = preview
	m.LastMessageTime = &at
	m.IsNew = false
	m.UnreadCount[recipientID]++
	return nil
}

func (s *memMatches) SetPreview(_ context.Context, matchID, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[matchID].LastMessage = preview
	return nil
}

func (s *memMatches) ResetUnread(_ context.Context, matchID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[matchID].UnreadCount[userID] = 0
	return nil
}

func (s *memMatches) Unmatch(_ context.Context, matchID, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.byID[matchID]
	if m.IsUnmatched {
		return nil
	}
	m.IsUnmatched = true
	m.UnmatchedBy = by
	m.UnmatchedAt = &at
	return nil
}

type memMessages struct {
	mu   sync.Mutex
	list []*model.Message
}

func (s *memMessages) find(id string) *model.Message {
	for _, m := range s.list {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *memMessages) Create(_ context.Context, m *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.list = append(s.list, &cp)
	return nil
}

func (s *memMessages) GetByID(_ context.Context, id string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(id)
	if m == nil {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memMessages) ListByMatch(_ context.Context, matchID string, _ int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Message
	for _, m := range s.list {
		if m.MatchID == matchID {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *memMessages) Latest(_ context.Context, matchID string) (*model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.list) - 1; i >= 0; i-- {
		if s.list[i].MatchID == matchID {
			cp := *s.list[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memMessages) UpdateText(_ context.Context, id, text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.find(id)
	if m == nil || m.Deleted {
		return repository.ErrNotFound
	}
	m.Text = text
	m.Edited = true
	m.EditedAt = &at
	return nil
}

func (s *memMessages) Tombstone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.find(id).Tombstone()
	for _, m := range s.list {
		if m.ReplyTo != nil && m.ReplyTo.ID == id {
			ref := *m.ReplyTo
			ref.Text = model.DeletedMarker
			m.ReplyTo = &ref
		}
	}
	return nil
}

func (s *memMessages) MarkRead(_ context.Context, matchID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, m := range s.list {
		if m.MatchID == matchID && m.SenderID != readerID && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

type memProfiles struct {
	byID map[string]*model.Profile
}

func (s *memProfiles) GetByID(_ context.Context, userID string) (*model.Profile, error) {
	p, ok := s.byID[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (s *memProfiles) Upsert(_ context.Context, p *model.Profile) error {
	s.byID[p.UserID] = p
	return nil
}

type memDates struct {
	mu   sync.Mutex
	byID map[string]*model.DateRequest
}

func newMemDates() *memDates { return &memDates{byID: map[string]*model.DateRequest{}} }

func (s *memDates) Create(_ context.Context, d *model.DateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}

func (s *memDates) GetByID(_ context.Context, id string) (*model.DateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memDates) ListByMatch(_ context.Context, matchID string) ([]model.DateRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.DateRequest
	for _, d := range s.byID {
		if d.MatchID == matchID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memDates) UpdateStatus(_ context.Context, d *model.DateRequest, from model.DateStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.byID[d.ID]
	if cur.Status != from {
		return repository.ErrConflict
	}
	cp := *d
	s.byID[d.ID] = &cp
	return nil
}
