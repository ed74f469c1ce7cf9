// Package convstore: локальное представление «с кем я могу говорить»:
// три независимые ленты (матчи, разорванные матчи, группы) и производные корзины для UI.
package convstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frinder/internal/model"
)

// ReadMarker помечает прочитанными все чужие сообщения разговора.
type ReadMarker interface {
	MarkRead(ctx context.Context, matchID string) error
}

// Snapshot: корзины, пересчитанные целиком при каждом обновлении.
// Каждый матч попадает ровно в одну из New / Conversations / Unmatched.
type Snapshot struct {
	New           []model.Match
	Conversations []model.Match
	Unmatched     []model.Match
	Groups        []model.Group
	AcceptedDates []model.DateRequest
}

type Store struct {
	userID string
	reader ReadMarker

	mu        sync.RWMutex
	matches   []model.Match
	unmatched []model.Match
	groups    []model.Group
	dates     map[string][]model.DateRequest
}

func New(userID string, reader ReadMarker) *Store {
	return &Store{userID: userID, reader: reader, dates: make(map[string][]model.DateRequest)}
}

// ApplyMatches заменяет раздел ленты активных матчей. Раздел разорванных не трогается.
func (s *Store) ApplyMatches(list []model.Match) Snapshot {
	s.mu.Lock()
	s.matches = append([]model.Match(nil), list...)
	s.mu.Unlock()
	return s.Snapshot()
}

// ApplyUnmatched заменяет раздел разорванных матчей. Раздел активных не трогается.
func (s *Store) ApplyUnmatched(list []model.Match) Snapshot {
	s.mu.Lock()
	s.unmatched = append([]model.Match(nil), list...)
	s.mu.Unlock()
	return s.Snapshot()
}

// ApplyGroups заменяет список групп пользователя.
func (s *Store) ApplyGroups(list []model.Group) Snapshot {
	s.mu.Lock()
	s.groups = append([]model.Group(nil), list...)
	s.mu.Unlock()
	return s.Snapshot()
}

// ApplyDateRequests заменяет предложения свиданий одного матча.
func (s *Store) ApplyDateRequests(matchID string, list []model.DateRequest) Snapshot {
	s.mu.Lock()
	s.dates[matchID] = append([]model.DateRequest(nil), list...)
	s.mu.Unlock()
	return s.Snapshot()
}

// Upsert применяет одно событие match_updated так же, как его увидели бы обе ленты:
// активный матч остаётся (или появляется) в ленте матчей, разорванный переезжает в ленту разорванных.
func (s *Store) Upsert(m model.Match) Snapshot {
	s.mu.Lock()
	s.matches = remove(s.matches, m.ID)
	s.unmatched = remove(s.unmatched, m.ID)
	if m.IsUnmatched {
		s.unmatched = append(s.unmatched, m)
	} else {
		s.matches = append(s.matches, m)
	}
	s.mu.Unlock()
	return s.Snapshot()
}

// UpsertGroup применяет событие group_updated; удалённые группы и группы без пользователя исчезают.
func (s *Store) UpsertGroup(g model.Group) Snapshot {
	s.mu.Lock()
	out := s.groups[:0:0]
	for _, cur := range s.groups {
		if cur.ID != g.ID {
			out = append(out, cur)
		}
	}
	if !g.Deleted && g.IsMember(s.userID) {
		out = append(out, g)
	}
	s.groups = out
	s.mu.Unlock()
	return s.Snapshot()
}

// Get ищет матч в обоих разделах.
func (s *Store) Get(matchID string) (model.Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, list := range [][]model.Match{s.unmatched, s.matches} {
		for _, m := range list {
			if m.ID == matchID {
				return m, true
			}
		}
	}
	return model.Match{}, false
}

// Open вызывается при открытии разговора: бэкенд помечает прочитанными все чужие сообщения,
// локальный счётчик непрочитанных обнуляется.
func (s *Store) Open(ctx context.Context, matchID string) error {
	if err := s.reader.MarkRead(ctx, matchID); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.matches {
		if s.matches[i].ID != matchID || s.matches[i].UnreadCount == nil {
			continue
		}
		unread := make(map[string]int, len(s.matches[i].UnreadCount))
		for k, v := range s.matches[i].UnreadCount {
			unread[k] = v
		}
		unread[s.userID] = 0
		s.matches[i].UnreadCount = unread
	}
	s.mu.Unlock()
	return nil
}

// Snapshot пересчитывает корзины из текущих разделов.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snap Snapshot
	unmatchedIDs := make(map[string]struct{}, len(s.unmatched))
	for _, m := range s.unmatched {
		if _, dup := unmatchedIDs[m.ID]; dup {
			continue
		}
		unmatchedIDs[m.ID] = struct{}{}
		snap.Unmatched = append(snap.Unmatched, m)
	}
	seen := make(map[string]struct{}, len(s.matches))
	for _, m := range s.matches {
		if _, ok := unmatchedIDs[m.ID]; ok {
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		switch {
		case m.IsUnmatched:
			snap.Unmatched = append(snap.Unmatched, m)
		case m.HasLastMessage():
			snap.Conversations = append(snap.Conversations, m)
		default:
			snap.New = append(snap.New, m)
		}
	}
	SortConversations(snap.New)
	SortConversations(snap.Conversations)
	SortConversations(snap.Unmatched)

	snap.Groups = append([]model.Group(nil), s.groups...)
	sort.SliceStable(snap.Groups, func(i, j int) bool {
		return newer(snap.Groups[i].LastMessageTime, snap.Groups[j].LastMessageTime)
	})

	for matchID, list := range s.dates {
		if _, gone := unmatchedIDs[matchID]; gone {
			continue
		}
		for _, d := range list {
			if d.Status == model.DateStatusAccepted {
				snap.AcceptedDates = append(snap.AcceptedDates, d)
			}
		}
	}
	sort.SliceStable(snap.AcceptedDates, func(i, j int) bool {
		a, b := snap.AcceptedDates[i], snap.AcceptedDates[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.ID < b.ID
	})
	return snap
}

// SortConversations: новые матчи первыми (порядок сохраняется), затем по времени
// последнего сообщения по убыванию, без времени: в конце.
func SortConversations(list []model.Match) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsNew != b.IsNew {
			return a.IsNew
		}
		if a.IsNew {
			return false
		}
		return newer(a.LastMessageTime, b.LastMessageTime)
	})
}

// newer: a строго новее b; nil всегда «старше» любого времени.
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func remove(list []model.Match, id string) []model.Match {
	out := list[:0:0]
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}
