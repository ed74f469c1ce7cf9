package service

import (
	"context"
	"strings"
	"time"

	"github.com/frinder/internal/model"
)

type ProfileService struct {
	profiles ProfileStore
}

func NewProfileService(profiles ProfileStore) *ProfileService {
	return &ProfileService{profiles: profiles}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

// Update перезаписывает профиль текущего пользователя. Уже созданные матчи хранят старый снимок.
func (s *ProfileService) Update(ctx context.Context, userID string, p model.Profile) (*model.Profile, error) {
	p.UserID = userID
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, invalid("name required")
	}
	if p.Age != 0 && (p.Age < 18 || p.Age > 120) {
		return nil, invalid("age must be between 18 and 120")
	}
	p.UpdatedAt = time.Now().UTC()
	if err := s.profiles.Upsert(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
