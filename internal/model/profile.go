package model

import "time"

// Profile: публичный профиль пользователя, из которого строится снимок собеседника в матче.
type Profile struct {
	UserID           string    `json:"user_id"`
	Name             string    `json:"name"`
	Photos           []string  `json:"photos"`
	Bio              string    `json:"bio"`
	Age              int       `json:"age"`
	City             string    `json:"city"`
	Country          string    `json:"country"`
	Interests        []string  `json:"interests"`
	RelationshipGoal string    `json:"relationship_goal"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ProfileSnapshot: денормализованная копия публичных полей профиля, хранится в матче.
type ProfileSnapshot struct {
	Name             string   `json:"name"`
	Photos           []string `json:"photos"`
	Bio              string   `json:"bio"`
	Age              int      `json:"age"`
	City             string   `json:"city"`
	Country          string   `json:"country"`
	Interests        []string `json:"interests"`
	RelationshipGoal string   `json:"relationship_goal"`
}

func (p *Profile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{
		Name:             p.Name,
		Photos:           p.Photos,
		Bio:              p.Bio,
		Age:              p.Age,
		City:             p.City,
		Country:          p.Country,
		Interests:        p.Interests,
		RelationshipGoal: p.RelationshipGoal,
	}
}

// MainPhoto возвращает первое фото или пустую строку.
func (s ProfileSnapshot) MainPhoto() string {
	if len(s.Photos) == 0 {
		return ""
	}
	return s.Photos[0]
}
