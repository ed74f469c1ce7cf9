package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

const profileCols = `user_id, name, photos, bio, age, city, country, interests, relationship_goal, updated_at`

type ProfileRepository struct {
	pool *pgxpool.Pool
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{pool: pool}
}

func scanProfile(s rowScanner, p *model.Profile) error {
	return s.Scan(&p.UserID, &p.Name, &p.Photos, &p.Bio, &p.Age, &p.City, &p.Country, &p.Interests, &p.RelationshipGoal, &p.UpdatedAt)
}

func (r *ProfileRepository) GetByID(ctx context.Context, userID string) (*model.Profile, error) {
	defer logger.DeferLogDuration("profile.GetByID", time.Now())()
	p := &model.Profile{}
	row := r.pool.QueryRow(ctx, `SELECT `+profileCols+` FROM profiles WHERE user_id = $1`, userID)
	if err := scanProfile(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("profileRepo.GetByID: %w", err)
	}
	return p, nil
}

// Upsert создаёт или полностью перезаписывает профиль.
func (r *ProfileRepository) Upsert(ctx context.Context, p *model.Profile) error {
	defer logger.DeferLogDuration("profile.Upsert", time.Now())()
	if p.Photos == nil {
		p.Photos = []string{}
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO profiles (`+profileCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = EXCLUDED.name, photos = EXCLUDED.photos, bio = EXCLUDED.bio, age = EXCLUDED.age,
		   city = EXCLUDED.city, country = EXCLUDED.country, interests = EXCLUDED.interests,
		   relationship_goal = EXCLUDED.relationship_goal, updated_at = EXCLUDED.updated_at`,
		p.UserID, p.Name, p.Photos, p.Bio, p.Age, p.City, p.Country, p.Interests, p.RelationshipGoal, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("profileRepo.Upsert: %w", err)
	}
	return nil
}
