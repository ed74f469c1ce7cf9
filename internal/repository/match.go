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

const matchCols = `id, user_a, user_b, profiles, last_message, last_message_time, unread_count, is_new, is_unmatched, unmatched_by, unmatched_at, created_at`

type MatchRepository struct {
	pool *pgxpool.Pool
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

func scanMatch(s rowScanner, m *model.Match) error {
	return s.Scan(&m.ID, &m.Users[0], &m.Users[1], &m.Profiles, &m.LastMessage, &m.LastMessageTime, &m.UnreadCount,
		&m.IsNew, &m.IsUnmatched, &m.UnmatchedBy, &m.UnmatchedAt, &m.CreatedAt)
}

func (r *MatchRepository) Create(ctx context.Context, m *model.Match) error {
	defer logger.DeferLogDuration("match.Create", time.Now())()
	if m.UnreadCount == nil {
		m.UnreadCount = map[string]int{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO matches (`+matchCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		m.ID, m.Users[0], m.Users[1], m.Profiles, m.LastMessage, m.LastMessageTime, m.UnreadCount,
		m.IsNew, m.IsUnmatched, m.UnmatchedBy, m.UnmatchedAt, m.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("matchRepo.Create: %w", err)
	}
	return nil
}

func (r *MatchRepository) GetByID(ctx context.Context, id string) (*model.Match, error) {
	defer logger.DeferLogDuration("match.GetByID", time.Now())()
	m := &model.Match{}
	row := r.pool.QueryRow(ctx, `SELECT `+matchCols+` FROM matches WHERE id = $1`, id)
	if err := scanMatch(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("matchRepo.GetByID: %w", err)
	}
	return m, nil
}

// FindByUsers ищет матч пары независимо от порядка.
func (r *MatchRepository) FindByUsers(ctx context.Context, a, b string) (*model.Match, error) {
	defer logger.DeferLogDuration("match.FindByUsers", time.Now())()
	m := &model.Match{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+matchCols+` FROM matches
		 WHERE LEAST(user_a, user_b) = LEAST($1, $2) AND GREATEST(user_a, user_b) = GREATEST($1, $2)`, a, b)
	if err := scanMatch(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("matchRepo.FindByUsers: %w", err)
	}
	return m, nil
}

// ListForUser: матчи пользователя; unmatched выбирает одну из двух лент.
func (r *MatchRepository) ListForUser(ctx context.Context, userID string, unmatched bool) ([]model.Match, error) {
	defer logger.DeferLogDuration("match.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+matchCols+` FROM matches
		 WHERE (user_a = $1 OR user_b = $1) AND is_unmatched = $2
		 ORDER BY COALESCE(last_message_time, created_at) DESC`, userID, unmatched)
	if err != nil {
		return nil, fmt.Errorf("matchRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	var list []model.Match
	for rows.Next() {
		var m model.Match
		if err := scanMatch(rows, &m); err != nil {
			return nil, fmt.Errorf("matchRepo.ListForUser scan: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("matchRepo.ListForUser rows: %w", err)
	}
	return list, nil
}

// SetLastMessage обновляет превью, снимает флаг «новый» и увеличивает счётчик непрочитанных получателя.
func (r *MatchRepository) SetLastMessage(ctx context.Context, matchID, preview string, at time.Time, recipientID string) error {
	defer logger.DeferLogDuration("match.SetLastMessage", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE matches SET
		   last_message = $2,
		   last_message_time = $3,
		   is_new = FALSE,
		   unread_count = jsonb_set(unread_count, ARRAY[$4::text], to_jsonb(COALESCE((unread_count->>$4::text)::int, 0) + 1))
		 WHERE id = $1`,
		matchID, preview, at, recipientID,
	)
	if err != nil {
		return fmt.Errorf("matchRepo.SetLastMessage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPreview меняет только текст превью (правка или удаление последнего сообщения).
func (r *MatchRepository) SetPreview(ctx context.Context, matchID, preview string) error {
	defer logger.DeferLogDuration("match.SetPreview", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE matches SET last_message = $2 WHERE id = $1`, matchID, preview)
	if err != nil {
		return fmt.Errorf("matchRepo.SetPreview: %w", err)
	}
	return nil
}

func (r *MatchRepository) ResetUnread(ctx context.Context, matchID, userID string) error {
	defer logger.DeferLogDuration("match.ResetUnread", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE matches SET unread_count = jsonb_set(unread_count, ARRAY[$2::text], '0'::jsonb) WHERE id = $1`,
		matchID, userID,
	)
	if err != nil {
		return fmt.Errorf("matchRepo.ResetUnread: %w", err)
	}
	return nil
}

// Unmatch помечает матч разорванным. Повторный вызов не меняет исходного инициатора.
func (r *MatchRepository) Unmatch(ctx context.Context, matchID, by string, at time.Time) error {
	defer logger.DeferLogDuration("match.Unmatch", time.Now())()
	_, err := r.pool.Exec(ctx,
		`UPDATE matches SET is_unmatched = TRUE, unmatched_by = $2, unmatched_at = $3
		 WHERE id = $1 AND NOT is_unmatched`,
		matchID, by, at,
	)
	if err != nil {
		return fmt.Errorf("matchRepo.Unmatch: %w", err)
	}
	return nil
}
