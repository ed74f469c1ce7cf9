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

const dateCols = `id, match_id, sender_id, title, date, time, location, description, status, created_at, responded_at, cancelled_by`

type DateRequestRepository struct {
	pool *pgxpool.Pool
}

func NewDateRequestRepository(pool *pgxpool.Pool) *DateRequestRepository {
	return &DateRequestRepository{pool: pool}
}

func scanDate(s rowScanner, d *model.DateRequest) error {
	return s.Scan(&d.ID, &d.MatchID, &d.SenderID, &d.Title, &d.Date, &d.Time, &d.Location, &d.Description,
		&d.Status, &d.CreatedAt, &d.RespondedAt, &d.CancelledBy)
}

func (r *DateRequestRepository) Create(ctx context.Context, d *model.DateRequest) error {
	defer logger.DeferLogDuration("date.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO date_requests (`+dateCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		d.ID, d.MatchID, d.SenderID, d.Title, d.Date, d.Time, d.Location, d.Description,
		d.Status, d.CreatedAt, d.RespondedAt, d.CancelledBy,
	)
	if err != nil {
		return fmt.Errorf("dateRepo.Create: %w", err)
	}
	return nil
}

func (r *DateRequestRepository) GetByID(ctx context.Context, id string) (*model.DateRequest, error) {
	defer logger.DeferLogDuration("date.GetByID", time.Now())()
	d := &model.DateRequest{}
	row := r.pool.QueryRow(ctx, `SELECT `+dateCols+` FROM date_requests WHERE id = $1`, id)
	if err := scanDate(row, d); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("dateRepo.GetByID: %w", err)
	}
	return d, nil
}

func (r *DateRequestRepository) ListByMatch(ctx context.Context, matchID string) ([]model.DateRequest, error) {
	defer logger.DeferLogDuration("date.ListByMatch", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+dateCols+` FROM date_requests WHERE match_id = $1 ORDER BY created_at ASC`, matchID)
	if err != nil {
		return nil, fmt.Errorf("dateRepo.ListByMatch query: %w", err)
	}
	defer rows.Close()

	var list []model.DateRequest
	for rows.Next() {
		var d model.DateRequest
		if err := scanDate(rows, &d); err != nil {
			return nil, fmt.Errorf("dateRepo.ListByMatch scan: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dateRepo.ListByMatch rows: %w", err)
	}
	return list, nil
}

// UpdateStatus применяет переход, только если статус в базе всё ещё from (оптимистичная проверка).
func (r *DateRequestRepository) UpdateStatus(ctx context.Context, d *model.DateRequest, from model.DateStatus) error {
	defer logger.DeferLogDuration("date.UpdateStatus", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE date_requests SET status = $3, responded_at = $4, cancelled_by = $5
		 WHERE id = $1 AND status = $2`,
		d.ID, from, d.Status, d.RespondedAt, d.CancelledBy,
	)
	if err != nil {
		return fmt.Errorf("dateRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
