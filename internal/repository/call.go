package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frinder/internal/logger"
	"github.com/frinder/internal/model"
)

const callCols = `id, match_id, caller_id, callee_id, caller_name, caller_photo, offer, answer, status, end_reason, created_at, answered_at, ended_at`

type CallRepository struct {
	pool *pgxpool.Pool
}

func NewCallRepository(pool *pgxpool.Pool) *CallRepository {
	return &CallRepository{pool: pool}
}

func scanCall(s rowScanner, c *model.Call) error {
	return s.Scan(&c.ID, &c.MatchID, &c.CallerID, &c.CalleeID, &c.CallerName, &c.CallerPhoto, &c.Offer, &c.Answer,
		&c.Status, &c.EndReason, &c.CreatedAt, &c.AnsweredAt, &c.EndedAt)
}

// Create записывает звонок. Второй незавершённый звонок в том же матче: ErrConflict.
func (r *CallRepository) Create(ctx context.Context, c *model.Call) error {
	defer logger.DeferLogDuration("call.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO calls (`+callCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.MatchID, c.CallerID, c.CalleeID, c.CallerName, c.CallerPhoto, c.Offer, c.Answer,
		c.Status, c.EndReason, c.CreatedAt, c.AnsweredAt, c.EndedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("callRepo.Create: %w", err)
	}
	return nil
}

func (r *CallRepository) GetByID(ctx context.Context, id string) (*model.Call, error) {
	defer logger.DeferLogDuration("call.GetByID", time.Now())()
	c := &model.Call{}
	row := r.pool.QueryRow(ctx, `SELECT `+callCols+` FROM calls WHERE id = $1`, id)
	if err := scanCall(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("callRepo.GetByID: %w", err)
	}
	return c, nil
}

// ActiveForMatch: незавершённый звонок матча или ErrNotFound.
func (r *CallRepository) ActiveForMatch(ctx context.Context, matchID string) (*model.Call, error) {
	defer logger.DeferLogDuration("call.ActiveForMatch", time.Now())()
	c := &model.Call{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+callCols+` FROM calls
		 WHERE match_id = $1 AND status IN ('ringing', 'connecting', 'ongoing')
		 ORDER BY created_at DESC LIMIT 1`, matchID)
	if err := scanCall(row, c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("callRepo.ActiveForMatch: %w", err)
	}
	return c, nil
}

// Incoming: звонки, где пользователь вызываемый и статус ringing.
func (r *CallRepository) Incoming(ctx context.Context, calleeID string) ([]model.Call, error) {
	defer logger.DeferLogDuration("call.Incoming", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+callCols+` FROM calls WHERE callee_id = $1 AND status = 'ringing' ORDER BY created_at DESC`, calleeID)
	if err != nil {
		return nil, fmt.Errorf("callRepo.Incoming query: %w", err)
	}
	defer rows.Close()

	var list []model.Call
	for rows.Next() {
		var c model.Call
		if err := scanCall(rows, &c); err != nil {
			return nil, fmt.Errorf("callRepo.Incoming scan: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callRepo.Incoming rows: %w", err)
	}
	return list, nil
}

// SetAnswer сохраняет answer и переводит ringing → connecting.
func (r *CallRepository) SetAnswer(ctx context.Context, id string, answer model.SessionDescription, at time.Time) error {
	defer logger.DeferLogDuration("call.SetAnswer", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls SET answer = $2, status = 'connecting', answered_at = $3 WHERE id = $1 AND status = 'ringing'`,
		id, answer, at,
	)
	if err != nil {
		return fmt.Errorf("callRepo.SetAnswer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateStatus меняет статус, только если текущий равен from. Для терминального статуса ставится ended_at.
func (r *CallRepository) UpdateStatus(ctx context.Context, id string, from, to model.CallStatus, reason string, at time.Time) error {
	defer logger.DeferLogDuration("call.UpdateStatus", time.Now())()
	var endedAt *time.Time
	if to.Terminal() {
		endedAt = &at
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE calls SET status = $3, end_reason = COALESCE(NULLIF($4, ''), end_reason), ended_at = COALESCE($5, ended_at)
		 WHERE id = $1 AND status = $2`,
		id, from, to, reason, endedAt,
	)
	if err != nil {
		return fmt.Errorf("callRepo.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *CallRepository) AddCandidate(ctx context.Context, c *model.ICECandidate) error {
	defer logger.DeferLogDuration("call.AddCandidate", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO call_candidates (id, call_id, contributor_id, candidate, created_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.CallID, c.ContributorID, json.RawMessage(c.Candidate), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("callRepo.AddCandidate: %w", err)
	}
	return nil
}

// Candidates: кандидаты звонка, кроме добавленных exclude, в порядке поступления.
func (r *CallRepository) Candidates(ctx context.Context, callID, exclude string) ([]model.ICECandidate, error) {
	defer logger.DeferLogDuration("call.Candidates", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, call_id, contributor_id, candidate, created_at FROM call_candidates
		 WHERE call_id = $1 AND contributor_id <> $2 ORDER BY created_at ASC`, callID, exclude)
	if err != nil {
		return nil, fmt.Errorf("callRepo.Candidates query: %w", err)
	}
	defer rows.Close()

	var list []model.ICECandidate
	for rows.Next() {
		var c model.ICECandidate
		var raw []byte
		if err := rows.Scan(&c.ID, &c.CallID, &c.ContributorID, &raw, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("callRepo.Candidates scan: %w", err)
		}
		c.Candidate = json.RawMessage(raw)
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("callRepo.Candidates rows: %w", err)
	}
	return list, nil
}
