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

const groupCols = `id, name, description, photo_url, creator_id, members, pending_members, is_private, last_message, last_message_time, deleted, created_at`

type GroupRepository struct {
	pool *pgxpool.Pool
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

func scanGroup(s rowScanner, g *model.Group) error {
	return s.Scan(&g.ID, &g.Name, &g.Description, &g.PhotoURL, &g.CreatorID, &g.Members, &g.PendingMembers,
		&g.IsPrivate, &g.LastMessage, &g.LastMessageTime, &g.Deleted, &g.CreatedAt)
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	if g.PendingMembers == nil {
		g.PendingMembers = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO groups (`+groupCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.ID, g.Name, g.Description, g.PhotoURL, g.CreatorID, g.Members, g.PendingMembers,
		g.IsPrivate, g.LastMessage, g.LastMessageTime, g.Deleted, g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("groupRepo.Create: %w", err)
	}
	return nil
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	row := r.pool.QueryRow(ctx, `SELECT `+groupCols+` FROM groups WHERE id = $1`, id)
	if err := scanGroup(row, g); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("groupRepo.GetByID: %w", err)
	}
	return g, nil
}

// ListForUser: неудалённые группы, где пользователь участник.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListForUser", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupCols+` FROM groups WHERE $1 = ANY(members) AND NOT deleted
		 ORDER BY COALESCE(last_message_time, created_at) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser query: %w", err)
	}
	defer rows.Close()

	var list []model.Group
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("groupRepo.ListForUser scan: %w", err)
		}
		list = append(list, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListForUser rows: %w", err)
	}
	return list, nil
}

// Search ищет открытые неудалённые группы по названию.
func (r *GroupRepository) Search(ctx context.Context, query string, limit int) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.Search", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+groupCols+` FROM groups WHERE name ILIKE $1 AND NOT is_private AND NOT deleted
		 ORDER BY name LIMIT $2`,
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.Search query: %w", err)
	}
	defer rows.Close()

	list := make([]model.Group, 0, limit)
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, fmt.Errorf("groupRepo.Search scan: %w", err)
		}
		list = append(list, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.Search rows: %w", err)
	}
	return list, nil
}

// Состав группы меняется только атомарными операциями над массивами: два одновременных
// вступления не затирают друг друга. Если условие не выполнено (уже участник, заявки нет),
// возвращается ErrConflict, а вызывающий перечитывает группу.

// AddMember добавляет участника. fromPending: только по заявке, заявка снимается.
func (r *GroupRepository) AddMember(ctx context.Context, id, userID string, fromPending bool) (*model.Group, error) {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	guard := `NOT ($2 = ANY(members))`
	if fromPending {
		guard += ` AND $2 = ANY(pending_members)`
	}
	return r.updateMembers(ctx, "AddMember",
		`UPDATE groups SET members = array_append(members, $2), pending_members = array_remove(pending_members, $2)
		 WHERE id = $1 AND NOT deleted AND `+guard+` RETURNING `+groupCols, id, userID)
}

// AddPending подаёт заявку в закрытую группу.
func (r *GroupRepository) AddPending(ctx context.Context, id, userID string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.AddPending", time.Now())()
	return r.updateMembers(ctx, "AddPending",
		`UPDATE groups SET pending_members = array_append(pending_members, $2)
		 WHERE id = $1 AND NOT deleted AND NOT ($2 = ANY(members)) AND NOT ($2 = ANY(pending_members))
		 RETURNING `+groupCols, id, userID)
}

// RemovePending снимает заявку (отказ администратора).
func (r *GroupRepository) RemovePending(ctx context.Context, id, userID string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.RemovePending", time.Now())()
	return r.updateMembers(ctx, "RemovePending",
		`UPDATE groups SET pending_members = array_remove(pending_members, $2)
		 WHERE id = $1 AND NOT deleted AND $2 = ANY(pending_members) RETURNING `+groupCols, id, userID)
}

// RemoveMember убирает пользователя и из участников, и из заявок.
func (r *GroupRepository) RemoveMember(ctx context.Context, id, userID string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	return r.updateMembers(ctx, "RemoveMember",
		`UPDATE groups SET members = array_remove(members, $2), pending_members = array_remove(pending_members, $2)
		 WHERE id = $1 AND NOT deleted AND ($2 = ANY(members) OR $2 = ANY(pending_members))
		 RETURNING `+groupCols, id, userID)
}

func (r *GroupRepository) updateMembers(ctx context.Context, op, query string, args ...any) (*model.Group, error) {
	g := &model.Group{}
	if err := scanGroup(r.pool.QueryRow(ctx, query, args...), g); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("groupRepo.%s: %w", op, err)
	}
	return g, nil
}

func (r *GroupRepository) SoftDelete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("group.SoftDelete", time.Now())()
	_, err := r.pool.Exec(ctx, `UPDATE groups SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("groupRepo.SoftDelete: %w", err)
	}
	return nil
}

// AddMessage сохраняет сообщение и обновляет превью группы одной транзакцией.
func (r *GroupRepository) AddMessage(ctx context.Context, m *model.GroupMessage, preview string) error {
	defer logger.DeferLogDuration("group.AddMessage", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("groupRepo.AddMessage begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO group_messages (id, group_id, sender_id, text, image_url, ts, deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.GroupID, m.SenderID, m.Text, m.ImageURL, m.Timestamp, m.Deleted,
	); err != nil {
		return fmt.Errorf("groupRepo.AddMessage insert: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE groups SET last_message = $2, last_message_time = $3 WHERE id = $1`,
		m.GroupID, preview, m.Timestamp,
	); err != nil {
		return fmt.Errorf("groupRepo.AddMessage preview: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("groupRepo.AddMessage commit: %w", err)
	}
	return nil
}

func (r *GroupRepository) ListMessages(ctx context.Context, groupID string, limit int) ([]model.GroupMessage, error) {
	defer logger.DeferLogDuration("group.ListMessages", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, group_id, sender_id, text, image_url, ts, deleted FROM (
		   SELECT id, group_id, sender_id, text, image_url, ts, deleted FROM group_messages
		   WHERE group_id = $1 ORDER BY ts DESC LIMIT $2
		 ) t ORDER BY ts ASC`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("groupRepo.ListMessages query: %w", err)
	}
	defer rows.Close()

	list := make([]model.GroupMessage, 0, limit)
	for rows.Next() {
		var m model.GroupMessage
		if err := rows.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.Text, &m.ImageURL, &m.Timestamp, &m.Deleted); err != nil {
			return nil, fmt.Errorf("groupRepo.ListMessages scan: %w", err)
		}
		list = append(list, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("groupRepo.ListMessages rows: %w", err)
	}
	return list, nil
}
