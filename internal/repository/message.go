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

const messageCols = `id, match_id, sender_id, text, image_url, ts, read, edited, edited_at, deleted, reply_to`

type MessageRepository struct {
	pool *pgxpool.Pool
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

func scanMessage(s rowScanner, m *model.Message) error {
	return s.Scan(&m.ID, &m.MatchID, &m.SenderID, &m.Text, &m.ImageURL, &m.Timestamp, &m.Read, &m.Edited, &m.EditedAt, &m.Deleted, &m.ReplyTo)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (`+messageCols+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.MatchID, m.SenderID, m.Text, m.ImageURL, m.Timestamp, m.Read, m.Edited, m.EditedAt, m.Deleted, m.ReplyTo,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.Create: %w", err)
	}
	return nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("msgRepo.GetByID: %w", err)
	}
	return m, nil
}

// ListByMatch возвращает последние limit сообщений матча в порядке возрастания времени.
func (r *MessageRepository) ListByMatch(ctx context.Context, matchID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("msg.ListByMatch", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM (
		   SELECT `+messageCols+` FROM messages WHERE match_id = $1 ORDER BY ts DESC LIMIT $2
		 ) t ORDER BY ts ASC`, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.ListByMatch query: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0, limit)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, fmt.Errorf("msgRepo.ListByMatch scan: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("msgRepo.ListByMatch rows: %w", err)
	}
	return messages, nil
}

// Latest: последнее сообщение матча или nil.
func (r *MessageRepository) Latest(ctx context.Context, matchID string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.Latest", time.Now())()
	m := &model.Message{}
	row := r.pool.QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE match_id = $1 ORDER BY ts DESC LIMIT 1`, matchID)
	if err := scanMessage(row, m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("msgRepo.Latest: %w", err)
	}
	return m, nil
}

// UpdateText: правка текста. Удалённые сообщения не меняются.
func (r *MessageRepository) UpdateText(ctx context.Context, id, text string, editedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateText", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET text = $2, edited = TRUE, edited_at = $3 WHERE id = $1 AND NOT deleted`,
		id, text, editedAt,
	)
	if err != nil {
		return fmt.Errorf("msgRepo.UpdateText: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Tombstone удаляет сообщение для всех. Текст заменяется заглушкой, фото и ответ сброшены.
// Цитаты удалённого сообщения в ответах на него заменяются той же заглушкой в той же транзакции.
func (r *MessageRepository) Tombstone(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.Tombstone", time.Now())()
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("msgRepo.Tombstone begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET text = $2, image_url = '', reply_to = NULL, edited = FALSE, edited_at = NULL, deleted = TRUE
		 WHERE id = $1`,
		id, model.DeletedMarker,
	); err != nil {
		return fmt.Errorf("msgRepo.Tombstone: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE messages SET reply_to = jsonb_set(reply_to, '{text}', to_jsonb($2::text))
		 WHERE reply_to->>'id' = $1`,
		id, model.DeletedMarker,
	); err != nil {
		return fmt.Errorf("msgRepo.Tombstone replies: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("msgRepo.Tombstone commit: %w", err)
	}
	return nil
}

// MarkRead помечает прочитанными все чужие сообщения матча. Возвращает число изменённых.
func (r *MessageRepository) MarkRead(ctx context.Context, matchID, readerID string) (int64, error) {
	defer logger.DeferLogDuration("msg.MarkRead", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE match_id = $1 AND sender_id <> $2 AND NOT read`,
		matchID, readerID,
	)
	if err != nil {
		return 0, fmt.Errorf("msgRepo.MarkRead: %w", err)
	}
	return tag.RowsAffected(), nil
}
