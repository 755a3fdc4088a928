package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/businessly/businessly/internal/entities"
)

type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores msg and bumps the conversation's activity time.
func (r *MessageRepository) Append(ctx context.Context, msg *entities.Message) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO messages (conversation_id, origin, content, telegram_message_id)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at`,
			msg.ConversationID, string(msg.Origin), msg.Content, msg.TelegramMessageID,
		).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if _, err := tx.Exec(ctx, "UPDATE conversations SET updated_at = now() WHERE id = $1", msg.ConversationID); err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		return nil
	})
}

func (r *MessageRepository) Recent(ctx context.Context, conversationID int64, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, origin, content, telegram_message_id, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.Message
	for rows.Next() {
		var m entities.Message
		var origin string
		if err := rows.Scan(&m.ID, &m.ConversationID, &origin, &m.Content, &m.TelegramMessageID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Origin = entities.Origin(origin)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func reverse(msgs []entities.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
