package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/businessly/businessly/internal/entities"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, msg *entities.Message) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := toNanos(clock())
	var remoteID sql.NullInt64
	if msg.TelegramMessageID != nil {
		remoteID = sql.NullInt64{Int64: *msg.TelegramMessageID, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, origin, content, telegram_message_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, string(msg.Origin), msg.Content, remoteID, now)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", now, msg.ConversationID); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	msg.ID = id
	msg.CreatedAt = fromNanos(now)
	return nil
}

func (r *MessageRepository) Recent(ctx context.Context, conversationID int64, limit int) ([]entities.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, origin, content, telegram_message_id, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.Message
	for rows.Next() {
		var m entities.Message
		var origin string
		var remoteID sql.NullInt64
		var created int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &origin, &m.Content, &remoteID, &created); err != nil {
			return nil, err
		}
		m.Origin = entities.Origin(origin)
		m.CreatedAt = fromNanos(created)
		if remoteID.Valid {
			v := remoteID.Int64
			m.TelegramMessageID = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
