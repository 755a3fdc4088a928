package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/businessly/businessly/internal/entities"
)

const conversationColumns = "c.id, c.bot_id, c.chat_id, c.telegram_user_id, c.username, c.first_name, c.last_name, c.control_mode, c.is_active, c.created_at, c.updated_at"

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row rowScanner, extra ...any) (*entities.Conversation, error) {
	var c entities.Conversation
	var mode string
	var created, updated int64
	dest := append([]any{&c.ID, &c.BotID, &c.ChatID, &c.Participant.UserID, &c.Participant.Username,
		&c.Participant.FirstName, &c.Participant.LastName, &mode, &c.IsActive, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.ControlMode = entities.ControlMode(mode)
	c.CreatedAt = fromNanos(created)
	c.UpdatedAt = fromNanos(updated)
	return &c, nil
}

func (r *ConversationRepository) ResolveOrCreate(ctx context.Context, botID, chatID int64, p entities.Participant) (*entities.Conversation, bool, error) {
	now := toNanos(clock())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (bot_id, chat_id, telegram_user_id, username, first_name, last_name, control_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'automated', ?, ?)
		ON CONFLICT (bot_id, chat_id) DO NOTHING`,
		botID, chatID, p.UserID, p.Username, p.FirstName, p.LastName, now, now)
	if err != nil {
		return nil, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}

	conv, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.bot_id = ? AND c.chat_id = ?", botID, chatID))
	if err != nil {
		return nil, false, err
	}
	return conv, inserted == 1, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id int64) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepository) GetForOwner(ctx context.Context, id, userID int64) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c JOIN bots b ON b.id = c.bot_id
		WHERE c.id = ? AND b.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepository) ListForOwner(ctx context.Context, userID, botID int64) ([]entities.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+conversationColumns+`,
		       (SELECT m.content FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1),
		       (SELECT m.created_at FROM messages m WHERE m.conversation_id = c.id ORDER BY m.created_at DESC, m.id DESC LIMIT 1)
		FROM conversations c
		JOIN bots b ON b.id = c.bot_id
		WHERE b.user_id = ? AND (? = 0 OR c.bot_id = ?)
		ORDER BY c.updated_at DESC, c.id DESC`, userID, botID, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.ConversationSummary
	for rows.Next() {
		var lastContent sql.NullString
		var lastAt sql.NullInt64
		conv, err := scanConversation(rows, &lastContent, &lastAt)
		if err != nil {
			return nil, err
		}
		s := entities.ConversationSummary{Conversation: *conv, LastMessage: lastContent.String}
		if lastAt.Valid {
			t := fromNanos(lastAt.Int64)
			s.LastMessageAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) GetControlMode(ctx context.Context, id int64) (entities.ControlMode, error) {
	var mode string
	err := r.db.QueryRowContext(ctx, "SELECT control_mode FROM conversations WHERE id = ?", id).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", entities.ErrConversationNotFound
	}
	return entities.ControlMode(mode), err
}

func (r *ConversationRepository) TransitionControlMode(ctx context.Context, id int64, from, to entities.ControlMode) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET control_mode = ?, updated_at = ? WHERE id = ? AND control_mode = ?",
		string(to), toNanos(clock()), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *ConversationRepository) SetControlMode(ctx context.Context, id int64, mode entities.ControlMode) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE conversations SET control_mode = ?, updated_at = ? WHERE id = ?",
		string(mode), toNanos(clock()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrConversationNotFound
	}
	return nil
}
