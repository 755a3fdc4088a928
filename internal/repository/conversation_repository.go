package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/businessly/businessly/internal/entities"
)

const conversationColumns = "c.id, c.bot_id, c.chat_id, c.telegram_user_id, c.username, c.first_name, c.last_name, c.control_mode, c.is_active, c.created_at, c.updated_at"

type ConversationRepository struct {
	db *pgxpool.Pool
}

func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func scanConversation(row pgx.Row, extra ...any) (*entities.Conversation, error) {
	var c entities.Conversation
	var mode string
	dest := append([]any{&c.ID, &c.BotID, &c.ChatID, &c.Participant.UserID, &c.Participant.Username,
		&c.Participant.FirstName, &c.Participant.LastName, &mode, &c.IsActive, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.ControlMode = entities.ControlMode(mode)
	return &c, nil
}

// ResolveOrCreate relies on the (bot_id, chat_id) unique key so concurrent
// first messages converge on one row.
func (r *ConversationRepository) ResolveOrCreate(ctx context.Context, botID, chatID int64, p entities.Participant) (*entities.Conversation, bool, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `
		INSERT INTO conversations AS c (bot_id, chat_id, telegram_user_id, username, first_name, last_name, control_mode)
		VALUES ($1, $2, $3, $4, $5, $6, 'automated')
		ON CONFLICT (bot_id, chat_id) DO NOTHING
		RETURNING `+conversationColumns,
		botID, chatID, p.UserID, p.Username, p.FirstName, p.LastName))
	if err == nil {
		return conv, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	conv, err = scanConversation(r.db.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.bot_id = $1 AND c.chat_id = $2", botID, chatID))
	if err != nil {
		return nil, false, err
	}
	return conv, false, nil
}

func (r *ConversationRepository) Get(ctx context.Context, id int64) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

func (r *ConversationRepository) GetForOwner(ctx context.Context, id, userID int64) (*entities.Conversation, error) {
	conv, err := scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c JOIN bots b ON b.id = c.bot_id
		WHERE c.id = $1 AND b.user_id = $2`, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return conv, err
}

// ListForOwner lists the owner's conversations, newest activity first. A
// botID of zero means all bots.
func (r *ConversationRepository) ListForOwner(ctx context.Context, userID, botID int64) ([]entities.ConversationSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+conversationColumns+`, lm.content, lm.created_at
		FROM conversations c
		JOIN bots b ON b.id = c.bot_id
		LEFT JOIN LATERAL (
			SELECT m.content, m.created_at FROM messages m
			WHERE m.conversation_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) lm ON true
		WHERE b.user_id = $1 AND ($2::bigint = 0 OR c.bot_id = $2::bigint)
		ORDER BY c.updated_at DESC, c.id DESC`, userID, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.ConversationSummary
	for rows.Next() {
		var lastContent *string
		var lastAt *time.Time
		conv, err := scanConversation(rows, &lastContent, &lastAt)
		if err != nil {
			return nil, err
		}
		s := entities.ConversationSummary{Conversation: *conv, LastMessageAt: lastAt}
		if lastContent != nil {
			s.LastMessage = *lastContent
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ConversationRepository) GetControlMode(ctx context.Context, id int64) (entities.ControlMode, error) {
	var mode string
	err := r.db.QueryRow(ctx, "SELECT control_mode FROM conversations WHERE id = $1", id).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", entities.ErrConversationNotFound
	}
	return entities.ControlMode(mode), err
}

func (r *ConversationRepository) TransitionControlMode(ctx context.Context, id int64, from, to entities.ControlMode) (bool, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE conversations SET control_mode = $3, updated_at = now() WHERE id = $1 AND control_mode = $2",
		id, string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ConversationRepository) SetControlMode(ctx context.Context, id int64, mode entities.ControlMode) error {
	tag, err := r.db.Exec(ctx,
		"UPDATE conversations SET control_mode = $2, updated_at = now() WHERE id = $1", id, string(mode))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrConversationNotFound
	}
	return nil
}
