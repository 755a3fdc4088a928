package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/businessly/businessly/internal/entities"
)

const botColumns = "id, user_id, token, telegram_bot_id, username, name, business_description, is_active, created_at, updated_at"

type BotRepository struct {
	db *pgxpool.Pool
}

func NewBotRepository(db *pgxpool.Pool) *BotRepository {
	return &BotRepository{db: db}
}

func scanBot(row pgx.Row, extra ...any) (*entities.Bot, error) {
	var b entities.Bot
	dest := append([]any{&b.ID, &b.UserID, &b.Token, &b.TelegramBotID, &b.Username, &b.Name,
		&b.BusinessDescription, &b.IsActive, &b.CreatedAt, &b.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BotRepository) Create(ctx context.Context, bot *entities.Bot) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO bots (user_id, token, telegram_bot_id, username, name, business_description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		bot.UserID, bot.Token, bot.TelegramBotID, bot.Username, bot.Name, bot.BusinessDescription, bot.IsActive,
	).Scan(&bot.ID, &bot.CreatedAt, &bot.UpdatedAt)
	if isUniqueViolation(err) {
		return entities.ErrDuplicateToken
	}
	return err
}

func (r *BotRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Bot, error) {
	bot, err := scanBot(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return bot, err
}

func (r *BotRepository) FindByToken(ctx context.Context, token string) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE token = $1", token)
}

func (r *BotRepository) Get(ctx context.Context, id int64) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE id = $1", id)
}

func (r *BotRepository) GetForOwner(ctx context.Context, id, userID int64) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE id = $1 AND user_id = $2", id, userID)
}

func (r *BotRepository) ListByOwner(ctx context.Context, userID int64) ([]entities.BotSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT b.id, b.user_id, b.token, b.telegram_bot_id, b.username, b.name, b.business_description,
		       b.is_active, b.created_at, b.updated_at, COUNT(c.id)
		FROM bots b
		LEFT JOIN conversations c ON c.bot_id = b.id
		WHERE b.user_id = $1
		GROUP BY b.id
		ORDER BY b.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entities.BotSummary
	for rows.Next() {
		var count int
		bot, err := scanBot(rows, &count)
		if err != nil {
			return nil, err
		}
		out = append(out, entities.BotSummary{Bot: *bot, ConversationsCount: count})
	}
	return out, rows.Err()
}

func (r *BotRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM bots WHERE token = $1)", token).Scan(&exists)
	return exists, err
}

func (r *BotRepository) Update(ctx context.Context, bot *entities.Bot) error {
	err := r.db.QueryRow(ctx, `
		UPDATE bots SET name = $2, business_description = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		bot.ID, bot.Name, bot.BusinessDescription).Scan(&bot.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.ErrBotNotFound
	}
	return err
}

func (r *BotRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, "UPDATE bots SET is_active = $2, updated_at = now() WHERE id = $1", id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.ErrBotNotFound
	}
	return nil
}

func (r *BotRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, "DELETE FROM bots WHERE id = $1", id)
	return err
}

func (r *BotRepository) CountConversations(ctx context.Context, botID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM conversations WHERE bot_id = $1", botID).Scan(&n)
	return n, err
}
