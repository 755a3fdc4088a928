package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/businessly/businessly/internal/entities"
)

const botColumns = "id, user_id, token, telegram_bot_id, username, name, business_description, is_active, created_at, updated_at"

type BotRepository struct {
	db *sql.DB
}

func NewBotRepository(db *sql.DB) *BotRepository {
	return &BotRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner, extra ...any) (*entities.Bot, error) {
	var b entities.Bot
	var created, updated int64
	dest := append([]any{&b.ID, &b.UserID, &b.Token, &b.TelegramBotID, &b.Username, &b.Name,
		&b.BusinessDescription, &b.IsActive, &created, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	b.CreatedAt = fromNanos(created)
	b.UpdatedAt = fromNanos(updated)
	return &b, nil
}

func (r *BotRepository) Create(ctx context.Context, bot *entities.Bot) error {
	now := toNanos(clock())
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO bots (user_id, token, telegram_bot_id, username, name, business_description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		bot.UserID, bot.Token, bot.TelegramBotID, bot.Username, bot.Name, bot.BusinessDescription, bot.IsActive, now, now)
	if isUniqueViolation(err) {
		return entities.ErrDuplicateToken
	}
	if err != nil {
		return err
	}
	bot.ID, err = res.LastInsertId()
	bot.CreatedAt = fromNanos(now)
	bot.UpdatedAt = fromNanos(now)
	return err
}

func (r *BotRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Bot, error) {
	bot, err := scanBot(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return bot, err
}

func (r *BotRepository) FindByToken(ctx context.Context, token string) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE token = ?", token)
}

func (r *BotRepository) Get(ctx context.Context, id int64) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE id = ?", id)
}

func (r *BotRepository) GetForOwner(ctx context.Context, id, userID int64) (*entities.Bot, error) {
	return r.getOne(ctx, "SELECT "+botColumns+" FROM bots WHERE id = ? AND user_id = ?", id, userID)
}

func (r *BotRepository) ListByOwner(ctx context.Context, userID int64) ([]entities.BotSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT b.id, b.user_id, b.token, b.telegram_bot_id, b.username, b.name, b.business_description,
		       b.is_active, b.created_at, b.updated_at,
		       (SELECT COUNT(*) FROM conversations c WHERE c.bot_id = b.id)
		FROM bots b
		WHERE b.user_id = ?
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
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM bots WHERE token = ?)", token).Scan(&exists)
	return exists, err
}

func (r *BotRepository) Update(ctx context.Context, bot *entities.Bot) error {
	now := toNanos(clock())
	res, err := r.db.ExecContext(ctx,
		"UPDATE bots SET name = ?, business_description = ?, updated_at = ? WHERE id = ?",
		bot.Name, bot.BusinessDescription, now, bot.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrBotNotFound
	}
	bot.UpdatedAt = fromNanos(now)
	return nil
}

func (r *BotRepository) SetActive(ctx context.Context, id int64, active bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE bots SET is_active = ?, updated_at = ? WHERE id = ?", active, toNanos(clock()), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrBotNotFound
	}
	return nil
}

func (r *BotRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM bots WHERE id = ?", id)
	return err
}

func (r *BotRepository) CountConversations(ctx context.Context, botID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE bot_id = ?", botID).Scan(&n)
	return n, err
}
