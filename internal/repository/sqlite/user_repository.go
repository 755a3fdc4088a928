package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/businessly/businessly/internal/entities"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *entities.User) error {
	now := clock()
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		user.Username, user.PasswordHash, user.Role, toNanos(now))
	if isUniqueViolation(err) {
		return entities.ErrUsernameTaken
	}
	if err != nil {
		return err
	}
	user.ID, err = res.LastInsertId()
	user.CreatedAt = fromNanos(toNanos(now))
	return err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*entities.User, error) {
	var user entities.User
	var created int64
	err := r.db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, role, created_at FROM users WHERE username = ?",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = fromNanos(created)
	return &user, nil
}
