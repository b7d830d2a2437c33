package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/chatline-app/chat-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, status, last_seen, created_at`
	err := r.db.QueryRow(ctx, query, u.Username, u.Email, u.PasswordHash).
		Scan(&u.ID, &u.Status, &u.LastSeen, &u.CreatedAt)
	if uniqueViolation(err) {
		return domain.ErrUserExists
	}
	return err
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	query := `
		SELECT id, username, email, password_hash, status, last_seen, created_at
		FROM users WHERE id=$1`
	err := r.db.QueryRow(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Status, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	query := `
		SELECT id, username, email, password_hash, status, last_seen, created_at
		FROM users WHERE username=$1`
	err := r.db.QueryRow(ctx, query, username).
		Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Status, &u.LastSeen, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetStatus — best-effort обновление presence-флага при connect/disconnect.
func (r *UserRepository) SetStatus(ctx context.Context, id string, status domain.UserStatus, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET status=$2, last_seen=$3 WHERE id=$1`,
		id, status, at)
	return err
}
