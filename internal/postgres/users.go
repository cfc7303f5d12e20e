package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrischaps/TaskMan-sub000/internal/domain"
)

// User is the identity collaborator's view of a user. The lifecycle
// core only ever sees user IDs; this store backs the thin auth layer.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	TokenBalance int
	CreatedAt    time.Time
}

// UserStore backs registration and login.
type UserStore interface {
	Create(ctx context.Context, email, passwordHash string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

type userStore struct {
	pool *pgxpool.Pool
}

// NewUserStore wraps a pgxpool with the UserStore interface.
func NewUserStore(pool *pgxpool.Pool) UserStore {
	return &userStore{pool: pool}
}

func (s *userStore) Create(ctx context.Context, email, passwordHash string) (*User, error) {
	u := &User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, token_balance, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4)
	`, u.ID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.get(ctx, `SELECT id, email, password_hash, token_balance, created_at FROM users WHERE email = $1`, email)
}

func (s *userStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.get(ctx, `SELECT id, email, password_hash, token_balance, created_at FROM users WHERE id = $1`, id)
}

func (s *userStore) get(ctx context.Context, query, arg string) (*User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.TokenBalance, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.UserNotFoundError{UserID: arg}
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &u, nil
}
