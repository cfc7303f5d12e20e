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

// Ledger moves tokens between nowhere and a user, one atomic
// transaction per call: the balance update and the ledger row land
// together or not at all. Concurrent calls against the same user
// serialize on the row update; there is no read-then-write gap.
type Ledger interface {
	Award(ctx context.Context, userID string, amount int, reason string) (int, error)
	Deduct(ctx context.Context, userID string, amount int, reason string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
	History(ctx context.Context, userID string, limit int) ([]*domain.TokenTransaction, error)
}

type ledger struct {
	pool *pgxpool.Pool
}

// NewLedger wraps a pgxpool with the Ledger interface.
func NewLedger(pool *pgxpool.Pool) Ledger {
	return &ledger{pool: pool}
}

func (l *ledger) Award(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, &domain.InvalidAmountError{Amount: amount}
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("award to %s: begin: %w", userID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	newBalance, err := applyAward(ctx, tx, userID, amount, reason, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("award to %s: commit: %w", userID, err)
	}
	return newBalance, nil
}

func (l *ledger) Deduct(ctx context.Context, userID string, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, &domain.InvalidAmountError{Amount: amount}
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("deduct from %s: begin: %w", userID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var newBalance int
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET token_balance = token_balance - $1, updated_at = $3
		WHERE id = $2 AND token_balance >= $1
		RETURNING token_balance
	`, amount, userID, now).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the user is missing or the guard stopped an overdraft.
		var balance int
		checkErr := l.pool.QueryRow(ctx, `SELECT token_balance FROM users WHERE id = $1`, userID).Scan(&balance)
		if errors.Is(checkErr, pgx.ErrNoRows) {
			return 0, &domain.UserNotFoundError{UserID: userID}
		}
		if checkErr != nil {
			return 0, fmt.Errorf("deduct from %s: %w", userID, checkErr)
		}
		return 0, &domain.InsufficientBalanceError{UserID: userID, Balance: balance, Amount: amount}
	}
	if err != nil {
		return 0, fmt.Errorf("deduct from %s: %w", userID, err)
	}

	if err := insertTransaction(ctx, tx, userID, -amount, newBalance, reason, now); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("deduct from %s: commit: %w", userID, err)
	}
	return newBalance, nil
}

func (l *ledger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := l.pool.QueryRow(ctx, `SELECT token_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &domain.UserNotFoundError{UserID: userID}
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", userID, err)
	}
	return balance, nil
}

func (l *ledger) History(ctx context.Context, userID string, limit int) ([]*domain.TokenTransaction, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, user_id, amount, balance, reason, created_at
		FROM token_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", userID, err)
	}
	defer rows.Close()

	var history []*domain.TokenTransaction
	for rows.Next() {
		var txn domain.TokenTransaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Balance, &txn.Reason, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		history = append(history, &txn)
	}
	return history, rows.Err()
}

// applyAward credits a user and appends the ledger row inside the
// caller's transaction. Shared by Ledger.Award and the task completion
// path so the reward payout is part of the completion's unit of work.
func applyAward(ctx context.Context, tx pgx.Tx, userID string, amount int, reason string, now time.Time) (int, error) {
	var newBalance int
	err := tx.QueryRow(ctx, `
		UPDATE users
		SET token_balance = token_balance + $1, updated_at = $3
		WHERE id = $2
		RETURNING token_balance
	`, amount, userID, now).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &domain.UserNotFoundError{UserID: userID}
	}
	if err != nil {
		return 0, fmt.Errorf("award to %s: %w", userID, err)
	}
	if err := insertTransaction(ctx, tx, userID, amount, newBalance, reason, now); err != nil {
		return 0, err
	}
	return newBalance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, userID string, amount, balance int, reason string, now time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO token_transactions (id, user_id, amount, balance, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), userID, amount, balance, reason, now)
	if err != nil {
		return fmt.Errorf("append transaction for %s: %w", userID, err)
	}
	return nil
}
