package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) DB() *sql.DB {
	return r.db
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	const query = `SELECT id, telegram_id, balance, created_at FROM users WHERE telegram_id = ?`
	row := r.db.QueryRowContext(ctx, query, telegramID)
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Balance, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	const query = `SELECT id, telegram_id, balance, created_at FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var u models.User
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Balance, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return &u, nil
}

// Ensure creates the user on first interaction and returns the row either way.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64) (*models.User, error) {
	const insert = `INSERT IGNORE INTO users (telegram_id) VALUES (?)`
	if _, err := r.db.ExecContext(ctx, insert, telegramID); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d missing after ensure", telegramID)
	}
	return user, nil
}

func (r *UserRepository) AddBalance(ctx context.Context, userID int64, delta int) error {
	const query = `UPDATE users SET balance = GREATEST(balance + ?, 0) WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, delta, userID); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (r *UserRepository) ListTelegramIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT telegram_id FROM users`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list telegram ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan telegram id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
