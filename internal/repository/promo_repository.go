package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/tgshopbot/internal/models"
)

type PromoRepository struct {
	db *sql.DB
}

func NewPromoRepository(db *sql.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

func scanPromo(row interface{ Scan(...any) error }) (*models.PromoCode, error) {
	var promo models.PromoCode
	var usesLeft sql.NullInt64
	var active int
	if err := row.Scan(&promo.ID, &promo.Code, &promo.Amount, &usesLeft, &active, &promo.CreatedAt); err != nil {
		return nil, err
	}
	if usesLeft.Valid {
		uses := int(usesLeft.Int64)
		promo.UsesLeft = &uses
	}
	promo.Active = active != 0
	return &promo, nil
}

func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	const query = `SELECT id, code, amount, uses_left, active, created_at FROM promocodes WHERE code = ?`
	promo, err := scanPromo(r.db.QueryRowContext(ctx, query, strings.ToUpper(code)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promo by code: %w", err)
	}
	return promo, nil
}

func (r *PromoRepository) GetByID(ctx context.Context, id int64) (*models.PromoCode, error) {
	const query = `SELECT id, code, amount, uses_left, active, created_at FROM promocodes WHERE id = ?`
	promo, err := scanPromo(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promo by id: %w", err)
	}
	return promo, nil
}

func (r *PromoRepository) List(ctx context.Context) ([]models.PromoCode, error) {
	const query = `SELECT id, code, amount, uses_left, active, created_at FROM promocodes ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list promos: %w", err)
	}
	defer rows.Close()

	var promos []models.PromoCode
	for rows.Next() {
		promo, err := scanPromo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan promo list: %w", err)
		}
		promos = append(promos, *promo)
	}
	return promos, rows.Err()
}

// Create inserts or replaces a promo code; codes are stored upper-cased.
func (r *PromoRepository) Create(ctx context.Context, code string, amount int, usesLeft *int) (*models.PromoCode, error) {
	const query = `
INSERT INTO promocodes (code, amount, uses_left, active)
VALUES (?, ?, ?, 1)
ON DUPLICATE KEY UPDATE amount = VALUES(amount), uses_left = VALUES(uses_left), active = 1`
	if _, err := r.db.ExecContext(ctx, query, strings.ToUpper(code), amount, usesLeft); err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return r.GetByCode(ctx, code)
}

func (r *PromoRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM promocodes WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete promo: %w", err)
	}
	return nil
}

// ToggleActive flips the active flag and returns the new state.
func (r *PromoRepository) ToggleActive(ctx context.Context, id int64) (bool, error) {
	promo, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if promo == nil {
		return false, fmt.Errorf("promo %d not found", id)
	}
	newState := !promo.Active
	const query = `UPDATE promocodes SET active = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, boolToInt(newState), id); err != nil {
		return false, fmt.Errorf("toggle promo: %w", err)
	}
	return newState, nil
}

// consumePromoUseQuery decrements a finite usage counter and deactivates the
// code when it runs out. MySQL applies SET assignments left to right, so the
// IF sees the already-decremented counter and must compare against zero.
const consumePromoUseQuery = `
UPDATE promocodes
SET uses_left = uses_left - 1, active = IF(uses_left <= 0, 0, active)
WHERE id = ? AND uses_left IS NOT NULL AND uses_left > 0`

// ConsumeUse spends one use of a finite promo code. The conditional WHERE
// makes concurrent redemptions lose cleanly.
func (r *PromoRepository) ConsumeUse(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, consumePromoUseQuery, id)
	if err != nil {
		return false, fmt.Errorf("consume promo use: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("promo use rows affected: %w", err)
	}
	return affected > 0, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
