package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) DB() *sql.DB {
	return r.db
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	const query = `
INSERT INTO purchases (user_id, product_id, price, status)
VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, purchase.UserID, purchase.ProductID, purchase.Price, models.PurchaseCreated)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("purchase last insert id: %w", err)
	}
	purchase.ID = id
	purchase.Status = models.PurchaseCreated
	return nil
}

func (r *PurchaseRepository) GetByID(ctx context.Context, id int64) (*models.Purchase, error) {
	const query = `SELECT id, user_id, product_id, price, status, created_at FROM purchases WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Purchase
	if err := row.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Price, &p.Status, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get purchase by id: %w", err)
	}
	return &p, nil
}

// MarkInvoiced advances a freshly created purchase once a payment row exists.
func (r *PurchaseRepository) MarkInvoiced(ctx context.Context, id int64) error {
	const query = `UPDATE purchases SET status = ? WHERE id = ? AND status = ?`
	if _, err := r.db.ExecContext(ctx, query, models.PurchaseInvoiced, id, models.PurchaseCreated); err != nil {
		return fmt.Errorf("mark purchase invoiced: %w", err)
	}
	return nil
}

// MarkPaid advances the purchase to paid; already paid or delivered rows are untouched.
func (r *PurchaseRepository) MarkPaid(ctx context.Context, id int64) error {
	const query = `UPDATE purchases SET status = ? WHERE id = ? AND status IN (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, models.PurchasePaid, id, models.PurchaseCreated, models.PurchaseInvoiced); err != nil {
		return fmt.Errorf("mark purchase paid: %w", err)
	}
	return nil
}

// ClaimDelivery atomically flips paid → delivered. It returns false when the
// purchase was not in paid state, which makes delivery a single-winner step
// between the manual confirmation path and the reconciliation loop.
func (r *PurchaseRepository) ClaimDelivery(ctx context.Context, id int64) (bool, error) {
	const query = `UPDATE purchases SET status = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, models.PurchaseDelivered, id, models.PurchasePaid)
	if err != nil {
		return false, fmt.Errorf("claim delivery: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim delivery rows affected: %w", err)
	}
	return affected > 0, nil
}

// ListPaidUndelivered returns up to limit paid purchases that still await
// delivery, joined with the buyer's Telegram id.
func (r *PurchaseRepository) ListPaidUndelivered(ctx context.Context, limit int) ([]models.PaidPurchase, error) {
	const query = `
SELECT p.id, p.user_id, p.product_id, p.price, p.status, p.created_at, u.telegram_id
FROM purchases p
JOIN users u ON u.id = p.user_id
WHERE p.status = ?
ORDER BY p.id
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, models.PurchasePaid, limit)
	if err != nil {
		return nil, fmt.Errorf("list paid undelivered: %w", err)
	}
	defer rows.Close()

	var result []models.PaidPurchase
	for rows.Next() {
		var p models.PaidPurchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProductID, &p.Price, &p.Status, &p.CreatedAt, &p.TelegramID); err != nil {
			return nil, fmt.Errorf("scan paid purchase: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// DeleteWithPayments removes the purchase and its payment rows in one transaction.
func (r *PurchaseRepository) DeleteWithPayments(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE purchase_id = ?`, id); err != nil {
		return fmt.Errorf("delete payments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM purchases WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete purchase: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}

func (r *PurchaseRepository) HistoryByTelegramID(ctx context.Context, telegramID int64) ([]models.PurchaseHistoryEntry, error) {
	const query = `
SELECT p.id, pr.name, p.price, p.status, p.created_at
FROM purchases p
JOIN users u ON u.id = p.user_id
JOIN products pr ON pr.id = p.product_id
WHERE u.telegram_id = ?
ORDER BY p.created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, telegramID)
	if err != nil {
		return nil, fmt.Errorf("purchase history: %w", err)
	}
	defer rows.Close()

	var entries []models.PurchaseHistoryEntry
	for rows.Next() {
		var e models.PurchaseHistoryEntry
		if err := rows.Scan(&e.PurchaseID, &e.ProductName, &e.Price, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
