package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (purchase_id, invoice_id, pay_url, method, status)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)`
	res, err := r.db.ExecContext(ctx, query, payment.PurchaseID, payment.InvoiceID, payment.PayURL, payment.Method, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("payment last insert id: %w", err)
	}
	payment.ID = id
	payment.Status = models.PaymentPending
	return nil
}

func scanPayment(row interface{ Scan(...any) error }) (*models.Payment, error) {
	var p models.Payment
	var invoiceID, payURL sql.NullString
	if err := row.Scan(&p.ID, &p.PurchaseID, &invoiceID, &payURL, &p.Method, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.InvoiceID = invoiceID.String
	p.PayURL = payURL.String
	return &p, nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	const query = `SELECT id, purchase_id, invoice_id, pay_url, method, status, created_at FROM payments WHERE id = ?`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// LatestByPurchase returns the newest payment row for a purchase, if any.
func (r *PaymentRepository) LatestByPurchase(ctx context.Context, purchaseID int64) (*models.Payment, error) {
	const query = `
SELECT id, purchase_id, invoice_id, pay_url, method, status, created_at
FROM payments WHERE purchase_id = ? ORDER BY id DESC LIMIT 1`
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, purchaseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest payment by purchase: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID int64, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, paymentID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

// MarkPaidByPurchase flips every pending payment of a purchase to paid.
// Used by the provider webhook, which only knows the order id.
func (r *PaymentRepository) MarkPaidByPurchase(ctx context.Context, purchaseID int64) error {
	const query = `UPDATE payments SET status = ? WHERE purchase_id = ? AND status = ?`
	if _, err := r.db.ExecContext(ctx, query, models.PaymentPaid, purchaseID, models.PaymentPending); err != nil {
		return fmt.Errorf("mark payments paid: %w", err)
	}
	return nil
}
