package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type AutodeliveryRepository struct {
	db *sql.DB
}

func NewAutodeliveryRepository(db *sql.DB) *AutodeliveryRepository {
	return &AutodeliveryRepository{db: db}
}

// Upsert replaces the autodelivery configuration of a product.
func (r *AutodeliveryRepository) Upsert(ctx context.Context, rec *models.Autodelivery) error {
	const query = `
INSERT INTO autodeliveries (product_id, enabled, content_text, file_url)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''))
ON DUPLICATE KEY UPDATE enabled = VALUES(enabled), content_text = VALUES(content_text), file_url = VALUES(file_url)`
	if _, err := r.db.ExecContext(ctx, query, rec.ProductID, boolToInt(rec.Enabled), rec.ContentText, rec.FileURL); err != nil {
		return fmt.Errorf("upsert autodelivery: %w", err)
	}
	return nil
}

func (r *AutodeliveryRepository) GetByProduct(ctx context.Context, productID int64) (*models.Autodelivery, error) {
	const query = `
SELECT product_id, enabled, COALESCE(content_text, ''), COALESCE(file_url, ''), created_at
FROM autodeliveries WHERE product_id = ?`
	row := r.db.QueryRowContext(ctx, query, productID)
	var rec models.Autodelivery
	var enabled int
	if err := row.Scan(&rec.ProductID, &enabled, &rec.ContentText, &rec.FileURL, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get autodelivery: %w", err)
	}
	rec.Enabled = enabled != 0
	return &rec, nil
}

func (r *AutodeliveryRepository) Delete(ctx context.Context, productID int64) error {
	const query = `DELETE FROM autodeliveries WHERE product_id = ?`
	if _, err := r.db.ExecContext(ctx, query, productID); err != nil {
		return fmt.Errorf("delete autodelivery: %w", err)
	}
	return nil
}
