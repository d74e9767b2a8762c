package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/tgshopbot/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func scanProduct(row interface{ Scan(...any) error }) (*models.Product, error) {
	var p models.Product
	var categoryID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &categoryID, &p.PhotoURL, &p.CreatedAt); err != nil {
		return nil, err
	}
	if categoryID.Valid {
		p.CategoryID = &categoryID.Int64
	}
	return &p, nil
}

func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	const query = `
SELECT id, name, COALESCE(description, ''), price, category_id, photo_url, created_at
FROM products WHERE id = ?`
	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

func (r *ProductRepository) ListByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	const query = `
SELECT id, name, COALESCE(description, ''), price, category_id, photo_url, created_at
FROM products WHERE category_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list products by category: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) List(ctx context.Context) ([]models.Product, error) {
	const query = `
SELECT id, name, COALESCE(description, ''), price, category_id, photo_url, created_at
FROM products ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *ProductRepository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	const query = `
INSERT INTO products (name, description, price, category_id, photo_url)
VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, product.Name, product.Description, product.Price, product.CategoryID, product.PhotoURL)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("product last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *ProductRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM products WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}
